// Package authz resolves the identity behind an HTTP request. Each call site
// declares which credential kinds it accepts; the token exchange endpoints
// accept the session cookie only, so a bearer token can never be used to mint
// more bearer tokens.
package authz

import (
	"net/http"
	"strings"

	"go-auth-core/internal/model"
	"go-auth-core/internal/token"
)

type Options struct {
	AllowSession bool
	AllowBearer  bool
}

type Identity struct {
	UserID string
	Email  string
	Role   string
}

type Resolver struct {
	codec         *token.Codec
	sessionCookie string
	ownerUserID   string
}

func NewResolver(codec *token.Codec, sessionCookie string, ownerUserID string) *Resolver {
	if sessionCookie == "" {
		sessionCookie = "session"
	}

	return &Resolver{codec: codec, sessionCookie: sessionCookie, ownerUserID: ownerUserID}
}

// Authorize resolves the request identity from the allowed credential kinds.
// A credential of a disallowed kind is ignored, not an error; the request
// fails only when no allowed credential authenticates it.
func (r *Resolver) Authorize(req *http.Request, opts Options) (*Identity, error) {
	if opts.AllowBearer {
		if raw := bearerToken(req); raw != "" {
			claims, err := r.codec.VerifyAccessToken(raw)
			if err != nil {
				return nil, model.ErrUnauthorized
			}
			return identityFromClaims(claims), nil
		}
	}

	if opts.AllowSession {
		if cookie, err := req.Cookie(r.sessionCookie); err == nil && cookie.Value != "" {
			claims, err := r.codec.VerifyAccessToken(cookie.Value)
			if err != nil {
				return nil, model.ErrUnauthorized
			}
			return identityFromClaims(claims), nil
		}
	}

	return nil, model.ErrUnauthorized
}

// IsOwner reports whether the identity matches the single configured owner.
// Fail-closed: with no owner configured, nobody is the owner.
func (r *Resolver) IsOwner(id *Identity) bool {
	return r.ownerUserID != "" && id != nil && id.UserID == r.ownerUserID
}

func identityFromClaims(claims *token.AccessClaims) *Identity {
	return &Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
}

func bearerToken(req *http.Request) string {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}

	return strings.TrimSpace(header[7:])
}
