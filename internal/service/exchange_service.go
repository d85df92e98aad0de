package service

import (
	"errors"
	"strings"
	"time"

	"go-auth-core/internal/revocation"
	"go-auth-core/internal/token"
)

var ErrNoValidScopes = errors.New("no valid scopes requested")

// DefaultScopes is what an issue request without explicit scopes gets.
var DefaultScopes = []string{"llm:chat", "mcp:read"}

// IssuedToken is the wire response of a successful exchange.
type IssuedToken struct {
	Token     string   `json:"token"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expiresAt"`
}

// TokenExchangeService mints scoped, short-lived bearer tokens from an
// already-authenticated session and revokes them early via the denylist.
// Authorization and same-origin gating happen in the HTTP layer before any
// method here runs.
type TokenExchangeService struct {
	codec         *token.Codec
	revoked       *revocation.Store
	allowedScopes map[string]struct{}
	defaultTTL    time.Duration
}

func NewTokenExchangeService(codec *token.Codec, revoked *revocation.Store, allowedScopes []string, defaultTTL time.Duration) *TokenExchangeService {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}

	allowed := make(map[string]struct{}, len(allowedScopes))
	for _, scope := range allowedScopes {
		allowed[scope] = struct{}{}
	}

	return &TokenExchangeService{
		codec:         codec,
		revoked:       revoked,
		allowedScopes: allowed,
		defaultTTL:    defaultTTL,
	}
}

// Issue filters the requested scopes against the allow-list and mints a
// bearer token for sub. Nil scopes fall back to DefaultScopes; an empty
// filtered set fails with ErrNoValidScopes.
func (s *TokenExchangeService) Issue(sub string, scopes []string, ttlSeconds int64) (IssuedToken, error) {
	if scopes == nil {
		scopes = DefaultScopes
	}

	filtered := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if _, ok := s.allowedScopes[scope]; ok {
			filtered = append(filtered, scope)
		}
	}
	if len(filtered) == 0 {
		return IssuedToken{}, ErrNoValidScopes
	}

	ttl := s.defaultTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}

	minted, err := s.codec.MintBearerToken(sub, filtered, ttl)
	if err != nil {
		return IssuedToken{}, err
	}

	return IssuedToken{Token: minted.Token, Scopes: filtered, ExpiresAt: minted.ExpiresAt}, nil
}

// Revoke verifies the token to recover its jti and expiry, then denylists the
// jti until the token would have expired anyway.
func (s *TokenExchangeService) Revoke(tokenString string) (jti string, expiresAt int64, err error) {
	claims, err := s.codec.VerifyBearerToken(tokenString)
	if err != nil {
		return "", 0, token.ErrInvalidBearerToken
	}

	if claims.ID == "" || claims.ExpiresAt == nil {
		return "", 0, token.ErrInvalidBearerToken
	}

	expiresAt = claims.ExpiresAt.Unix()
	s.revoked.Revoke(claims.ID, expiresAt*1000)

	return claims.ID, expiresAt, nil
}

// Check verifies a presented bearer token and rejects it if its jti has been
// revoked. This is the gate bearer-authenticated routes call on every request.
func (s *TokenExchangeService) Check(tokenString string) (*token.BearerClaims, error) {
	claims, err := s.codec.VerifyBearerToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.ID != "" && s.revoked.IsRevoked(claims.ID) {
		return nil, token.ErrInvalidBearerToken
	}

	return claims, nil
}

// GrantsScope reports whether a claim set satisfies a required scope.
// "mcp:*" covers every mcp-prefixed scope and "*" covers everything.
func GrantsScope(claims *token.BearerClaims, required string) bool {
	for _, scope := range claims.Scopes {
		if scope == required || scope == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(scope, ":*"); ok && strings.HasPrefix(required, prefix+":") {
			return true
		}
	}

	return false
}
