package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go-auth-core/internal/authz"
	"go-auth-core/internal/model"
	"go-auth-core/internal/service"
)

// TokenHandler is the bearer token exchange surface. Its wire contract is
// fixed: bare {"token":...,"scopes":...,"expiresAt":...} and {"ok":true}
// bodies with {"error":{"message":...}} failures, not the standard envelope,
// because external agent clients parse these shapes literally.
type TokenHandler struct {
	exchange *service.TokenExchangeService
	resolver *authz.Resolver
	audit    *service.AuditService
}

func NewTokenHandler(exchange *service.TokenExchangeService, resolver *authz.Resolver, audit *service.AuditService) *TokenHandler {
	return &TokenHandler{exchange: exchange, resolver: resolver, audit: audit}
}

// Issue handles POST /api/auth/token. Order matters: same-origin first, then
// session authentication, then the owner check. Every denial is audited
// before the response is written.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if reason, ok := sameOrigin(r); !ok {
		h.denyIssue(w, r, nil, reason)
		return
	}

	identity, err := h.resolver.Authorize(r, authz.Options{AllowSession: true})
	if err != nil {
		h.denyIssue(w, r, nil, "Unauthorized")
		return
	}

	if !h.resolver.IsOwner(identity) {
		h.denyIssue(w, r, identity, "owner_only")
		return
	}

	// An empty body means default scopes and TTL.
	var payload model.IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "Invalid JSON body")
		return
	}

	issued, err := h.exchange.Issue(identity.UserID, payload.Scopes, payload.TTLSeconds)
	if err != nil {
		if errors.Is(err, service.ErrNoValidScopes) {
			h.audit.Record(model.AuditEntry{
				Event:  "token_issue_denied",
				Actor:  h.actor(r, identity),
				Reason: "no valid scopes",
			})
			badRequest(w, "No valid scopes requested")
			return
		}

		unauthorized(w, "Unauthorized")
		return
	}

	h.audit.Record(model.AuditEntry{
		Event:     "token_issued",
		Actor:     h.actor(r, identity),
		Scopes:    issued.Scopes,
		ExpiresAt: issued.ExpiresAt,
	})

	writeRawJSON(w, http.StatusOK, issued)
}

// Revoke handles POST /api/auth/token/revoke under the same gates as Issue.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if reason, ok := sameOrigin(r); !ok {
		h.denyRevoke(w, r, nil, reason)
		return
	}

	identity, err := h.resolver.Authorize(r, authz.Options{AllowSession: true})
	if err != nil {
		h.denyRevoke(w, r, nil, "Unauthorized")
		return
	}

	if !h.resolver.IsOwner(identity) {
		h.denyRevoke(w, r, identity, "owner_only")
		return
	}

	var payload model.RevokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Token) == "" {
		badRequest(w, "Missing token")
		return
	}

	jti, expiresAt, err := h.exchange.Revoke(strings.TrimSpace(payload.Token))
	if err != nil {
		h.audit.Record(model.AuditEntry{
			Event:  "token_revoke_failed",
			Actor:  h.actor(r, identity),
			Reason: "invalid token",
		})
		badRequest(w, "Invalid token")
		return
	}

	h.audit.Record(model.AuditEntry{
		Event:     "token_revoked",
		Actor:     h.actor(r, identity),
		JTI:       jti,
		ExpiresAt: expiresAt,
	})

	writeRawJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *TokenHandler) denyIssue(w http.ResponseWriter, r *http.Request, identity *authz.Identity, reason string) {
	h.audit.Record(model.AuditEntry{
		Event:  "token_issue_denied",
		Actor:  h.actor(r, identity),
		Reason: reason,
	})
	unauthorized(w, "Unauthorized")
}

func (h *TokenHandler) denyRevoke(w http.ResponseWriter, r *http.Request, identity *authz.Identity, reason string) {
	h.audit.Record(model.AuditEntry{
		Event:  "token_revoke_denied",
		Actor:  h.actor(r, identity),
		Reason: reason,
	})
	unauthorized(w, "Unauthorized")
}

func (h *TokenHandler) actor(r *http.Request, identity *authz.Identity) model.AuditActor {
	actor := model.AuditActor{IP: clientIP(r), UserAgent: r.UserAgent()}
	if identity != nil {
		actor.UserID = identity.UserID
		actor.Email = identity.Email
	}
	return actor
}

// sameOrigin is the CSRF gate: the Origin header must match the host the
// request was served on. Requests without an Origin header (curl, server to
// server) are rejected; this surface is meant for the browser UI only.
func sameOrigin(r *http.Request) (reason string, ok bool) {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return "Missing Origin", false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return "Invalid Origin", false
	}

	host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return "Missing Host", false
	}

	if !strings.EqualFold(parsed.Host, host) {
		return fmt.Sprintf("Origin mismatch (%s != %s)", parsed.Host, host), false
	}

	return "", true
}

func writeRawJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeRawJSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]string{"message": message},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeRawJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]string{"message": message},
	})
}
