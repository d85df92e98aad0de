package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-core/internal/authz"
	"go-auth-core/internal/model"
	"go-auth-core/internal/revocation"
	"go-auth-core/internal/service"
	"go-auth-core/internal/token"
)

const testOwnerID = "owner-1"

type tokenTestEnv struct {
	router   http.Handler
	codec    *token.Codec
	exchange *service.TokenExchangeService
	audit    *service.AuditService
}

func newTokenTestEnv(t *testing.T) *tokenTestEnv {
	t.Helper()

	codec, err := token.NewCodec(token.Config{
		Algorithm:     "HS256",
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		BearerSecret:  []byte("bearer-secret"),
		AccessTTL:     time.Minute,
	})
	require.NoError(t, err)

	exchange := service.NewTokenExchangeService(codec, revocation.NewStore(),
		[]string{"llm:chat", "mcp:read", "mcp:write", "mcp:*", "*"}, 900*time.Second)

	audit, err := service.NewAuditService(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)

	resolver := authz.NewResolver(codec, "session", testOwnerID)
	tokenHandler := NewTokenHandler(exchange, resolver, audit)

	r := chi.NewRouter()
	r.Post("/api/auth/token", tokenHandler.Issue)
	r.Post("/api/auth/token/revoke", tokenHandler.Revoke)

	return &tokenTestEnv{router: r, codec: codec, exchange: exchange, audit: audit}
}

func (e *tokenTestEnv) sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()

	signed, err := e.codec.GenerateAccessToken(token.Claims{UserID: userID, Email: "owner@example.com", Role: "user"})
	require.NoError(t, err)
	return &http.Cookie{Name: "session", Value: signed}
}

func (e *tokenTestEnv) exchangeRequest(t *testing.T, path string, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Message
}

func TestIssueTokenFiltersScopes(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token", `{"scopes":["llm:chat","sudo:everything"]}`, func(r *http.Request) {
		r.AddCookie(env.sessionCookie(t, testOwnerID))
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Token     string   `json:"token"`
		Scopes    []string `json:"scopes"`
		ExpiresAt int64    `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, []string{"llm:chat"}, body.Scopes)
	assert.InDelta(t, time.Now().Add(900*time.Second).Unix(), body.ExpiresAt, 5)

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_issued"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testOwnerID, entries[0].Actor.UserID)
	assert.Equal(t, []string{"llm:chat"}, entries[0].Scopes)
}

func TestIssueTokenEmptyBodyUsesDefaults(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token", "", func(r *http.Request) {
		r.AddCookie(env.sessionCookie(t, testOwnerID))
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Scopes []string `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, service.DefaultScopes, body.Scopes)
}

func TestIssueTokenRejectsAllInvalidScopes(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token", `{"scopes":["sudo:everything"]}`, func(r *http.Request) {
		r.AddCookie(env.sessionCookie(t, testOwnerID))
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No valid scopes requested", errorMessage(t, rec))
}

func TestIssueTokenOriginMismatch(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token", "", func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.example.net")
		r.AddCookie(env.sessionCookie(t, testOwnerID))
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", errorMessage(t, rec))

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_issue_denied"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Reason, "Origin mismatch")
}

func TestIssueTokenMissingOrigin(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token", "", func(r *http.Request) {
		r.Header.Del("Origin")
		r.AddCookie(env.sessionCookie(t, testOwnerID))
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_issue_denied"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Missing Origin", entries[0].Reason)
}

func TestIssueTokenOwnerOnly(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token", "", func(r *http.Request) {
		r.AddCookie(env.sessionCookie(t, "someone-else"))
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_issue_denied"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "owner_only", entries[0].Reason)
	assert.Equal(t, "someone-else", entries[0].Actor.UserID)
}

func TestIssueTokenRejectsBearerHeader(t *testing.T) {
	env := newTokenTestEnv(t)

	// A bearer credential must not mint more bearer tokens; the exchange is
	// session-cookie only.
	signed, err := env.codec.GenerateAccessToken(token.Claims{UserID: testOwnerID, Email: "owner@example.com", Role: "user"})
	require.NoError(t, err)

	rec := env.exchangeRequest(t, "/api/auth/token", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeTokenRoundTrip(t *testing.T) {
	env := newTokenTestEnv(t)

	issued, err := env.exchange.Issue(testOwnerID, []string{"mcp:read"}, 0)
	require.NoError(t, err)

	rec := env.exchangeRequest(t, "/api/auth/token/revoke", `{"token":"`+issued.Token+`"}`, func(r *http.Request) {
		r.AddCookie(env.sessionCookie(t, testOwnerID))
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	// The token dies before its natural expiry.
	_, err = env.exchange.Check(issued.Token)
	assert.Error(t, err)

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_revoked"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].JTI)
}

func TestRevokeTokenFailures(t *testing.T) {
	env := newTokenTestEnv(t)
	cookie := env.sessionCookie(t, testOwnerID)

	rec := env.exchangeRequest(t, "/api/auth/token/revoke", `{}`, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing token", errorMessage(t, rec))

	rec = env.exchangeRequest(t, "/api/auth/token/revoke", `{"token":"garbage"}`, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid token", errorMessage(t, rec))

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_revoke_failed"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRevokeTokenDeniedWithoutSession(t *testing.T) {
	env := newTokenTestEnv(t)

	rec := env.exchangeRequest(t, "/api/auth/token/revoke", `{"token":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "token_revoke_denied"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
