package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-core/internal/middleware"
	"go-auth-core/internal/model"
	"go-auth-core/internal/password"
	"go-auth-core/internal/service"
	"go-auth-core/internal/token"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{}}
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) FindByEmailVerificationToken(_ context.Context, hashedToken string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.EmailVerificationToken != "" && u.EmailVerificationToken == hashedToken {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) FindByPasswordResetToken(_ context.Context, hashedToken string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PasswordResetToken != "" && u.PasswordResetToken == hashedToken {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *fakeUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) Update(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return model.ErrUserNotFound
	}
	s.users[u.ID] = u
	return nil
}

type fakeMailer struct {
	mu                 sync.Mutex
	verificationTokens map[string]string
	resetTokens        map[string]string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{verificationTokens: map[string]string{}, resetTokens: map[string]string{}}
}

func (m *fakeMailer) SendVerificationEmail(to string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationTokens[to] = token
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(to string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[to] = token
	return nil
}

type authTestEnv struct {
	router http.Handler
	store  *fakeUserStore
	mailer *fakeMailer
	audit  *service.AuditService
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()

	verifier := password.NewVerifier(password.DefaultRequirements(), 4)
	codec, err := token.NewCodec(token.Config{
		Algorithm:     "HS256",
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		BearerSecret:  []byte("bearer-secret"),
		AccessTTL:     time.Minute,
	})
	require.NoError(t, err)

	audit, err := service.NewAuditService(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)

	store := newFakeUserStore()
	mail := newFakeMailer()
	authService := service.NewAuthService(verifier, codec, 5, 30*time.Minute)
	authHandler := NewAuthHandler(authService, store, mail, audit)
	authMiddleware := middleware.NewAuthMiddleware(codec)

	r := chi.NewRouter()
	r.Route("/api/v1/auth", func(auth chi.Router) {
		auth.Post("/register", authHandler.Register)
		auth.Post("/login", authHandler.Login)
		auth.Post("/refresh", authHandler.Refresh)
		auth.Post("/verify-email", authHandler.VerifyEmail)
		auth.Post("/forgot-password", authHandler.ForgotPassword)
		auth.Post("/reset-password", authHandler.ResetPassword)
		auth.With(authMiddleware.RequireAuth).Post("/change-password", authHandler.ChangePassword)
		auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
	})

	return &authTestEnv{router: r, store: store, mailer: mail, audit: audit}
}

func (e *authTestEnv) do(t *testing.T, method string, path string, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (e *authTestEnv) register(t *testing.T, email string, pass string) model.AuthResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"`+email+`","password":"`+pass+`"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeEnvelope(t, rec)
	var resp model.AuthResponse
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	return resp
}

func TestRegisterEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)

	resp := env.register(t, "a@b.com", "NewPass1!")
	assert.Equal(t, "a@b.com", resp.User.Email)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	// The raw verification token went out by email; only its hash is stored.
	raw := env.mailer.verificationTokens["a@b.com"]
	require.NotEmpty(t, raw)
	stored, err := env.store.FindByID(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, password.HashToken(raw), stored.EmailVerificationToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newAuthTestEnv(t)
	env.register(t, "a@b.com", "NewPass1!")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"A@B.com","password":"NewPass1!"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeEnvelope(t, rec).Error.Code)
}

func TestRegisterWeakPassword(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"a@b.com","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Details, "at least 8 characters")
}

func TestLoginEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)
	env.register(t, "a@b.com", "NewPass1!")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"NewPass1!"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeEnvelope(t, rec)
	var resp model.AuthResponse
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	assert.NotEmpty(t, resp.Tokens.AccessToken)
}

func TestLoginFailurePersistsCounter(t *testing.T) {
	env := newAuthTestEnv(t)
	resp := env.register(t, "a@b.com", "NewPass1!")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"WrongPass1!"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The failed attempt landed in storage, not just in memory.
	stored, err := env.store.FindByID(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginAttempts)

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "login_failed"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoginUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	env := newAuthTestEnv(t)
	env.register(t, "a@b.com", "NewPass1!")

	unknown := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"nobody@b.com","password":"NewPass1!"}`, nil)
	wrong := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"WrongPass1!"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLockoutSurfacesRemainingMinutes(t *testing.T) {
	env := newAuthTestEnv(t)
	env.register(t, "a@b.com", "NewPass1!")

	var rec *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		rec = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"WrongPass1!"}`, nil)
	}

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "ACCOUNT_LOCKED", body.Error.Code)
	assert.Contains(t, body.Error.Message, "minutes")

	entries, _, err := env.audit.Query(model.AuditQuery{Event: "account_locked"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)
	resp := env.register(t, "a@b.com", "NewPass1!")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"`+resp.Tokens.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &pair))
	assert.NotEmpty(t, pair.AccessToken)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"garbage"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyEmailEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)
	resp := env.register(t, "a@b.com", "NewPass1!")
	raw := env.mailer.verificationTokens["a@b.com"]

	rec := env.do(t, http.MethodPost, "/api/v1/auth/verify-email", `{"token":"`+raw+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := env.store.FindByID(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)

	// Single-use.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/verify-email", `{"token":"`+raw+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordIsUnconditional(t *testing.T) {
	env := newAuthTestEnv(t)
	env.register(t, "a@b.com", "NewPass1!")

	known := env.do(t, http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"a@b.com"}`, nil)
	unknown := env.do(t, http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"nobody@b.com"}`, nil)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	assert.NotEmpty(t, env.mailer.resetTokens["a@b.com"])
	assert.Empty(t, env.mailer.resetTokens["nobody@b.com"])
}

func TestResetPasswordEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)
	env.register(t, "a@b.com", "NewPass1!")

	env.do(t, http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"a@b.com"}`, nil)
	raw := env.mailer.resetTokens["a@b.com"]
	require.NotEmpty(t, raw)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/reset-password", `{"token":"`+raw+`","newPassword":"FreshPass2@"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Old password is dead, new one works.
	old := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"NewPass1!"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, old.Code)

	fresh := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"FreshPass2@"}`, nil)
	assert.Equal(t, http.StatusOK, fresh.Code)

	// The artifact is single-use.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/reset-password", `{"token":"`+raw+`","newPassword":"OtherPass3#"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)
	resp := env.register(t, "a@b.com", "NewPass1!")
	bearer := "Bearer " + resp.Tokens.AccessToken

	rec := env.do(t, http.MethodPost, "/api/v1/auth/change-password", `{"currentPassword":"NewPass1!","newPassword":"FreshPass2@"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/change-password", `{"currentPassword":"NewPass1!","newPassword":"FreshPass2@"}`, func(r *http.Request) {
		r.Header.Set("Authorization", bearer)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fresh := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"FreshPass2@"}`, nil)
	assert.Equal(t, http.StatusOK, fresh.Code)
}

func TestMeEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)
	resp := env.register(t, "a@b.com", "NewPass1!")

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.Tokens.AccessToken)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user model.AuthUser
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &user))
	assert.Equal(t, resp.User.ID, user.ID)
	assert.Equal(t, "a@b.com", user.Email)
}
