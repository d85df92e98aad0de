package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-auth-core/internal/middleware"
	"go-auth-core/internal/model"
	"go-auth-core/internal/password"
	"go-auth-core/internal/service"
	"go-auth-core/pkg/apierror"
)

// UserStore is the slice of the user repository the auth surface needs.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByEmailVerificationToken(ctx context.Context, hashedToken string) (model.User, error)
	FindByPasswordResetToken(ctx context.Context, hashedToken string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
}

// Mailer delivers the account lifecycle emails carrying raw one-time tokens.
type Mailer interface {
	SendVerificationEmail(to string, token string) error
	SendPasswordResetEmail(to string, token string) error
}

type AuthHandler struct {
	service *service.AuthService
	users   UserStore
	mailer  Mailer
	audit   *service.AuditService
}

func NewAuthHandler(service *service.AuthService, users UserStore, mailer Mailer, audit *service.AuditService) *AuthHandler {
	return &AuthHandler{service: service, users: users, mailer: mailer, audit: audit}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	exists, err := h.users.ExistsByEmail(r.Context(), payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if exists {
		writeError(w, model.ErrUserAlreadyExists)
		return
	}

	user, result, verificationToken, err := h.service.Register(payload)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	if err := h.mailer.SendVerificationEmail(user.Email, verificationToken); err != nil {
		slog.Warn("verification email failed", "user_id", user.ID, "error", err.Error())
	}

	h.audit.Record(model.AuditEntry{
		Event: "user_registered",
		Actor: model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r), UserAgent: r.UserAgent()},
	})

	writeSuccess(w, http.StatusCreated, model.AuthResponse{User: result.User, Tokens: result.Tokens}, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	user, err := h.users.FindByEmail(r.Context(), payload.Email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			// Unknown email and wrong password are indistinguishable.
			writeError(w, model.ErrInvalidCredentials)
			return
		}
		writeError(w, err)
		return
	}

	result, loginErr := h.service.Login(payload, &user)

	// Failed attempts mutate the counter and lockout fields, so the record is
	// written back whether or not the login succeeded.
	if err := h.users.Update(r.Context(), user); err != nil {
		slog.Error("persist login state failed", "user_id", user.ID, "error", err.Error())
	}

	if loginErr != nil {
		h.recordLoginFailure(r, &user, loginErr)
		writeError(w, loginErr)
		return
	}

	h.audit.Record(model.AuditEntry{
		Event: "login_succeeded",
		Actor: model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r), UserAgent: r.UserAgent()},
	})

	writeSuccess(w, http.StatusOK, model.AuthResponse{User: result.User, Tokens: result.Tokens}, nil)
}

func (h *AuthHandler) recordLoginFailure(r *http.Request, user *model.User, loginErr error) {
	event := "login_failed"
	var lockedErr *model.AccountLockedError
	if errors.As(loginErr, &lockedErr) {
		event = "account_locked"
	}

	h.audit.Record(model.AuditEntry{
		Event:  event,
		Actor:  model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r), UserAgent: r.UserAgent()},
		Reason: loginErr.Error(),
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		writeError(w, apierror.New("BAD_REQUEST", "refreshToken is required", "refreshToken", http.StatusBadRequest))
		return
	}

	userID, err := h.service.RefreshTokenUserID(payload.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			writeError(w, model.ErrInvalidToken)
			return
		}
		writeError(w, err)
		return
	}

	if !user.IsActive {
		writeError(w, model.ErrAccountInactive)
		return
	}

	tokens, err := h.service.RefreshTokens(payload.RefreshToken, &user)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	payload.Token = strings.TrimSpace(payload.Token)
	if payload.Token == "" {
		writeError(w, apierror.New("BAD_REQUEST", "token is required", "token", http.StatusBadRequest))
		return
	}

	user, err := h.users.FindByEmailVerificationToken(r.Context(), password.HashToken(payload.Token))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			writeError(w, model.ErrInvalidToken)
			return
		}
		writeError(w, err)
		return
	}

	if err := h.service.VerifyEmail(payload.Token, &user); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.Update(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(model.AuditEntry{
		Event: "email_verified",
		Actor: model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r), UserAgent: r.UserAgent()},
	})

	writeSuccess(w, http.StatusOK, map[string]any{"verified": true}, nil)
}

// ForgotPassword always answers the same way so the endpoint cannot be used
// to probe which emails have accounts.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	genericResponse := map[string]any{"message": "If the email exists, a reset link has been sent"}

	user, err := h.users.FindByEmail(r.Context(), payload.Email)
	if err != nil {
		writeSuccess(w, http.StatusOK, genericResponse, nil)
		return
	}

	reset, err := h.service.RequestPasswordReset(user.Email)
	if err != nil {
		writeSuccess(w, http.StatusOK, genericResponse, nil)
		return
	}

	user.PasswordResetToken = reset.HashedToken
	user.PasswordResetExpires = &reset.ExpiresAt

	if err := h.users.Update(r.Context(), user); err != nil {
		slog.Error("persist reset token failed", "user_id", user.ID, "error", err.Error())
		writeSuccess(w, http.StatusOK, genericResponse, nil)
		return
	}

	if err := h.mailer.SendPasswordResetEmail(user.Email, reset.Token); err != nil {
		slog.Warn("password reset email failed", "user_id", user.ID, "error", err.Error())
	}

	h.audit.Record(model.AuditEntry{
		Event: "password_reset_requested",
		Actor: model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r), UserAgent: r.UserAgent()},
	})

	writeSuccess(w, http.StatusOK, genericResponse, nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	payload.Token = strings.TrimSpace(payload.Token)
	if payload.Token == "" {
		writeError(w, apierror.New("BAD_REQUEST", "token is required", "token", http.StatusBadRequest))
		return
	}

	user, err := h.users.FindByPasswordResetToken(r.Context(), password.HashToken(payload.Token))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			writeError(w, model.ErrInvalidToken)
			return
		}
		writeError(w, err)
		return
	}

	if err := h.service.ResetPassword(payload.Token, payload.NewPassword, &user); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.Update(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(model.AuditEntry{
		Event: "password_reset_completed",
		Actor: model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r), UserAgent: r.UserAgent()},
	})

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password has been reset"}, nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	var payload model.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ChangePassword(&user, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.Update(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(model.AuditEntry{
		Event: "password_changed",
		Actor: actorFromRequest(r),
	})

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password has been changed"}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public(), nil)
}
