package service

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-core/internal/model"
	"go-auth-core/internal/password"
	"go-auth-core/internal/token"
)

const defaultRole = "user"

// AuthResult is what register and login hand back to the caller: the public
// user view plus a freshly minted token pair.
type AuthResult struct {
	User   model.AuthUser
	Tokens model.TokenPair
}

// PasswordReset is the artifact set of a reset request. The caller stores
// HashedToken and ExpiresAt on the user record and emails the raw Token; the
// orchestrator itself persists nothing.
type PasswordReset struct {
	Token       string
	HashedToken string
	ExpiresAt   time.Time
}

// AuthService coordinates the credential verifier and the token codec. It
// operates on caller-supplied user records and never touches storage: the
// caller persists whatever state a call mutated, under its own concurrency
// control.
type AuthService struct {
	verifier         *password.Verifier
	codec            *token.Codec
	maxLoginAttempts int
	lockoutDuration  time.Duration
}

func NewAuthService(verifier *password.Verifier, codec *token.Codec, maxLoginAttempts int, lockoutDuration time.Duration) *AuthService {
	if maxLoginAttempts <= 0 {
		maxLoginAttempts = 5
	}
	if lockoutDuration <= 0 {
		lockoutDuration = 30 * time.Minute
	}

	return &AuthService{
		verifier:         verifier,
		codec:            codec,
		maxLoginAttempts: maxLoginAttempts,
		lockoutDuration:  lockoutDuration,
	}
}

// Register validates and hashes the password, prepares the email verification
// artifacts and mints a token pair. It returns the full record for the caller
// to persist, the result with the sanitized user view, and the raw
// verification token to be emailed (its hash is already on the record).
func (s *AuthService) Register(input model.RegisterRequest) (model.User, AuthResult, string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return model.User{}, AuthResult{}, "", &model.ValidationError{Reasons: []string{"Email is required"}}
	}

	if validation := s.verifier.Validate(input.Password); !validation.Valid {
		return model.User{}, AuthResult{}, "", &model.ValidationError{Reasons: validation.Errors}
	}

	hash, err := s.verifier.Hash(input.Password)
	if err != nil {
		return model.User{}, AuthResult{}, "", err
	}

	verificationToken, err := s.verifier.GenerateVerificationToken()
	if err != nil {
		return model.User{}, AuthResult{}, "", err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:                     uuid.NewString(),
		Email:                  email,
		PasswordHash:           hash,
		Role:                   defaultRole,
		IsActive:               true,
		IsEmailVerified:        false,
		EmailVerificationToken: password.HashToken(verificationToken),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	tokens, err := s.codec.GenerateTokenPair(token.Claims{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return model.User{}, AuthResult{}, "", err
	}

	return user, AuthResult{User: user.Public(), Tokens: tokens}, verificationToken, nil
}

// Login implements the lockout state machine. On failure it mutates the
// counter and lockout fields on the supplied record; the caller must persist
// the record whether or not an error is returned.
func (s *AuthService) Login(input model.LoginRequest, user *model.User) (AuthResult, error) {
	now := time.Now()

	if user.Locked(now) {
		return AuthResult{}, &model.AccountLockedError{Until: *user.LockedUntil}
	}

	if !user.IsActive {
		return AuthResult{}, model.ErrAccountInactive
	}

	if !s.verifier.Verify(input.Password, user.PasswordHash) {
		user.FailedLoginAttempts++
		user.UpdatedAt = now.UTC()

		if user.FailedLoginAttempts >= s.maxLoginAttempts {
			until := now.Add(s.lockoutDuration)
			user.LockedUntil = &until
			return AuthResult{}, &model.AccountLockedError{Until: until}
		}

		return AuthResult{}, model.ErrInvalidCredentials
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.UpdatedAt = now.UTC()

	tokens, err := s.codec.GenerateTokenPair(token.Claims{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{User: user.Public(), Tokens: tokens}, nil
}

// RefreshTokenUserID verifies a refresh token and returns the user id it was
// issued for, so the caller can load the record before calling RefreshTokens.
func (s *AuthService) RefreshTokenUserID(refreshToken string) (string, error) {
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", model.ErrInvalidToken
	}

	return claims.UserID, nil
}

func (s *AuthService) RefreshTokens(refreshToken string, user *model.User) (model.TokenPair, error) {
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return model.TokenPair{}, model.ErrInvalidToken
	}

	if claims.UserID != user.ID {
		return model.TokenPair{}, model.ErrInvalidToken
	}

	return s.codec.GenerateTokenPair(token.Claims{UserID: user.ID, Email: user.Email, Role: user.Role})
}

// VerifyEmail compares the hash of the supplied token against the stored
// hash. On success it marks the email verified and clears the artifact.
func (s *AuthService) VerifyEmail(rawToken string, user *model.User) error {
	if user.EmailVerificationToken == "" || password.HashToken(rawToken) != user.EmailVerificationToken {
		return model.ErrInvalidToken
	}

	user.IsEmailVerified = true
	user.EmailVerificationToken = ""
	user.UpdatedAt = time.Now().UTC()

	return nil
}

// RequestPasswordReset generates the reset artifacts. The raw token goes to
// the user exactly once; only the hash and expiry belong on the record.
func (s *AuthService) RequestPasswordReset(email string) (PasswordReset, error) {
	resetToken, err := s.verifier.GenerateResetToken()
	if err != nil {
		return PasswordReset{}, err
	}

	return PasswordReset{
		Token:       resetToken,
		HashedToken: password.HashToken(resetToken),
		ExpiresAt:   time.Now().Add(time.Hour).UTC(),
	}, nil
}

func (s *AuthService) ResetPassword(rawToken string, newPassword string, user *model.User) error {
	if validation := s.verifier.Validate(newPassword); !validation.Valid {
		return &model.ValidationError{Reasons: validation.Errors}
	}

	if user.PasswordResetToken == "" || password.HashToken(rawToken) != user.PasswordResetToken {
		return model.ErrInvalidToken
	}

	if user.PasswordResetExpires != nil && user.PasswordResetExpires.Before(time.Now()) {
		return model.ErrTokenExpired
	}

	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.PasswordResetToken = ""
	user.PasswordResetExpires = nil
	user.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *AuthService) ChangePassword(user *model.User, currentPassword string, newPassword string) error {
	if !s.verifier.Verify(currentPassword, user.PasswordHash) {
		return model.ErrInvalidCredentials
	}

	if validation := s.verifier.Validate(newPassword); !validation.Valid {
		return &model.ValidationError{Reasons: validation.Errors}
	}

	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()

	return nil
}

// VerifyAccessToken is pure delegation to the codec.
func (s *AuthService) VerifyAccessToken(tokenString string) (*token.AccessClaims, error) {
	return s.codec.VerifyAccessToken(tokenString)
}
