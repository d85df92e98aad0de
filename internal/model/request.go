package model

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

// IssueTokenRequest is the body of POST /api/auth/token. Both fields are
// optional; omitted scopes fall back to the default scope set.
type IssueTokenRequest struct {
	Scopes     []string `json:"scopes"`
	TTLSeconds int64    `json:"ttlSeconds"`
}

type RevokeTokenRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	User   AuthUser  `json:"user"`
	Tokens TokenPair `json:"tokens"`
}
