package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// User related errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Authentication errors. ErrInvalidCredentials covers both "unknown
	// email" and "wrong password" so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is not active")

	// Token errors. ErrInvalidToken is deliberately generic: it never says
	// whether the signature, shape or ownership check failed.
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenExpired = errors.New("reset token has expired")

	// Generic errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError reports every violated rule, not just the first.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Reasons, ", ")
}

// AccountLockedError carries the remaining lockout window. Lockout is the one
// authentication failure that is intentionally explicit, so legitimate users
// understand why they are blocked.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked, try again in %d minutes", e.MinutesRemaining())
}

func (e *AccountLockedError) MinutesRemaining() int {
	minutes := int(time.Until(e.Until).Minutes()) + 1
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
