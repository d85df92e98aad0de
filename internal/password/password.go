package password

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	numberChars    = "0123456789"
	specialChars   = `!@#$%^&*(),.?":{}|<>`

	tokenBytes = 32
)

// Requirements configures which character classes a password must contain.
type Requirements struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func DefaultRequirements() Requirements {
	return Requirements{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}
}

// ValidationResult lists every violated rule, not just the first.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Verifier hashes and checks credentials. Hashing is CPU-bound by design;
// callers absorb the blocking cost, since a cheap hash defeats the point.
type Verifier struct {
	cost         int
	requirements Requirements
}

func NewVerifier(requirements Requirements, cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 10
	}
	if requirements.MinLength <= 0 {
		requirements.MinLength = 8
	}

	return &Verifier{cost: cost, requirements: requirements}
}

func (v *Verifier) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// Verify returns false on mismatch and never reports why.
func (v *Verifier) Verify(plaintext string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

func (v *Verifier) Validate(plaintext string) ValidationResult {
	errors := make([]string, 0, 5)

	if len(plaintext) < v.requirements.MinLength {
		errors = append(errors, fmt.Sprintf("Password must be at least %d characters long", v.requirements.MinLength))
	}
	if v.requirements.RequireUppercase && !strings.ContainsFunc(plaintext, unicode.IsUpper) {
		errors = append(errors, "Password must contain at least one uppercase letter")
	}
	if v.requirements.RequireLowercase && !strings.ContainsFunc(plaintext, unicode.IsLower) {
		errors = append(errors, "Password must contain at least one lowercase letter")
	}
	if v.requirements.RequireNumber && !strings.ContainsFunc(plaintext, unicode.IsDigit) {
		errors = append(errors, "Password must contain at least one number")
	}
	if v.requirements.RequireSpecial && !strings.ContainsAny(plaintext, specialChars) {
		errors = append(errors, "Password must contain at least one special character")
	}

	return ValidationResult{Valid: len(errors) == 0, Errors: errors}
}

// GenerateResetToken returns a 256-bit hex token from a CSPRNG. Only the
// sha256 of the token is ever stored; the raw value is shown once.
func (v *Verifier) GenerateResetToken() (string, error) {
	return randomHexToken()
}

func (v *Verifier) GenerateVerificationToken() (string, error) {
	return randomHexToken()
}

// HashToken is the one-way transform applied to reset and verification
// tokens before storage. Comparison happens by re-hashing on verify.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// GenerateRandomPassword builds a password guaranteed to satisfy the active
// character-class rules, then shuffles it.
func (v *Verifier) GenerateRandomPassword(length int) (string, error) {
	if length < v.requirements.MinLength {
		length = v.requirements.MinLength
	}

	var charset string
	var chars []byte

	pick := func(set string) error {
		c, err := randomByte(set)
		if err != nil {
			return err
		}
		charset += set
		chars = append(chars, c)
		return nil
	}

	if v.requirements.RequireUppercase {
		if err := pick(uppercaseChars); err != nil {
			return "", err
		}
	}
	if v.requirements.RequireLowercase {
		if err := pick(lowercaseChars); err != nil {
			return "", err
		}
	}
	if v.requirements.RequireNumber {
		if err := pick(numberChars); err != nil {
			return "", err
		}
	}
	if v.requirements.RequireSpecial {
		if err := pick(specialChars); err != nil {
			return "", err
		}
	}

	if charset == "" {
		charset = uppercaseChars + lowercaseChars + numberChars
	}

	for len(chars) < length {
		c, err := randomByte(charset)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	if err := shuffle(chars); err != nil {
		return "", err
	}

	return string(chars), nil
}

// CalculateStrength scores a password 0-100 from length tiers and character
// class presence. Advisory only, never a gate.
func CalculateStrength(plaintext string) int {
	strength := 0

	if len(plaintext) >= 8 {
		strength += 20
	}
	if len(plaintext) >= 12 {
		strength += 10
	}
	if len(plaintext) >= 16 {
		strength += 10
	}

	if strings.ContainsFunc(plaintext, unicode.IsLower) {
		strength += 15
	}
	if strings.ContainsFunc(plaintext, unicode.IsUpper) {
		strength += 15
	}
	if strings.ContainsFunc(plaintext, unicode.IsDigit) {
		strength += 15
	}
	if strings.ContainsAny(plaintext, specialChars) {
		strength += 15
	}

	if strength > 100 {
		strength = 100
	}

	return strength
}

func randomHexToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

func randomByte(set string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("random index: %w", err)
	}

	return set[idx.Int64()], nil
}

func shuffle(chars []byte) error {
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("shuffle: %w", err)
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}

	return nil
}
