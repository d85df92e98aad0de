package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-core/internal/model"
)

// Verification failures are deliberately generic. The codec never tells a
// caller whether a token was expired, malformed or carried a bad signature.
var (
	ErrInvalidAccessToken  = errors.New("invalid or expired access token")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidBearerToken  = errors.New("invalid or expired bearer token")
)

// Claims is the identity a token pair is minted for.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// AccessClaims is the closed claim set of an access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the user id. A refresh token is exchanged for a
// new pair and never grants direct resource access.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// BearerClaims is the claim set of a scoped exchange token: sub, scopes, jti
// and expiry. The jti is what the revocation store keys on.
type BearerClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// MintedBearer is the result of minting a bearer token.
type MintedBearer struct {
	Token     string
	JTI       string
	ExpiresAt int64 // epoch seconds, matches the exp claim
}

type Config struct {
	Algorithm     string
	AccessSecret  []byte
	RefreshSecret []byte
	BearerSecret  []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Codec signs and verifies the three token classes. Each class has its own
// secret so compromise of one cannot forge the others.
type Codec struct {
	method        jwt.SigningMethod
	accessSecret  []byte
	refreshSecret []byte
	bearerSecret  []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewCodec(cfg Config) (*Codec, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	switch method {
	case jwt.SigningMethodHS256, jwt.SigningMethodHS384, jwt.SigningMethodHS512:
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.BearerSecret) == 0 {
		return nil, errors.New("all token secrets are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 168 * time.Hour
	}

	return &Codec{
		method:        method,
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		bearerSecret:  cfg.BearerSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

func (c *Codec) GenerateTokenPair(claims Claims) (model.TokenPair, error) {
	accessToken, err := c.GenerateAccessToken(claims)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := c.GenerateRefreshToken(claims)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (c *Codec) GenerateAccessToken(claims Claims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(c.method, AccessClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	})

	signed, err := token.SignedString(c.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

func (c *Codec) GenerateRefreshToken(claims Claims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(c.method, RefreshClaims{
		UserID: claims.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
	})

	signed, err := token.SignedString(c.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}

	return signed, nil
}

func (c *Codec) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenString, claims, c.accessSecret); err != nil {
		return nil, ErrInvalidAccessToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// VerifyRefreshToken checks signature and expiry and returns the embedded
// user id. Refresh tokens are not tracked server-side: an old refresh token
// stays valid until natural expiry even after a newer one is issued.
func (c *Codec) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenString, claims, c.refreshSecret); err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidRefreshToken
	}

	return claims, nil
}

// MintBearerToken signs a scoped exchange token with a fresh jti.
func (c *Codec) MintBearerToken(sub string, scopes []string, ttl time.Duration) (MintedBearer, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(c.method, BearerClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(c.bearerSecret)
	if err != nil {
		return MintedBearer{}, fmt.Errorf("sign bearer token: %w", err)
	}

	return MintedBearer{Token: signed, JTI: jti, ExpiresAt: expiresAt.Unix()}, nil
}

func (c *Codec) VerifyBearerToken(tokenString string) (*BearerClaims, error) {
	claims := &BearerClaims{}
	if err := c.verify(tokenString, claims, c.bearerSecret); err != nil {
		return nil, ErrInvalidBearerToken
	}

	return claims, nil
}

// Decode parses a token without verifying it. Inspection only; nothing
// returned here may be used to authorize an action.
func (c *Codec) Decode(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	return claims, nil
}

// TokenExpiry returns the unverified exp claim.
func (c *Codec) TokenExpiry(tokenString string) (time.Time, bool) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// IsTokenExpired treats a token without a readable expiry as expired.
func (c *Codec) IsTokenExpired(tokenString string) bool {
	expiry, ok := c.TokenExpiry(tokenString)
	if !ok {
		return true
	}

	return !time.Now().Before(expiry)
}

func (c *Codec) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		// Pinning the algorithm prevents algorithm-confusion attacks; the
		// token header is never trusted.
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}

	return nil
}
