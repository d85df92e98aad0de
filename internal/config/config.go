package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTAlgorithm     string
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTBearerSecret  string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration

	BearerDefaultTTL    time.Duration
	BearerAllowedScopes []string
	OwnerUserID         string
	SessionCookieName   string

	BcryptCost             int
	PasswordMinLength      int
	PasswordRequireUpper   bool
	PasswordRequireLower   bool
	PasswordRequireNumber  bool
	PasswordRequireSpecial bool
	MaxLoginAttempts       int
	LockoutDuration        time.Duration

	AuditLogFile string

	CORSOrigins       []string
	RateLimitRPM      int
	AuthRateLimitRPM  int
	TokenRateLimitRPM int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AppBaseURL   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		JWTAlgorithm:     getEnv("JWT_ALGORITHM", "HS256"),
		JWTAccessSecret:  strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET")),
		JWTRefreshSecret: strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")),
		JWTBearerSecret:  strings.TrimSpace(os.Getenv("JWT_BEARER_SECRET")),
		JWTAccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:    getDuration("JWT_REFRESH_TTL", 168*time.Hour),

		BearerDefaultTTL:    getDuration("BEARER_DEFAULT_TTL", 15*time.Minute),
		BearerAllowedScopes: splitCSV(getEnv("BEARER_ALLOWED_SCOPES", "llm:chat,mcp:read,mcp:write,mcp:*,*")),
		OwnerUserID:         strings.TrimSpace(os.Getenv("OWNER_USER_ID")),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "session"),

		BcryptCost:             getInt("BCRYPT_COST", 10),
		PasswordMinLength:      getInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireUpper:   getBool("PASSWORD_REQUIRE_UPPERCASE", true),
		PasswordRequireLower:   getBool("PASSWORD_REQUIRE_LOWERCASE", true),
		PasswordRequireNumber:  getBool("PASSWORD_REQUIRE_NUMBER", true),
		PasswordRequireSpecial: getBool("PASSWORD_REQUIRE_SPECIAL", true),
		MaxLoginAttempts:       getInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:        getDuration("LOCKOUT_DURATION", 30*time.Minute),

		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./state/auth-audit.log"),

		CORSOrigins:       splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:  getInt("AUTH_RATE_LIMIT_RPM", 10),
		TokenRateLimitRPM: getInt("TOKEN_RATE_LIMIT_RPM", 30),

		SMTPHost:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:     getInt("SMTP_PORT", 0),
		SMTPUsername: strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword: strings.TrimSpace(os.Getenv("SMTP_PASSWORD")),
		SMTPFrom:     strings.TrimSpace(os.Getenv("SMTP_FROM")),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	if c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.JWTBearerSecret == "" {
		return fmt.Errorf("JWT_BEARER_SECRET is required")
	}

	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.BearerDefaultTTL <= 0 {
		return fmt.Errorf("BEARER_DEFAULT_TTL must be positive")
	}

	if len(c.BearerAllowedScopes) == 0 {
		return fmt.Errorf("BEARER_ALLOWED_SCOPES cannot be empty")
	}

	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}

	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}

	if strings.TrimSpace(c.AuditLogFile) == "" {
		return fmt.Errorf("AUDIT_LOG_FILE cannot be empty")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
