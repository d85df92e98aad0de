package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-auth-core/internal/authz"
	"go-auth-core/internal/config"
	"go-auth-core/internal/database"
	"go-auth-core/internal/handler"
	"go-auth-core/internal/mailer"
	"go-auth-core/internal/middleware"
	"go-auth-core/internal/password"
	"go-auth-core/internal/repository"
	"go-auth-core/internal/revocation"
	"go-auth-core/internal/router"
	"go-auth-core/internal/service"
	"go-auth-core/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	userRepo := repository.NewUserRepository(db.Pool)
	slog.Info("database ready")

	verifier := password.NewVerifier(password.Requirements{
		MinLength:        cfg.PasswordMinLength,
		RequireUppercase: cfg.PasswordRequireUpper,
		RequireLowercase: cfg.PasswordRequireLower,
		RequireNumber:    cfg.PasswordRequireNumber,
		RequireSpecial:   cfg.PasswordRequireSpecial,
	}, cfg.BcryptCost)

	codec, err := token.NewCodec(token.Config{
		Algorithm:     cfg.JWTAlgorithm,
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		BearerSecret:  []byte(cfg.JWTBearerSecret),
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	revoked := revocation.NewStore()
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	go revoked.StartJanitor(janitorCtx, time.Minute)

	authService := service.NewAuthService(verifier, codec, cfg.MaxLoginAttempts, cfg.LockoutDuration)
	exchangeService := service.NewTokenExchangeService(codec, revoked, cfg.BearerAllowedScopes, cfg.BearerDefaultTTL)

	auditService, err := service.NewAuditService(cfg.AuditLogFile)
	if err != nil {
		janitorCancel()
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit service: %w", err)
	}

	resolver := authz.NewResolver(codec, cfg.SessionCookieName, cfg.OwnerUserID)
	mail := mailer.New(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		BaseURL:  cfg.AppBaseURL,
	}, slog.Default())

	authMiddleware := middleware.NewAuthMiddleware(codec)

	appRouter := router.New(cfg, authMiddleware, exchangeService, router.Handlers{
		Auth:  handler.NewAuthHandler(authService, userRepo, mail, auditService),
		Token: handler.NewTokenHandler(exchangeService, resolver, auditService),
		User:  handler.NewUserHandler(userRepo, auditService),
		Audit: handler.NewAuditHandler(auditService),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			func() {
				janitorCancel()
			},
			func() {
				db.Close()
			},
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
