package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-core/internal/config"
	"go-auth-core/internal/handler"
	"go-auth-core/internal/middleware"
	"go-auth-core/internal/service"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	Token *handler.TokenHandler
	User  *handler.UserHandler
	Audit *handler.AuditHandler
}

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	exchange *service.TokenExchangeService,
	handlers Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM, cfg.TokenRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The token exchange protocol lives outside /api/v1: its paths and body
	// shapes are a fixed contract with external agent clients.
	r.Post("/api/auth/token", handlers.Token.Issue)
	r.Post("/api/auth/token/revoke", handlers.Token.Revoke)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", handlers.Auth.Register)
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/refresh", handlers.Auth.Refresh)
			auth.Post("/verify-email", handlers.Auth.VerifyEmail)
			auth.Post("/forgot-password", handlers.Auth.ForgotPassword)
			auth.Post("/reset-password", handlers.Auth.ResetPassword)
			auth.With(authMiddleware.RequireAuth).Post("/change-password", handlers.Auth.ChangePassword)
			auth.With(authMiddleware.RequireAuth).Get("/me", handlers.Auth.Me)
		})

		api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles("admin")).Get("/users", handlers.User.List)
		api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles("admin")).Get("/users/{id}", handlers.User.Get)
		api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles("admin")).Put("/users/{id}/active", handlers.User.SetActive)
		api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles("admin")).Get("/audit", handlers.Audit.List)

		api.With(middleware.BearerAuth(exchange, "mcp:read")).Get("/integration/ping", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
	})

	return r
}
