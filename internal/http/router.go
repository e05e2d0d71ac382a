package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/config"
	"github.com/tendant/simple-idm-recovery/internal/http/features/account"
	"github.com/tendant/simple-idm-recovery/internal/http/features/email"
	"github.com/tendant/simple-idm-recovery/internal/http/features/me"
	"github.com/tendant/simple-idm-recovery/internal/http/features/password"
	"github.com/tendant/simple-idm-recovery/internal/http/features/session"
	"github.com/tendant/simple-idm-recovery/internal/http/middleware"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Actions         *auth.Actions
	AccountService  *auth.AccountService
	SessionService  *auth.SessionService
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	MaxRequestBody  int64
	CookieSecure    bool
	// HealthCheck reports whether backing stores are reachable.
	HealthCheck func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBody))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthCheck(ctx); err != nil {
				cfg.Logger.ErrorContext(r.Context(), "health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	requireAuth := middleware.Auth(cfg.SessionService)
	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cfg.CookieSecure

	// Password reset
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters.Recovery)
		password.NewHandler(cfg.Logger, cfg.Actions).RegisterRoutes(r)
	})

	// Email verification
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters.Verify)
		email.NewHandler(cfg.Logger, cfg.Actions).RegisterRoutes(r, requireAuth)
	})

	// Registration and sessions
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters.Auth)
		account.NewHandler(cfg.Logger, cfg.AccountService).RegisterRoutes(r)
		session.NewHandler(cfg.Logger, cfg.AccountService, cfg.SessionService, cookieConfig).RegisterRoutes(r, requireAuth)
	})

	// Profile
	me.NewHandler(cfg.Logger, cfg.AccountService).RegisterRoutes(r, requireAuth)

	return r
}
