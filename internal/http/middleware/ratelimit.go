package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tendant/simple-idm-recovery/internal/config"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// RateLimiters are the IP limits applied per route group.
type RateLimiters struct {
	Auth     func(http.Handler) http.Handler
	Recovery func(http.Handler) http.Handler
	Verify   func(http.Handler) http.Handler
}

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
// These complement the per-email limits enforced by the services.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) RateLimiters {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return RateLimiters{Auth: noOp, Recovery: noOp, Verify: noOp}
	}

	return RateLimiters{
		Auth: RateLimit(RateLimitConfig{
			Requests: cfg.AuthRequests,
			Window:   cfg.AuthWindow,
			Logger:   logger,
		}),
		Recovery: RateLimit(RateLimitConfig{
			Requests: cfg.RecoveryRequests,
			Window:   cfg.RecoveryWindow,
			Logger:   logger,
		}),
		Verify: RateLimit(RateLimitConfig{
			Requests: cfg.VerifyRequests,
			Window:   cfg.VerifyWindow,
			Logger:   logger,
		}),
	}
}
