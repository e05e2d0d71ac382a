package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/config"
	"github.com/tendant/simple-idm-recovery/internal/metrics"
	"github.com/tendant/simple-idm-recovery/internal/notification"
	"github.com/tendant/simple-idm-recovery/internal/ratelimit"
	"github.com/tendant/simple-idm-recovery/internal/repository"
)

func dbConfig(cfg *config.Config) repository.Config {
	return repository.Config{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		DBName:          cfg.DBName,
		SSLMode:         cfg.DBSSLMode,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// services is the wired application graph.
type services struct {
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	tokens       *auth.TokenStore
	recovery     *auth.RecoveryService
	verification *auth.VerificationService
	accounts     *auth.AccountService
	sessions     *auth.SessionService
	actions      *auth.Actions
	redis        *redis.Client
}

func (s *services) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// limiters holds the per-identifier limiters used by the flows.
type limiters struct {
	passwordReset     ratelimit.Limiter
	verificationEmail ratelimit.Limiter
	email             ratelimit.Limiter
}

func newLimiters(cfg *config.Config, client *redis.Client, logger *slog.Logger) limiters {
	rl := cfg.RateLimit
	if client != nil {
		return limiters{
			passwordReset:     ratelimit.NewRedisLimiter(client, "ratelimit:password-reset:", rl.PasswordResetWindow, rl.PasswordResetRequests, logger),
			verificationEmail: ratelimit.NewRedisLimiter(client, "ratelimit:verification-email:", rl.VerificationEmailWindow, rl.VerificationEmailRequests, logger),
			email:             ratelimit.NewRedisLimiter(client, "ratelimit:email:", rl.EmailWindow, rl.EmailRequests, logger),
		}
	}
	return limiters{
		passwordReset:     ratelimit.NewMemoryLimiter(rl.PasswordResetWindow, rl.PasswordResetRequests),
		verificationEmail: ratelimit.NewMemoryLimiter(rl.VerificationEmailWindow, rl.VerificationEmailRequests),
		email:             ratelimit.NewMemoryLimiter(rl.EmailWindow, rl.EmailRequests),
	}
}

func newNotifier(cfg *config.Config, logger *slog.Logger) notification.Notifier {
	if !cfg.HasSMTP() {
		logger.Warn("SMTP not configured, emails will be logged")
		return notification.NewLogNotifier(logger)
	}
	logger.Info("email service enabled", "host", cfg.SMTP.Host)
	return notification.NewSMTPNotifier(notification.EmailConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		User:       cfg.SMTP.User,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		FromName:   cfg.SMTP.FromName,
		Timeout:    cfg.SMTP.Timeout,
		MaxRetries: uint64(cfg.SMTP.MaxRetries),
	})
}

// buildServices wires repositories, limiters and the notifier into the
// auth services.
func buildServices(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*services, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := &services{registry: reg, metrics: m}

	if cfg.HasRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		svc.redis = redis.NewClient(opts)
		logger.Info("using redis rate limiter", "addr", opts.Addr)
	}
	lim := newLimiters(cfg, svc.redis, logger)
	notifier := newNotifier(cfg, logger)

	usersRepo := repository.NewUsersRepository(db)
	tokensRepo := repository.NewTokensRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	tx := repository.NewTransactor(db)

	policy := auth.NewPasswordPolicy(cfg.PasswordPolicy)
	hasher := auth.Argon2Hasher{}

	svc.tokens = auth.NewTokenStore(tokensRepo, tx, auth.WithTokenMetrics(m))
	svc.recovery = auth.NewRecoveryService(auth.RecoveryConfig{
		AppBaseURL:    cfg.AppBaseURL,
		ResetTTL:      cfg.PasswordResetTTL,
		NotifyTimeout: cfg.NotifyTimeout,
	}, auth.RecoveryDeps{
		Logger:   logger,
		Tx:       tx,
		Tokens:   svc.tokens,
		Users:    usersRepo,
		Sessions: sessionsRepo,
		Limiter:  lim.passwordReset,
		Notifier: notifier,
		Hasher:   hasher,
		Policy:   policy,
		Metrics:  m,
	})
	svc.verification = auth.NewVerificationService(auth.VerificationConfig{
		AppBaseURL:      cfg.AppBaseURL,
		VerificationTTL: cfg.EmailVerificationTTL,
		NotifyTimeout:   cfg.NotifyTimeout,
	}, auth.VerificationDeps{
		Logger:   logger,
		Tx:       tx,
		Tokens:   svc.tokens,
		Users:    usersRepo,
		Limiter:  lim.verificationEmail,
		Notifier: notifier,
		Metrics:  m,
	})
	svc.accounts = auth.NewAccountService(auth.AccountDeps{
		Logger:        logger,
		Users:         usersRepo,
		Hasher:        hasher,
		Policy:        policy,
		Verification:  svc.verification,
		EmailLimiter:  lim.email,
		Notifier:      notifier,
		Metrics:       m,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	svc.sessions = auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL: cfg.AccessTokenTTL,
		SessionTTL:     cfg.SessionTTL,
		JWTSecret:      []byte(cfg.JWTSecret),
		Issuer:         cfg.JWTIssuer,
	}, sessionsRepo)
	svc.actions = auth.NewActions(logger, svc.recovery, svc.verification)

	return svc, nil
}
