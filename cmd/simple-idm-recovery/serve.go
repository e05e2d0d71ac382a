package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/tendant/simple-idm-recovery/internal/http"
	"github.com/tendant/simple-idm-recovery/internal/repository"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrateFirst bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	dbCfg := dbConfig(cfg)
	if migrateFirst {
		if err := migrateUp(dbCfg.URL()); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	db, err := repository.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	svc, err := buildServices(cfg, db, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		Actions:         svc.actions,
		AccountService:  svc.accounts,
		SessionService:  svc.sessions,
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		MaxRequestBody:  cfg.MaxRequestBodySize,
		CookieSecure:    cfg.CookieSecure,
		HealthCheck: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			if svc.redis != nil {
				return svc.redis.Ping(ctx).Err()
			}
			return nil
		},
		Metrics: promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}),
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
