package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-idm-recovery/internal/config"
)

// NewRootCmd creates the root command for the simple-idm-recovery CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simple-idm-recovery",
		Short: "Email/password identity service with password reset and email verification",
		Long: `simple-idm-recovery serves registration, login, password reset and
email verification over HTTP, backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTokensCmd())

	return cmd
}

// setup loads .env, the configuration and a JSON logger.
func setup() (*config.Config, *slog.Logger, error) {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
