package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/repository"
)

// NewTokensCmd creates the tokens subcommand.
func NewTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain password reset and email verification tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired tokens",
		Long: `Delete expired password reset and email verification tokens.
Expired tokens are already rejected, so this only reclaims storage.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := repository.NewDB(dbConfig(cfg))
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			store := auth.NewTokenStore(repository.NewTokensRepository(db), repository.NewTransactor(db))
			n, err := store.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("purged expired tokens", "count", n)
			cmd.Printf("Purged %d expired tokens\n", n)
			return nil
		},
	})
	return cmd
}
