package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-idm-recovery/internal/repository"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := setup()
				if err != nil {
					return err
				}
				if err := migrateUp(dbConfig(cfg).URL()); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *repository.Migrator) error {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Migrations rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *repository.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return fmt.Errorf("read version: %w", err)
					}
					cmd.Printf("version=%d dirty=%t\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func migrateUp(databaseURL string) error {
	m, err := repository.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func withMigrator(fn func(m *repository.Migrator) error) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	m, err := repository.NewMigrator(dbConfig(cfg).URL())
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
