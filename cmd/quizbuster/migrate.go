package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quizbuster/quizbuster-api/internal/infrastructure/config"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/db/postgres"
)

// migrator is the subset of *postgres.Migrator the commands drive.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return postgres.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long:  `Apply or roll back the embedded PostgreSQL migrations using DATABASE_URL.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, migrator.Up, "up")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, migrator.Down, "down")
		},
	})
	return cmd
}

func runMigrate(cmd *cobra.Command, step func(migrator) error, direction string) error {
	cfg, err := config.LoadPostgres(cmd.Context())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	m, err := newMigrator(cfg.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() { _ = m.Close() }()

	cmd.Printf("Running migrations %s...\n", direction)
	if err := step(m); err != nil {
		return oops.Code("MIGRATION_FAILED").With("direction", direction).Wrap(err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	cmd.Printf("Schema at version %d (dirty=%t)\n", version, dirty)
	return nil
}
