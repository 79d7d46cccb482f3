package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/larp/internal/config"
	"github.com/keyxmakerx/larp/internal/database"
)

// openDB loads the server configuration and connects to MariaDB.
func openDB(cmd *cobra.Command) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RunMigrations(db, cfg.MigrationsPath)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.RollbackMigrations(db, cfg.MigrationsPath, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			version, dirty, err := database.MigrationVersion(db, cfg.MigrationsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})

	return cmd
}
