package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	swarmconfig "github.com/swarmrun/swarmrun/internal/config"
	"github.com/swarmrun/swarmrun/internal/store"
)

func buildMigrateCmd() *cobra.Command {
	var (
		configPath string
		envPath    string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the conversation store's schema migrations",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "Path to a .env file (optional)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, configPath, envPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, configPath, envPath)
		},
	})
	return cmd
}

func runMigrateUp(cmd *cobra.Command, configPath, envPath string) error {
	migrator, db, err := openMigrator(configPath, envPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrator.Up(cmd.Context())
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
		return nil
	}
	for _, id := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", id)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, configPath, envPath string) error {
	migrator, db, err := openMigrator(configPath, envPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, pending, err := migrator.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "applied (%d):\n", len(applied))
	for _, a := range applied {
		fmt.Fprintf(out, "  %s  %s\n", a.ID, a.AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Fprintf(out, "pending (%d):\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %s\n", m.ID)
	}
	return nil
}

func openMigrator(configPath, envPath string) (*store.Migrator, *sql.DB, error) {
	cfg, err := swarmconfig.Load(configPath, envPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	migrator, err := store.NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return migrator, db, nil
}
