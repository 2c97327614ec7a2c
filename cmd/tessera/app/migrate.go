// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/tessera/pkg/config"
	"github.com/stacklok/tessera/pkg/repository"
)

// newMigrateCmd creates the migrate command tree. Migrations are
// embedded in the binary, so the commands only need POSTGRES_* set.
func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), repository.Migrate)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), repository.MigrateDown)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of every known migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				statuses, err := repository.MigrationStatus(ctx, db)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					applied := "pending"
					if !s.AppliedAt.IsZero() {
						applied = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Printf("%-14d %-10s %s\n", s.Source.Version, s.State, applied)
				}
				return nil
			})
		},
	})

	return migrateCmd
}

// withDB runs fn against a connected Postgres pool.
func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	db, err := repository.Connect(ctx, postgresConfig(cfg))
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	return fn(ctx, db)
}
