package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/internal/db"
	"github.com/caseforge/caseforge/internal/db/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				return db.RunMigrations(ctx, e.pool, e.log, migrations.FS)
			})
		},
	}
}
