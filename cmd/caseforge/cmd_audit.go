package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/internal/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and maintain the operational audit log",
	}
	cmd.AddCommand(auditQueryCmd())
	cmd.AddCommand(auditPurgeCmd())
	return cmd
}

func auditQueryCmd() *cobra.Command {
	var entityKind, entityID, action, since string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query audit entries",
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				opts := models.AuditQueryOpts{
					EntityKind: entityKind,
					EntityID:   entityID,
					Action:     action,
					Limit:      limit,
					Offset:     offset,
				}

				if since != "" {
					t, err := time.Parse(time.RFC3339, since)
					if err != nil {
						return fmt.Errorf("parsing --since: %w", err)
					}
					opts.Since = &t
				}

				entries, hasMore, err := e.audit.QueryAudit(ctx, opts)
				if err != nil {
					return err
				}

				output(map[string]any{"entries": entries, "has_more": hasMore}, "")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "Filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "Filter by entity ID")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")
	cmd.Flags().StringVar(&since, "since", "", "Only entries at or after this RFC3339 time")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func auditPurgeCmd() *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries older than the retention window",
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				deleted, err := e.audit.PurgeOldEntries(ctx, retentionDays)
				if err != nil {
					return err
				}

				output(map[string]any{"deleted": deleted}, fmt.Sprint(deleted))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 90, "Entries older than this are deleted")
	return cmd
}
