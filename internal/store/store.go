// Package store provides focused, single-concern data access stores for the
// case-management engine.
//
// Each store owns one domain (nodes, trees, history, vocabulary, audit) and
// embeds shared helpers (Pool, logger) via the Base struct. Stores never
// import each other — shared logic lives in this file or in dedicated helper
// files (scan.go, history.go, vocab.go).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/dbpool"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger

	// Notifications enables best-effort post-commit pg_notify broadcasts so
	// external collaborators (e.g. the analysis dispatch engine) can observe
	// mutations without polling.
	Notifications bool
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction.
func (b *Base) beginReadTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	return tx, nil
}

// notify sends a pg_notify on the cm_changes channel (best-effort, post-commit).
func (b *Base) notify(table, op, recordID string) {
	if !b.Notifications {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{ //nolint:errcheck // static keys, cannot fail.
		"table":     table,
		"op":        op,
		"record_id": recordID,
	})
	if _, err := b.Pool.Exec(ctx, "SELECT pg_notify('cm_changes', $1)", string(payload)); err != nil {
		b.Log.WithError(err).Warn("failed to send " + op + " " + table + " notification")
	}
}
