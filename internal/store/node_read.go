package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caseforge/caseforge/internal/models"
)

// loadNode reads a node row with its collections and owned children inside
// the caller's transaction. When lock is true the row is read FOR UPDATE so
// the version check and subsequent writes see a stable row.
func loadNode(ctx context.Context, tx pgx.Tx, nodeUUID uuid.UUID, lock bool) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM cm_nodes WHERE uuid = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	row := tx.QueryRow(ctx, query, nodeUUID)

	n, err := scanNode(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNodeNotFound
		}

		return nil, fmt.Errorf("scanning node: %w", err)
	}

	if err := attachRelations(ctx, tx, n); err != nil {
		return nil, err
	}

	return n, nil
}

// attachRelations loads the reference collections and owned children of a node.
func attachRelations(ctx context.Context, tx pgx.Tx, n *models.Node) error {
	collections, err := loadCollections(ctx, tx, n.UUID)
	if err != nil {
		return err
	}

	n.Tags = orEmpty(collections[models.VocabTag])
	n.Directives = orEmpty(collections[models.VocabDirective])
	n.Threats = orEmpty(collections[models.VocabThreat])
	n.ThreatActors = orEmpty(collections[models.VocabThreatActor])

	return loadChildren(ctx, tx, n)
}

// loadChildren loads comments and detection points in insertion order.
func loadChildren(ctx context.Context, tx pgx.Tx, n *models.Node) error {
	rows, err := tx.Query(ctx, `
		SELECT uuid, node_uuid, value, created_by, created_at
		FROM cm_comments WHERE node_uuid = $1
		ORDER BY created_at, uuid`,
		n.UUID,
	)
	if err != nil {
		return fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	n.Comments = make([]models.Comment, 0, 4)

	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.UUID, &c.NodeUUID, &c.Value, &c.CreatedBy, &c.CreatedAt); err != nil {
			return fmt.Errorf("scanning comment row: %w", err)
		}

		n.Comments = append(n.Comments, c)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating comment rows: %w", err)
	}

	pointRows, err := tx.Query(ctx, `
		SELECT uuid, node_uuid, value, created_at
		FROM cm_detection_points WHERE node_uuid = $1
		ORDER BY created_at, uuid`,
		n.UUID,
	)
	if err != nil {
		return fmt.Errorf("querying detection points: %w", err)
	}
	defer pointRows.Close()

	n.DetectionPoints = make([]models.DetectionPoint, 0, 4)

	for pointRows.Next() {
		var p models.DetectionPoint
		if err := pointRows.Scan(&p.UUID, &p.NodeUUID, &p.Value, &p.CreatedAt); err != nil {
			return fmt.Errorf("scanning detection point row: %w", err)
		}

		n.DetectionPoints = append(n.DetectionPoints, p)
	}

	if err := pointRows.Err(); err != nil {
		return fmt.Errorf("iterating detection point rows: %w", err)
	}

	return nil
}

// GetNode retrieves a single node by UUID (pure read, no side effects).
func (s *NodeStore) GetNode(ctx context.Context, nodeUUID uuid.UUID) (*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	n, err := loadNode(ctx, tx, nodeUUID, false)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing get node: %w", err)
	}

	return n, nil
}

// ListNodes returns nodes with an optional kind filter and has_more pagination.
// Collections and children are attached per row.
func (s *NodeStore) ListNodes(
	ctx context.Context,
	kindFilter string,
	limit, offset int,
) ([]models.Node, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	if offset < 0 {
		offset = 0
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("listing nodes: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	query := `SELECT ` + nodeColumns + ` FROM cm_nodes`
	args := make([]any, 0, 3)
	argIdx := 1

	if kindFilter != "" {
		if _, err := models.ParseNodeKind(kindFilter); err != nil {
			return nil, false, err
		}

		query += fmt.Sprintf(" WHERE kind = $%d", argIdx)
		args = append(args, kindFilter)
		argIdx++
	}

	query += " ORDER BY created_at DESC, uuid"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit+1, offset)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("querying nodes: %w", err)
	}

	nodes, err := collectNodes(rows)
	rows.Close()

	if err != nil {
		return nil, false, err
	}

	hasMore := len(nodes) > limit
	if hasMore {
		nodes = nodes[:limit]
	}

	for i := range nodes {
		if err := attachRelations(ctx, tx, &nodes[i]); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing list nodes: %w", err)
	}

	return nodes, hasMore, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}
