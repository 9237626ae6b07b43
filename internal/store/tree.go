package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caseforge/caseforge/internal/models"
)

// TreeStore manages the placement of nodes inside rooted trees.
type TreeStore struct {
	Base
}

// NewTreeStore creates a new TreeStore.
func NewTreeStore(base Base) *TreeStore {
	return &TreeStore{Base: base}
}

// Tree leaf uniqueness constraint names from 001_initial.sql.
const (
	leafParentedConstraint  = "cm_tree_leaves_parented_key"
	leafRootChildConstraint = "cm_tree_leaves_root_child_key"
)

// PlaceLeaf places a node inside the tree rooted at rootNodeUUID, under the
// given parent leaf (nil = directly under the root). Placement is idempotent:
// if the (root, node, parent) triple already exists the existing leaf is
// returned and the bool is false. Placement never touches node versions —
// it is structural, not a tracked node attribute.
func (s *TreeStore) PlaceLeaf(
	ctx context.Context,
	rootNodeUUID, nodeUUID uuid.UUID,
	parentTreeUUID *uuid.UUID,
) (*models.TreeLeaf, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("placing tree leaf: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	// Verify root and node exist in a single query.
	var rootExists, nodeExists bool
	err = tx.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM cm_nodes WHERE uuid = $1),
			EXISTS(SELECT 1 FROM cm_nodes WHERE uuid = $2)`,
		rootNodeUUID, nodeUUID).Scan(&rootExists, &nodeExists)
	if err != nil {
		return nil, false, fmt.Errorf("checking root/node existence: %w", err)
	}

	if !rootExists {
		return nil, false, fmt.Errorf("root node %q: %w", rootNodeUUID, models.ErrNodeNotFound)
	}

	if !nodeExists {
		return nil, false, fmt.Errorf("node %q: %w", nodeUUID, models.ErrNodeNotFound)
	}

	if parentTreeUUID != nil {
		if err := s.checkParentLeaf(ctx, tx, rootNodeUUID, *parentTreeUUID); err != nil {
			return nil, false, err
		}
	}

	leaf, created, err := s.insertLeafRow(ctx, tx, rootNodeUUID, nodeUUID, parentTreeUUID)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing place leaf: %w", err)
	}

	if created {
		s.notify("cm_tree_leaves", "insert", leaf.UUID.String())
	}

	return leaf, created, nil
}

// checkParentLeaf verifies the parent leaf exists and anchors the same tree.
func (s *TreeStore) checkParentLeaf(ctx context.Context, tx pgx.Tx, rootNodeUUID, parentTreeUUID uuid.UUID) error {
	var parentRoot uuid.UUID

	err := tx.QueryRow(ctx,
		`SELECT root_node_uuid FROM cm_tree_leaves WHERE uuid = $1`,
		parentTreeUUID,
	).Scan(&parentRoot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("parent leaf %q: %w", parentTreeUUID, models.ErrLeafNotFound)
		}

		return fmt.Errorf("reading parent leaf: %w", err)
	}

	if parentRoot != rootNodeUUID {
		return fmt.Errorf("parent leaf %q anchors a different tree: %w", parentTreeUUID, models.ErrLeafNotFound)
	}

	return nil
}

// insertLeafRow inserts the leaf inside a savepoint so a uniqueness violation
// from a concurrent duplicate is converted into a read of the winning row.
func (s *TreeStore) insertLeafRow(
	ctx context.Context,
	tx pgx.Tx,
	rootNodeUUID, nodeUUID uuid.UUID,
	parentTreeUUID *uuid.UUID,
) (*models.TreeLeaf, bool, error) {
	leaf := &models.TreeLeaf{
		UUID:           uuid.New(),
		RootNodeUUID:   rootNodeUUID,
		NodeUUID:       nodeUUID,
		ParentTreeUUID: parentTreeUUID,
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("starting leaf savepoint: %w", err)
	}

	err = sp.QueryRow(ctx, `
		INSERT INTO cm_tree_leaves (uuid, root_node_uuid, node_uuid, parent_tree_uuid)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		leaf.UUID, leaf.RootNodeUUID, leaf.NodeUUID, leaf.ParentTreeUUID,
	).Scan(&leaf.CreatedAt)
	if err == nil {
		if err := sp.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("releasing leaf savepoint: %w", err)
		}

		return leaf, true, nil
	}

	sp.Rollback(ctx) //nolint:errcheck // savepoint rollback on insert failure.

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil, false, fmt.Errorf("inserting tree leaf: %w", err)
	}

	if pgErr.ConstraintName != leafParentedConstraint && pgErr.ConstraintName != leafRootChildConstraint {
		return nil, false, fmt.Errorf("inserting tree leaf: %w", err)
	}

	existing, err := getLeafByTriple(ctx, tx, rootNodeUUID, nodeUUID, parentTreeUUID)
	if err != nil {
		return nil, false, fmt.Errorf("reading winning leaf row: %w", err)
	}

	return existing, false, nil
}

// getLeafByTriple reads a leaf by its null-aware uniqueness key.
func getLeafByTriple(
	ctx context.Context,
	tx pgx.Tx,
	rootNodeUUID, nodeUUID uuid.UUID,
	parentTreeUUID *uuid.UUID,
) (*models.TreeLeaf, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+leafColumns+` FROM cm_tree_leaves
		WHERE root_node_uuid = $1 AND node_uuid = $2 AND parent_tree_uuid IS NOT DISTINCT FROM $3`,
		rootNodeUUID, nodeUUID, parentTreeUUID,
	)

	leaf, err := scanLeaf(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrLeafNotFound
		}

		return nil, fmt.Errorf("scanning leaf: %w", err)
	}

	return leaf, nil
}

// LeavesOf returns all leaves of the tree rooted at rootNodeUUID in
// insertion order.
func (s *TreeStore) LeavesOf(ctx context.Context, rootNodeUUID uuid.UUID) ([]models.TreeLeaf, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT `+leafColumns+` FROM cm_tree_leaves
		WHERE root_node_uuid = $1
		ORDER BY created_at, uuid`,
		rootNodeUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tree leaves: %w", err)
	}
	defer rows.Close()

	return collectLeaves(rows)
}
