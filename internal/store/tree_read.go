package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caseforge/caseforge/internal/models"
)

// FullTree materializes the tree rooted at rootNodeUUID: the fully loaded
// root node plus every leaf of its tree in insertion order. Nodes referenced
// by leaves are not expanded here; callers resolve them per leaf as needed.
func (s *TreeStore) FullTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("materializing tree: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // read-only tx.

	root, err := loadNode(ctx, tx, rootNodeUUID, false)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+leafColumns+` FROM cm_tree_leaves
		WHERE root_node_uuid = $1
		ORDER BY created_at, uuid`,
		rootNodeUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tree leaves: %w", err)
	}
	defer rows.Close()

	leaves, err := collectLeaves(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing tree read: %w", err)
	}

	return &models.Tree{Root: root, Leaves: leaves}, nil
}

// NodesOfKind returns every distinct node of the given kind placed anywhere
// in the trees rooted at the given roots. A node appearing in several of the
// trees, or several times inside one tree, is returned once. Every root must
// exist; a missing root fails the whole call.
func (s *TreeStore) NodesOfKind(ctx context.Context, kind models.NodeKind, rootNodeUUIDs []uuid.UUID) ([]models.Node, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("kind %q: %w", kind, models.ErrUnknownKind)
	}

	if len(rootNodeUUIDs) == 0 {
		return []models.Node{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying nodes of kind: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // read-only tx.

	if err := checkRootsExist(ctx, tx, rootNodeUUIDs); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT DISTINCT ON (n.uuid) `+prefixedNodeColumns("n")+`
		FROM cm_tree_leaves l
		JOIN cm_nodes n ON n.uuid = l.node_uuid
		WHERE l.root_node_uuid = ANY($1) AND n.kind = $2
		ORDER BY n.uuid`,
		rootNodeUUIDs, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("querying nodes of kind: %w", err)
	}

	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, err
	}

	for i := range nodes {
		if err := attachRelations(ctx, tx, &nodes[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing nodes-of-kind read: %w", err)
	}

	return nodes, nil
}

// checkRootsExist verifies every requested root node exists and reports the
// first missing one.
func checkRootsExist(ctx context.Context, tx pgx.Tx, rootNodeUUIDs []uuid.UUID) error {
	rows, err := tx.Query(ctx,
		`SELECT uuid FROM cm_nodes WHERE uuid = ANY($1)`,
		rootNodeUUIDs,
	)
	if err != nil {
		return fmt.Errorf("checking roots: %w", err)
	}

	found := make(map[uuid.UUID]bool, len(rootNodeUUIDs))

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning root uuid: %w", err)
		}

		found[id] = true
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("checking roots: %w", err)
	}

	for _, id := range rootNodeUUIDs {
		if !found[id] {
			return fmt.Errorf("root node %q: %w", id, models.ErrNodeNotFound)
		}
	}

	return nil
}

// resolveLeafNodes loads the node behind each leaf, deduplicating repeated
// placements of the same node.
func (s *TreeStore) resolveLeafNodes(ctx context.Context, tx pgx.Tx, leaves []models.TreeLeaf) (map[uuid.UUID]*models.Node, error) {
	nodes := make(map[uuid.UUID]*models.Node, len(leaves))

	for _, leaf := range leaves {
		if _, ok := nodes[leaf.NodeUUID]; ok {
			continue
		}

		node, err := loadNode(ctx, tx, leaf.NodeUUID, false)
		if err != nil {
			if errors.Is(err, models.ErrNodeNotFound) {
				// Leaf rows cascade with their node; a race between the
				// leaf read and the node read can still leave a gap.
				continue
			}

			return nil, err
		}

		nodes[leaf.NodeUUID] = node
	}

	return nodes, nil
}

// ExpandedTree materializes the tree with every leaf's node fully loaded.
func (s *TreeStore) ExpandedTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, map[uuid.UUID]*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("materializing tree: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // read-only tx.

	root, err := loadNode(ctx, tx, rootNodeUUID, false)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+leafColumns+` FROM cm_tree_leaves
		WHERE root_node_uuid = $1
		ORDER BY created_at, uuid`,
		rootNodeUUID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying tree leaves: %w", err)
	}

	leaves, err := collectLeaves(rows)
	if err != nil {
		return nil, nil, err
	}

	nodes, err := s.resolveLeafNodes(ctx, tx, leaves)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing tree read: %w", err)
	}

	return &models.Tree{Root: root, Leaves: leaves}, nodes, nil
}
