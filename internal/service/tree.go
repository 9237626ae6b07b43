package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/metrics"
	"github.com/caseforge/caseforge/internal/models"
)

// TreeStore is the data-access interface TreeService depends on.
type TreeStore interface {
	PlaceLeaf(ctx context.Context, rootNodeUUID, nodeUUID uuid.UUID, parentTreeUUID *uuid.UUID) (*models.TreeLeaf, bool, error)
	FullTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, error)
	ExpandedTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, map[uuid.UUID]*models.Node, error)
	NodesOfKind(ctx context.Context, kind models.NodeKind, rootNodeUUIDs []uuid.UUID) ([]models.Node, error)
}

// Compile-time check: *TreeService must satisfy domain.TreeService.
var _ domain.TreeService = (*TreeService)(nil)

// TreeService wraps TreeStore with audit logging and placement metrics.
type TreeService struct {
	store       TreeStore
	auditWorker AuditEnqueuer
	log         *logrus.Logger
}

// NewTreeService creates a TreeService.
func NewTreeService(store TreeStore, auditWorker AuditEnqueuer, log *logrus.Logger) *TreeService {
	return &TreeService{store: store, auditWorker: auditWorker, log: log}
}

// PlaceInTree places a node in a tree. Placement is idempotent; the bool
// reports whether a new leaf was created.
func (s *TreeService) PlaceInTree(
	ctx context.Context, rootNodeUUID, nodeUUID uuid.UUID, parentTreeUUID *uuid.UUID, actor string,
) (*models.TreeLeaf, bool, error) {
	leaf, created, err := s.store.PlaceLeaf(ctx, rootNodeUUID, nodeUUID, parentTreeUUID)
	if err != nil {
		return nil, false, err
	}

	outcome := "existing"
	if created {
		outcome = "created"
	}
	metrics.TreePlacementsTotal.WithLabelValues(outcome).Inc()

	if created && s.auditWorker != nil {
		s.auditWorker.Enqueue(&AuditJob{
			Action:     "tree.place",
			EntityKind: "tree_leaf",
			EntityID:   leaf.UUID.String(),
			Actor:      actor,
			Detail: map[string]any{
				"root_node_uuid": rootNodeUUID.String(),
				"node_uuid":      nodeUUID.String(),
			},
		})
	}

	return leaf, created, nil
}

// GetTree materializes the tree rooted at rootNodeUUID (pass-through).
func (s *TreeService) GetTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, error) {
	defer observeOp("tree.get")()
	return s.store.FullTree(ctx, rootNodeUUID)
}

// GetExpandedTree materializes the tree with every leaf's node fully loaded
// (pass-through).
func (s *TreeService) GetExpandedTree(
	ctx context.Context, rootNodeUUID uuid.UUID,
) (*models.Tree, map[uuid.UUID]*models.Node, error) {
	defer observeOp("tree.expand")()
	return s.store.ExpandedTree(ctx, rootNodeUUID)
}

// GetNodesOfKind returns the distinct nodes of the given kind placed in the
// trees rooted at the given roots (pass-through).
func (s *TreeService) GetNodesOfKind(
	ctx context.Context, kind models.NodeKind, rootNodeUUIDs []uuid.UUID,
) ([]models.Node, error) {
	defer observeOp("tree.nodes_of_kind")()
	return s.store.NodesOfKind(ctx, kind, rootNodeUUIDs)
}
