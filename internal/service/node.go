// Package service provides business logic between the engine's consumers and
// the data stores: audit fan-out, metrics, and the cross-store composition
// the stores themselves stay out of.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/metrics"
	"github.com/caseforge/caseforge/internal/models"
)

// observeOp times a service read operation for the QueryDuration histogram.
// Callers defer the returned func.
func observeOp(operation string) func() {
	start := time.Now()
	return func() {
		metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// NodeStore is the data-access interface NodeService depends on. It differs
// from domain.NodeService in the child deletions: the store exposes one
// method per child table, the service folds them into DeleteChildRecord.
type NodeStore interface {
	ListNodes(ctx context.Context, kindFilter string, limit, offset int) ([]models.Node, bool, error)
	GetNode(ctx context.Context, nodeUUID uuid.UUID) (*models.Node, error)
	CreateNode(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error)
	UpdateNode(ctx context.Context, nodeUUID uuid.UUID, req models.UpdateNodeRequest, actor string) (*models.Node, error)
	DeleteNode(ctx context.Context, nodeUUID uuid.UUID, actor string) error
	AddComment(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error)
	AddDetectionPoint(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error)
	DeleteComment(ctx context.Context, commentUUID uuid.UUID, actor string) (*models.Node, error)
	DeleteDetectionPoint(ctx context.Context, pointUUID uuid.UUID, actor string) (*models.Node, error)
}

// Compile-time check: *NodeService must satisfy domain.NodeService.
var _ domain.NodeService = (*NodeService)(nil)

// Auditor is an alias for the canonical domain.Auditor interface.
type Auditor = domain.Auditor

// NodeService wraps NodeStore with audit logging and mutation metrics.
type NodeService struct {
	store       NodeStore
	auditWorker AuditEnqueuer
	log         *logrus.Logger
}

// NewNodeService creates a NodeService.
func NewNodeService(store NodeStore, auditWorker AuditEnqueuer, log *logrus.Logger) *NodeService {
	return &NodeService{store: store, auditWorker: auditWorker, log: log}
}

// auditAsync enqueues an audit entry via the AuditWorker (best-effort, non-blocking).
func (s *NodeService) auditAsync(action, entityKind, entityID, actor string, detail map[string]any) {
	if s.auditWorker == nil {
		return
	}
	s.auditWorker.Enqueue(&AuditJob{
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Actor:      actor,
		Detail:     detail,
	})
}

// ListNodes returns a paginated list of nodes (pass-through).
func (s *NodeService) ListNodes(
	ctx context.Context, kindFilter string, limit, offset int,
) ([]models.Node, bool, error) {
	defer observeOp("node.list")()
	return s.store.ListNodes(ctx, kindFilter, limit, offset)
}

// GetNode returns a single node by UUID (pass-through).
func (s *NodeService) GetNode(ctx context.Context, nodeUUID uuid.UUID) (*models.Node, error) {
	defer observeOp("node.get")()
	return s.store.GetNode(ctx, nodeUUID)
}

// CreateNode creates a node and records an audit entry. The bool reports
// whether a row was actually created; false means an equivalent record
// already existed and was returned instead (observable get-or-create).
func (s *NodeService) CreateNode(
	ctx context.Context, req models.CreateNodeRequest, actor string,
) (*models.Node, bool, error) {
	node, created, err := s.store.CreateNode(ctx, req, actor)
	if err != nil {
		return nil, false, err
	}

	if created {
		metrics.MutationsTotal.WithLabelValues(string(node.Kind), "create").Inc()
		s.auditAsync("node.create", string(node.Kind), node.UUID.String(), actor, nil)
	}

	return node, created, nil
}

// UpdateNode updates a node through the version gate and records an audit entry.
func (s *NodeService) UpdateNode(
	ctx context.Context, nodeUUID uuid.UUID, req models.UpdateNodeRequest, actor string,
) (*models.Node, error) {
	node, err := s.store.UpdateNode(ctx, nodeUUID, req, actor)
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			metrics.VersionConflictsTotal.Inc()
		}

		return nil, err
	}

	metrics.MutationsTotal.WithLabelValues(string(node.Kind), "update").Inc()
	s.auditAsync("node.update", string(node.Kind), node.UUID.String(), actor, nil)

	return node, nil
}

// DeleteNode removes a node, its owned children, and its tree placements.
func (s *NodeService) DeleteNode(ctx context.Context, nodeUUID uuid.UUID, actor string) error {
	err := s.store.DeleteNode(ctx, nodeUUID, actor)
	if err == nil {
		metrics.MutationsTotal.WithLabelValues("node", "delete").Inc()
		s.auditAsync("node.delete", "node", nodeUUID.String(), actor, nil)
	}

	return err
}

// AddComment appends a comment to a node and returns the updated node.
func (s *NodeService) AddComment(
	ctx context.Context, nodeUUID uuid.UUID, value, actor string,
) (*models.Node, error) {
	node, err := s.store.AddComment(ctx, nodeUUID, value, actor)
	if err != nil {
		return nil, err
	}

	metrics.MutationsTotal.WithLabelValues(string(node.Kind), "update").Inc()
	s.auditAsync("node.add_comment", string(node.Kind), node.UUID.String(), actor, nil)

	return node, nil
}

// AddDetectionPoint appends a detection point to a node and returns the updated node.
func (s *NodeService) AddDetectionPoint(
	ctx context.Context, nodeUUID uuid.UUID, value, actor string,
) (*models.Node, error) {
	node, err := s.store.AddDetectionPoint(ctx, nodeUUID, value, actor)
	if err != nil {
		return nil, err
	}

	metrics.MutationsTotal.WithLabelValues(string(node.Kind), "update").Inc()
	s.auditAsync("node.add_detection_point", string(node.Kind), node.UUID.String(), actor, nil)

	return node, nil
}

// DeleteChildRecord removes an owned child record by UUID, whichever child
// table holds it. Comments are tried first, then detection points.
func (s *NodeService) DeleteChildRecord(
	ctx context.Context, childUUID uuid.UUID, actor string,
) (*models.Node, error) {
	node, err := s.store.DeleteComment(ctx, childUUID, actor)
	if errors.Is(err, models.ErrChildNotFound) {
		node, err = s.store.DeleteDetectionPoint(ctx, childUUID, actor)
	}
	if err != nil {
		return nil, err
	}

	metrics.MutationsTotal.WithLabelValues(string(node.Kind), "update").Inc()
	s.auditAsync("node.delete_child", string(node.Kind), node.UUID.String(), actor,
		map[string]any{"child_uuid": childUUID.String()})

	return node, nil
}
