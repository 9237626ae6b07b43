// Package domain defines the canonical service interfaces shared across
// consumers of the engine (CLI, embedding applications, tests). Consumers
// should depend on these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/google/uuid"

	"github.com/caseforge/caseforge/internal/models"
)

// NodeService defines all node operations, including mutations of the owned
// child records (comments and detection points) that live on a node.
type NodeService interface {
	ListNodes(ctx context.Context, kindFilter string, limit, offset int) ([]models.Node, bool, error)
	GetNode(ctx context.Context, nodeUUID uuid.UUID) (*models.Node, error)
	CreateNode(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error)
	UpdateNode(ctx context.Context, nodeUUID uuid.UUID, req models.UpdateNodeRequest, actor string) (*models.Node, error)
	DeleteNode(ctx context.Context, nodeUUID uuid.UUID, actor string) error
	AddComment(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error)
	AddDetectionPoint(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error)
	DeleteChildRecord(ctx context.Context, childUUID uuid.UUID, actor string) (*models.Node, error)
}

// TreeService defines tree placement and materialization operations.
type TreeService interface {
	PlaceInTree(ctx context.Context, rootNodeUUID, nodeUUID uuid.UUID, parentTreeUUID *uuid.UUID, actor string) (*models.TreeLeaf, bool, error)
	GetTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, error)
	GetExpandedTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, map[uuid.UUID]*models.Node, error)
	GetNodesOfKind(ctx context.Context, kind models.NodeKind, rootNodeUUIDs []uuid.UUID) ([]models.Node, error)
}

// VocabService defines controlled-vocabulary management operations.
type VocabService interface {
	CreateValue(ctx context.Context, kind models.VocabKind, value string) (*models.VocabValue, error)
	ListValues(ctx context.Context, kind models.VocabKind) ([]models.VocabValue, error)
}

// HistoryService defines change-history query operations.
type HistoryService interface {
	GetHistory(ctx context.Context, recordUUID uuid.UUID, limit, offset int) ([]models.HistoryEntry, bool, error)
}

// AuditService defines audit log query and maintenance operations.
type AuditService interface {
	Auditor
	QueryAudit(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, bool, error)
	PurgeOldEntries(ctx context.Context, retentionDays int) (int, error)
}

// Auditor is the minimal interface for recording audit entries.
// Used by services for fire-and-forget audit logging.
type Auditor interface {
	RecordAudit(ctx context.Context, action, entityKind, entityID, actor string, detail map[string]any) error
}
