package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/caseforge/caseforge/internal/models"
)

// mockNodeStore records calls and returns configured responses.
type mockNodeStore struct {
	mu    sync.Mutex
	calls []string

	listNodes            func(ctx context.Context, kindFilter string, limit, offset int) ([]models.Node, bool, error)
	getNode              func(ctx context.Context, nodeUUID uuid.UUID) (*models.Node, error)
	createNode           func(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error)
	updateNode           func(ctx context.Context, nodeUUID uuid.UUID, req models.UpdateNodeRequest, actor string) (*models.Node, error)
	deleteNode           func(ctx context.Context, nodeUUID uuid.UUID, actor string) error
	addComment           func(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error)
	addDetectionPoint    func(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error)
	deleteComment        func(ctx context.Context, commentUUID uuid.UUID, actor string) (*models.Node, error)
	deleteDetectionPoint func(ctx context.Context, pointUUID uuid.UUID, actor string) (*models.Node, error)
}

func (m *mockNodeStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockNodeStore) getRecorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}

func (m *mockNodeStore) ListNodes(ctx context.Context, kindFilter string, limit, offset int) ([]models.Node, bool, error) {
	m.record("ListNodes")
	return m.listNodes(ctx, kindFilter, limit, offset)
}

func (m *mockNodeStore) GetNode(ctx context.Context, nodeUUID uuid.UUID) (*models.Node, error) {
	m.record("GetNode")
	return m.getNode(ctx, nodeUUID)
}

func (m *mockNodeStore) CreateNode(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error) {
	m.record("CreateNode")
	return m.createNode(ctx, req, actor)
}

func (m *mockNodeStore) UpdateNode(ctx context.Context, nodeUUID uuid.UUID, req models.UpdateNodeRequest, actor string) (*models.Node, error) {
	m.record("UpdateNode")
	return m.updateNode(ctx, nodeUUID, req, actor)
}

func (m *mockNodeStore) DeleteNode(ctx context.Context, nodeUUID uuid.UUID, actor string) error {
	m.record("DeleteNode")
	return m.deleteNode(ctx, nodeUUID, actor)
}

func (m *mockNodeStore) AddComment(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error) {
	m.record("AddComment")
	return m.addComment(ctx, nodeUUID, value, actor)
}

func (m *mockNodeStore) AddDetectionPoint(ctx context.Context, nodeUUID uuid.UUID, value, actor string) (*models.Node, error) {
	m.record("AddDetectionPoint")
	return m.addDetectionPoint(ctx, nodeUUID, value, actor)
}

func (m *mockNodeStore) DeleteComment(ctx context.Context, commentUUID uuid.UUID, actor string) (*models.Node, error) {
	m.record("DeleteComment")
	return m.deleteComment(ctx, commentUUID, actor)
}

func (m *mockNodeStore) DeleteDetectionPoint(ctx context.Context, pointUUID uuid.UUID, actor string) (*models.Node, error) {
	m.record("DeleteDetectionPoint")
	return m.deleteDetectionPoint(ctx, pointUUID, actor)
}

// mockTreeStore records calls and returns configured responses.
type mockTreeStore struct {
	placeLeaf    func(ctx context.Context, rootNodeUUID, nodeUUID uuid.UUID, parentTreeUUID *uuid.UUID) (*models.TreeLeaf, bool, error)
	fullTree     func(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, error)
	expandedTree func(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, map[uuid.UUID]*models.Node, error)
	nodesOfKind  func(ctx context.Context, kind models.NodeKind, rootNodeUUIDs []uuid.UUID) ([]models.Node, error)
}

func (m *mockTreeStore) PlaceLeaf(ctx context.Context, rootNodeUUID, nodeUUID uuid.UUID, parentTreeUUID *uuid.UUID) (*models.TreeLeaf, bool, error) {
	return m.placeLeaf(ctx, rootNodeUUID, nodeUUID, parentTreeUUID)
}

func (m *mockTreeStore) FullTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, error) {
	return m.fullTree(ctx, rootNodeUUID)
}

func (m *mockTreeStore) ExpandedTree(ctx context.Context, rootNodeUUID uuid.UUID) (*models.Tree, map[uuid.UUID]*models.Node, error) {
	return m.expandedTree(ctx, rootNodeUUID)
}

func (m *mockTreeStore) NodesOfKind(ctx context.Context, kind models.NodeKind, rootNodeUUIDs []uuid.UUID) ([]models.Node, error) {
	return m.nodesOfKind(ctx, kind, rootNodeUUIDs)
}

// auditCall captures one RecordAudit invocation.
type auditCall struct {
	Action     string
	EntityKind string
	EntityID   string
	Actor      string
	Detail     map[string]any
}

// mockAuditor collects RecordAudit calls.
type mockAuditor struct {
	mu    sync.Mutex
	calls []auditCall
	err   error
}

func (m *mockAuditor) RecordAudit(ctx context.Context, action, entityKind, entityID, actor string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, auditCall{Action: action, EntityKind: entityKind, EntityID: entityID, Actor: actor, Detail: detail})
	return m.err
}

func (m *mockAuditor) getCalls() []auditCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auditCall{}, m.calls...)
}

// captureEnqueuer records enqueued audit jobs synchronously.
type captureEnqueuer struct {
	mu   sync.Mutex
	jobs []*AuditJob
}

func (c *captureEnqueuer) Enqueue(job *AuditJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
}

func (c *captureEnqueuer) getJobs() []*AuditJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*AuditJob{}, c.jobs...)
}
