package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestNodeServiceCreateAudits(t *testing.T) {
	node := &models.Node{UUID: uuid.New(), Kind: models.KindAlert}
	store := &mockNodeStore{
		createNode: func(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error) {
			return node, true, nil
		},
	}
	enqueuer := &captureEnqueuer{}
	svc := NewNodeService(store, enqueuer, testLogger())

	got, created, err := svc.CreateNode(context.Background(), models.CreateNodeRequest{Kind: models.KindAlert}, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if !created || got.UUID != node.UUID {
		t.Errorf("CreateNode = (%v, %v), want created node", got.UUID, created)
	}

	jobs := enqueuer.getJobs()
	if len(jobs) != 1 {
		t.Fatalf("audit jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Action != "node.create" || jobs[0].EntityID != node.UUID.String() {
		t.Errorf("audit job = %+v, want node.create for the node", jobs[0])
	}
	if jobs[0].Actor != "analyst1" {
		t.Errorf("audit actor = %q, want analyst1", jobs[0].Actor)
	}
}

func TestNodeServiceGetOrCreateSkipsAudit(t *testing.T) {
	node := &models.Node{UUID: uuid.New(), Kind: models.KindObservable}
	store := &mockNodeStore{
		createNode: func(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error) {
			return node, false, nil
		},
	}
	enqueuer := &captureEnqueuer{}
	svc := NewNodeService(store, enqueuer, testLogger())

	_, created, err := svc.CreateNode(context.Background(), models.CreateNodeRequest{Kind: models.KindObservable}, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if created {
		t.Error("created = true, want false for the get path")
	}
	if jobs := enqueuer.getJobs(); len(jobs) != 0 {
		t.Errorf("audit jobs = %d, want 0 when nothing was created", len(jobs))
	}
}

func TestNodeServiceUpdatePropagatesConflict(t *testing.T) {
	store := &mockNodeStore{
		updateNode: func(ctx context.Context, nodeUUID uuid.UUID, req models.UpdateNodeRequest, actor string) (*models.Node, error) {
			return nil, models.ErrVersionConflict
		},
	}
	enqueuer := &captureEnqueuer{}
	svc := NewNodeService(store, enqueuer, testLogger())

	_, err := svc.UpdateNode(context.Background(), uuid.New(), models.UpdateNodeRequest{}, "analyst1")
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("UpdateNode = %v, want ErrVersionConflict", err)
	}
	if jobs := enqueuer.getJobs(); len(jobs) != 0 {
		t.Errorf("audit jobs = %d, want 0 for a rejected update", len(jobs))
	}
}

func TestNodeServiceDeleteChildRecordFallsBack(t *testing.T) {
	node := &models.Node{UUID: uuid.New(), Kind: models.KindAlert}
	store := &mockNodeStore{
		deleteComment: func(ctx context.Context, commentUUID uuid.UUID, actor string) (*models.Node, error) {
			return nil, models.ErrChildNotFound
		},
		deleteDetectionPoint: func(ctx context.Context, pointUUID uuid.UUID, actor string) (*models.Node, error) {
			return node, nil
		},
	}
	svc := NewNodeService(store, &captureEnqueuer{}, testLogger())

	got, err := svc.DeleteChildRecord(context.Background(), uuid.New(), "analyst1")
	if err != nil {
		t.Fatalf("DeleteChildRecord: %v", err)
	}
	if got.UUID != node.UUID {
		t.Error("DeleteChildRecord did not return the detection point's owner")
	}

	calls := store.getRecorded()
	if len(calls) != 2 || calls[0] != "DeleteComment" || calls[1] != "DeleteDetectionPoint" {
		t.Errorf("calls = %v, want comments tried before detection points", calls)
	}
}

func TestNodeServiceDeleteChildRecordMissing(t *testing.T) {
	store := &mockNodeStore{
		deleteComment: func(ctx context.Context, commentUUID uuid.UUID, actor string) (*models.Node, error) {
			return nil, models.ErrChildNotFound
		},
		deleteDetectionPoint: func(ctx context.Context, pointUUID uuid.UUID, actor string) (*models.Node, error) {
			return nil, models.ErrChildNotFound
		},
	}
	svc := NewNodeService(store, &captureEnqueuer{}, testLogger())

	if _, err := svc.DeleteChildRecord(context.Background(), uuid.New(), "analyst1"); !errors.Is(err, models.ErrChildNotFound) {
		t.Errorf("DeleteChildRecord = %v, want ErrChildNotFound", err)
	}
}

func TestNodeServiceNilEnqueuer(t *testing.T) {
	node := &models.Node{UUID: uuid.New(), Kind: models.KindAlert}
	store := &mockNodeStore{
		createNode: func(ctx context.Context, req models.CreateNodeRequest, actor string) (*models.Node, bool, error) {
			return node, true, nil
		},
	}
	svc := NewNodeService(store, nil, testLogger())

	// A nil audit worker must not panic.
	if _, _, err := svc.CreateNode(context.Background(), models.CreateNodeRequest{}, "analyst1"); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
}
