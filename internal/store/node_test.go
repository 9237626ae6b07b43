package store_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/caseforge/caseforge/internal/models"
	"github.com/caseforge/caseforge/internal/store"
)

func TestCreateNode(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")
	seedVocab(t, base, models.VocabTag, "phishing", "internal")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	req := defaultAlertRequest()
	req.Tags = []string{"phishing", "internal"}

	node, created, err := ns.CreateNode(ctx, req, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if node.Kind != models.KindAlert {
		t.Errorf("Kind = %q, want alert", node.Kind)
	}
	if node.Version == uuid.Nil {
		t.Error("Version is zero")
	}
	if !reflect.DeepEqual(node.Tags, []string{"internal", "phishing"}) {
		t.Errorf("Tags = %v, want sorted [internal phishing]", node.Tags)
	}

	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Action != models.ActionCreate {
		t.Errorf("Action = %q, want CREATE", entries[0].Action)
	}
	if entries[0].Field != nil {
		t.Errorf("Field = %v, want nil for a whole-record entry", *entries[0].Field)
	}
	if len(entries[0].Snapshot) == 0 {
		t.Error("CREATE entry has no snapshot")
	}
}

func TestCreateNodeUnresolvedVocab(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	id := uuid.New()
	req := defaultAlertRequest()
	req.UUID = &id
	req.Tags = []string{"unregistered"}

	if _, _, err := ns.CreateNode(ctx, req, "analyst1"); !errors.Is(err, models.ErrValueNotFound) {
		t.Fatalf("CreateNode = %v, want ErrValueNotFound", err)
	}

	// Nothing may be written when a vocabulary value fails to resolve.
	if _, err := ns.GetNode(ctx, id); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("GetNode after failed create = %v, want ErrNodeNotFound", err)
	}
}

func TestCreateNodeIdentityConflict(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	req := defaultAlertRequest()
	node, _, err := ns.CreateNode(ctx, req, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	dup := defaultAlertRequest()
	dup.UUID = &node.UUID

	if _, _, err := ns.CreateNode(ctx, dup, "analyst1"); !errors.Is(err, models.ErrIdentityConflict) {
		t.Errorf("CreateNode with taken UUID = %v, want ErrIdentityConflict", err)
	}
}

func TestObservableGetOrCreate(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabObservableType, "ipv4")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	req := models.CreateNodeRequest{
		Kind:       models.KindObservable,
		Observable: &models.ObservableDetail{Type: "ipv4", Value: "203.0.113.7"},
	}

	first, created, err := ns.CreateNode(ctx, req, "analyst1")
	if err != nil {
		t.Fatalf("first CreateNode: %v", err)
	}
	if !created {
		t.Error("first created = false, want true")
	}

	second, created, err := ns.CreateNode(ctx, req, "analyst2")
	if err != nil {
		t.Fatalf("second CreateNode: %v", err)
	}
	if created {
		t.Error("second created = true, want false")
	}
	if second.UUID != first.UUID {
		t.Errorf("second UUID = %s, want %s", second.UUID, first.UUID)
	}

	// The get path must not append history.
	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, first.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want 1 (single CREATE)", len(entries))
	}
}

func TestUpdateNodeVersionGate(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	node, _, err := ns.CreateNode(ctx, defaultAlertRequest(), "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	stale := uuid.New()
	disposition := "FALSE_POSITIVE"

	_, err = ns.UpdateNode(ctx, node.UUID, models.UpdateNodeRequest{
		ExpectedVersion: &stale,
		Disposition:     &disposition,
	}, "analyst1")
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("UpdateNode with stale version = %v, want ErrVersionConflict", err)
	}

	// The rejected update must not have written anything.
	got, err := ns.GetNode(ctx, node.UUID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Alert.Disposition != nil {
		t.Error("rejected update leaked a write")
	}
	if got.Version != node.Version {
		t.Error("rejected update changed the version")
	}

	updated, err := ns.UpdateNode(ctx, node.UUID, models.UpdateNodeRequest{
		ExpectedVersion: &node.Version,
		Disposition:     &disposition,
	}, "analyst1")
	if err != nil {
		t.Fatalf("UpdateNode with current version: %v", err)
	}
	if updated.Version == node.Version {
		t.Error("version not regenerated after a tracked change")
	}
	if updated.Alert.Disposition == nil || *updated.Alert.Disposition != "FALSE_POSITIVE" {
		t.Errorf("Disposition = %v, want FALSE_POSITIVE", updated.Alert.Disposition)
	}
}

func TestUpdateNodeHistoryPerField(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")
	seedVocab(t, base, models.VocabTag, "phishing", "resolved")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	req := defaultAlertRequest()
	req.Tags = []string{"phishing"}

	node, _, err := ns.CreateNode(ctx, req, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	owner := "jane"
	tags := []string{"phishing", "resolved"}

	updated, err := ns.UpdateNode(ctx, node.UUID, models.UpdateNodeRequest{
		ExpectedVersion: &node.Version,
		Owner:           &owner,
		Tags:            &tags,
	}, "analyst1")
	if err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}

	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	// One CREATE plus one UPDATE per changed field.
	var updates []models.HistoryEntry
	for _, e := range entries {
		if e.Action == models.ActionUpdate {
			updates = append(updates, e)
		}
	}
	if len(updates) != 2 {
		t.Fatalf("UPDATE entries = %d, want 2", len(updates))
	}

	// Entries from one mutation share the action time and snapshot.
	if !updates[0].ActionTime.Equal(updates[1].ActionTime) {
		t.Error("UPDATE entries do not share an action time")
	}

	fields := map[string]models.HistoryEntry{}
	for _, e := range updates {
		if e.Field == nil {
			t.Fatal("UPDATE entry without field")
		}
		fields[*e.Field] = e
	}

	ownerEntry, ok := fields["owner"]
	if !ok {
		t.Fatal("no UPDATE entry for owner")
	}
	if ownerEntry.Diff == nil || ownerEntry.Diff.NewValue == nil || *ownerEntry.Diff.NewValue != "jane" {
		t.Errorf("owner diff = %+v, want new_value jane", ownerEntry.Diff)
	}

	tagsEntry, ok := fields["tags"]
	if !ok {
		t.Fatal("no UPDATE entry for tags")
	}
	if tagsEntry.Diff == nil || !reflect.DeepEqual(tagsEntry.Diff.Added, []string{"resolved"}) {
		t.Errorf("tags diff = %+v, want added [resolved]", tagsEntry.Diff)
	}
	if len(tagsEntry.Diff.Removed) != 0 {
		t.Errorf("tags removed = %v, want empty", tagsEntry.Diff.Removed)
	}

	if updated.Version == node.Version {
		t.Error("version not regenerated")
	}
}

func TestUpdateNodeNoChanges(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")
	seedVocab(t, base, models.VocabTag, "phishing")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	req := defaultAlertRequest()
	req.Tags = []string{"phishing"}

	node, _, err := ns.CreateNode(ctx, req, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	// Submitting the current values is a no-op: same version, no history.
	sameTags := []string{"phishing"}
	sameQueue := "default"

	updated, err := ns.UpdateNode(ctx, node.UUID, models.UpdateNodeRequest{
		ExpectedVersion: &node.Version,
		Tags:            &sameTags,
		Queue:           &sameQueue,
	}, "analyst1")
	if err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if updated.Version != node.Version {
		t.Error("no-op update regenerated the version")
	}

	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want 1 (CREATE only)", len(entries))
	}
}

func TestUpdateNodeWrongKindField(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	node, _, err := ns.CreateNode(ctx, defaultAlertRequest(), "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	// "status" belongs to events, not alerts.
	status := "CLOSED"
	_, err = ns.UpdateNode(ctx, node.UUID, models.UpdateNodeRequest{
		ExpectedVersion: &node.Version,
		Status:          &status,
	}, "analyst1")
	if !errors.Is(err, models.ErrMismatchedDetail) {
		t.Errorf("UpdateNode = %v, want ErrMismatchedDetail", err)
	}
}

func TestDeleteNode(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")
	seedVocab(t, base, models.VocabTag, "phishing")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	req := defaultAlertRequest()
	req.Tags = []string{"phishing"}

	node, _, err := ns.CreateNode(ctx, req, "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if err := ns.DeleteNode(ctx, node.UUID, "admin"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	if _, err := ns.GetNode(ctx, node.UUID); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("GetNode after delete = %v, want ErrNodeNotFound", err)
	}

	// History must survive the delete: the whole-record DELETE entry plus one
	// full-removal entry per populated field.
	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 50, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	var wholeRecord *models.HistoryEntry
	fieldEntries := map[string]models.HistoryEntry{}
	for i, e := range entries {
		if e.Action != models.ActionDelete {
			continue
		}
		if e.Field == nil {
			wholeRecord = &entries[i]
		} else {
			fieldEntries[*e.Field] = e
		}
	}

	if wholeRecord == nil {
		t.Fatal("no whole-record DELETE entry")
	}
	if len(wholeRecord.Snapshot) == 0 {
		t.Error("DELETE entry has no pre-delete snapshot")
	}

	tagsEntry, ok := fieldEntries["tags"]
	if !ok {
		t.Fatal("no DELETE entry for tags")
	}
	if tagsEntry.Diff == nil || !reflect.DeepEqual(tagsEntry.Diff.Removed, []string{"phishing"}) {
		t.Errorf("tags removal diff = %+v, want removed [phishing]", tagsEntry.Diff)
	}

	queueEntry, ok := fieldEntries["queue"]
	if !ok {
		t.Fatal("no DELETE entry for queue")
	}
	if queueEntry.Diff == nil || queueEntry.Diff.OldValue == nil || *queueEntry.Diff.OldValue != "default" {
		t.Errorf("queue removal diff = %+v, want old_value default", queueEntry.Diff)
	}
	if queueEntry.Diff.NewValue != nil {
		t.Errorf("queue removal new_value = %v, want nil", *queueEntry.Diff.NewValue)
	}

	if err := ns.DeleteNode(ctx, node.UUID, "admin"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("second DeleteNode = %v, want ErrNodeNotFound", err)
	}
}

func TestAddCommentBumpsVersion(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	node, _, err := ns.CreateNode(ctx, defaultAlertRequest(), "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	withComment, err := ns.AddComment(ctx, node.UUID, "looks like a true positive", "analyst1")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if withComment.Version == node.Version {
		t.Error("owned-child mutation did not regenerate the parent version")
	}
	if len(withComment.Comments) != 1 {
		t.Fatalf("Comments = %d, want 1", len(withComment.Comments))
	}

	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	last := entries[len(entries)-1]
	if last.Action != models.ActionUpdate || last.Field == nil || *last.Field != "comments" {
		t.Fatalf("last entry = %+v, want UPDATE on comments", last)
	}
	if last.Diff == nil || !reflect.DeepEqual(last.Diff.Added, []string{"looks like a true positive"}) {
		t.Errorf("comments diff = %+v, want added [comment value]", last.Diff)
	}

	// Deleting the comment bumps again and records a removal.
	afterDelete, err := ns.DeleteComment(ctx, withComment.Comments[0].UUID, "analyst1")
	if err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if afterDelete.Version == withComment.Version {
		t.Error("child deletion did not regenerate the parent version")
	}
	if len(afterDelete.Comments) != 0 {
		t.Errorf("Comments after delete = %d, want 0", len(afterDelete.Comments))
	}
}

func TestAddDetectionPointBumpsVersion(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	node, _, err := ns.CreateNode(ctx, defaultAlertRequest(), "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	withPoint, err := ns.AddDetectionPoint(ctx, node.UUID, "proxy log correlation", "analyst1")
	if err != nil {
		t.Fatalf("AddDetectionPoint: %v", err)
	}
	if withPoint.Version == node.Version {
		t.Error("owned-child mutation did not regenerate the parent version")
	}
	if len(withPoint.DetectionPoints) != 1 {
		t.Fatalf("DetectionPoints = %d, want 1", len(withPoint.DetectionPoints))
	}

	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	last := entries[len(entries)-1]
	if last.Action != models.ActionUpdate || last.Field == nil || *last.Field != "detection_points" {
		t.Fatalf("last entry = %+v, want UPDATE on detection_points", last)
	}
	if last.Diff == nil || !reflect.DeepEqual(last.Diff.Added, []string{"proxy log correlation"}) {
		t.Errorf("detection_points diff = %+v, want added [point value]", last.Diff)
	}

	afterDelete, err := ns.DeleteDetectionPoint(ctx, withPoint.DetectionPoints[0].UUID, "analyst1")
	if err != nil {
		t.Fatalf("DeleteDetectionPoint: %v", err)
	}
	if afterDelete.Version == withPoint.Version {
		t.Error("child deletion did not regenerate the parent version")
	}
	if len(afterDelete.DetectionPoints) != 0 {
		t.Errorf("DetectionPoints after delete = %d, want 0", len(afterDelete.DetectionPoints))
	}

	entries, _, err = hs.GetHistory(ctx, node.UUID, 10, 0)
	if err != nil {
		t.Fatalf("GetHistory after delete: %v", err)
	}
	last = entries[len(entries)-1]
	if last.Diff == nil || !reflect.DeepEqual(last.Diff.Removed, []string{"proxy log correlation"}) {
		t.Errorf("removal diff = %+v, want removed [point value]", last.Diff)
	}
}

func TestConcurrentCommentDelete(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	node, _, err := ns.CreateNode(ctx, defaultAlertRequest(), "analyst1")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	withComment, err := ns.AddComment(ctx, node.UUID, "duplicate of case 42", "analyst1")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	commentUUID := withComment.Comments[0].UUID

	// Exactly one of two racing deletes may win; the loser gets
	// ErrChildNotFound and leaves no trace on the owner.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ns.DeleteComment(ctx, commentUUID, "analyst1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, models.ErrChildNotFound):
			lost++
		default:
			t.Fatalf("DeleteComment: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("outcomes = %d wins, %d ErrChildNotFound, want 1 and 1", won, lost)
	}

	hs := store.NewHistoryStore(base)
	entries, _, err := hs.GetHistory(ctx, node.UUID, 20, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	removals := 0
	for _, e := range entries {
		if e.Field != nil && *e.Field == "comments" && e.Diff != nil && len(e.Diff.Removed) > 0 {
			removals++
		}
	}
	if removals != 1 {
		t.Errorf("comment removal entries = %d, want exactly 1", removals)
	}
}

func TestDeleteMissingChild(t *testing.T) {
	base := setupTestBase(t)

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	if _, err := ns.DeleteComment(ctx, uuid.New(), "analyst1"); !errors.Is(err, models.ErrChildNotFound) {
		t.Errorf("DeleteComment = %v, want ErrChildNotFound", err)
	}
	if _, err := ns.DeleteDetectionPoint(ctx, uuid.New(), "analyst1"); !errors.Is(err, models.ErrChildNotFound) {
		t.Errorf("DeleteDetectionPoint = %v, want ErrChildNotFound", err)
	}
}

func TestListNodesByKind(t *testing.T) {
	base := setupTestBase(t)
	seedVocab(t, base, models.VocabQueue, "default")
	seedVocab(t, base, models.VocabObservableType, "fqdn")

	ns := store.NewNodeStore(base)
	ctx := context.Background()

	if _, _, err := ns.CreateNode(ctx, defaultAlertRequest(), "analyst1"); err != nil {
		t.Fatalf("CreateNode alert: %v", err)
	}

	obsReq := models.CreateNodeRequest{
		Kind:       models.KindObservable,
		Observable: &models.ObservableDetail{Type: "fqdn", Value: "evil.example.com"},
	}
	if _, _, err := ns.CreateNode(ctx, obsReq, "analyst1"); err != nil {
		t.Fatalf("CreateNode observable: %v", err)
	}

	alerts, hasMore, err := ns.ListNodes(ctx, "alert", 10, 0)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if hasMore {
		t.Error("hasMore = true, want false")
	}
	if len(alerts) != 1 || alerts[0].Kind != models.KindAlert {
		t.Errorf("alerts = %d entries, want exactly the one alert", len(alerts))
	}

	if _, _, err := ns.ListNodes(ctx, "widget", 10, 0); !errors.Is(err, models.ErrUnknownKind) {
		t.Errorf("ListNodes(widget) = %v, want ErrUnknownKind", err)
	}
}
