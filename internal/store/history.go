package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caseforge/caseforge/internal/diff"
	"github.com/caseforge/caseforge/internal/metrics"
	"github.com/caseforge/caseforge/internal/models"
)

// HistoryStore reads the append-only history log. Writes happen through the
// package-level record* helpers inside the owning store's transaction so a
// mutation and its history entries commit or roll back together.
type HistoryStore struct {
	Base
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(base Base) *HistoryStore {
	return &HistoryStore{Base: base}
}

// insertHistory appends a single history row within the caller's transaction.
func insertHistory(ctx context.Context, tx pgx.Tx, e *models.HistoryEntry) error {
	var diffJSON []byte

	if e.Diff != nil {
		data, err := json.Marshal(e.Diff)
		if err != nil {
			return fmt.Errorf("marshalling history diff: %w", err)
		}

		diffJSON = data
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO cm_history (uuid, record_uuid, record_kind, action, action_by, action_time, field, diff, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.UUID, e.RecordUUID, e.RecordKind, e.Action, e.ActionBy, e.ActionTime, e.Field, diffJSON, e.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	metrics.HistoryEntriesTotal.WithLabelValues(string(e.Action)).Inc()

	return nil
}

// recordCreate appends the single whole-record CREATE entry with the
// post-create snapshot.
func recordCreate(ctx context.Context, tx pgx.Tx, n *models.Node, actor string, at time.Time) error {
	snapshot, err := snapshotNode(n)
	if err != nil {
		return err
	}

	return insertHistory(ctx, tx, &models.HistoryEntry{
		UUID:       uuid.New(),
		RecordUUID: n.UUID,
		RecordKind: n.Kind,
		Action:     models.ActionCreate,
		ActionBy:   actor,
		ActionTime: at,
		Snapshot:   snapshot,
	})
}

// recordUpdate appends one UPDATE entry per diff. All entries share the same
// action time and carry the snapshot taken after all changes in the
// transaction were applied, never per-field intermediate states.
func recordUpdate(ctx context.Context, tx pgx.Tx, n *models.Node, actor string, at time.Time, diffs []models.Diff) error {
	if len(diffs) == 0 {
		return nil
	}

	snapshot, err := snapshotNode(n)
	if err != nil {
		return err
	}

	for i := range diffs {
		d := diffs[i]
		field := d.Field

		err := insertHistory(ctx, tx, &models.HistoryEntry{
			UUID:       uuid.New(),
			RecordUUID: n.UUID,
			RecordKind: n.Kind,
			Action:     models.ActionUpdate,
			ActionBy:   actor,
			ActionTime: at,
			Field:      &field,
			Diff:       &d,
			Snapshot:   snapshot,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// recordDelete appends the whole-record DELETE entry plus one entry per field
// that held a non-empty value immediately prior to deletion, expressed as full
// removal. Every entry carries the pre-delete snapshot.
func recordDelete(ctx context.Context, tx pgx.Tx, n *models.Node, actor string, at time.Time) error {
	snapshot, err := snapshotNode(n)
	if err != nil {
		return err
	}

	err = insertHistory(ctx, tx, &models.HistoryEntry{
		UUID:       uuid.New(),
		RecordUUID: n.UUID,
		RecordKind: n.Kind,
		Action:     models.ActionDelete,
		ActionBy:   actor,
		ActionTime: at,
		Snapshot:   snapshot,
	})
	if err != nil {
		return err
	}

	for _, d := range deletionDiffs(n) {
		field := d.Field

		err := insertHistory(ctx, tx, &models.HistoryEntry{
			UUID:       uuid.New(),
			RecordUUID: n.UUID,
			RecordKind: n.Kind,
			Action:     models.ActionDelete,
			ActionBy:   actor,
			ActionTime: at,
			Field:      &field,
			Diff:       d,
			Snapshot:   snapshot,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// deletionDiffs expresses every populated tracked field of a node as a full
// removal: collections become removed_from_list of the entire prior
// collection, scalars become {old_value, new_value: nil}.
func deletionDiffs(n *models.Node) []*models.Diff {
	var diffs []*models.Diff

	add := func(d *models.Diff) {
		if d != nil {
			diffs = append(diffs, d)
		}
	}

	add(diff.Removal("tags", n.Tags))
	add(diff.Removal("directives", n.Directives))
	add(diff.Removal("threats", n.Threats))
	add(diff.Removal("threat_actors", n.ThreatActors))
	add(diff.Removal("comments", commentValues(n.Comments)))
	add(diff.Removal("detection_points", detectionPointValues(n.DetectionPoints)))

	for field, value := range scalarValues(n) {
		if value == nil || *value == "" {
			continue
		}

		add(diff.Scalar(field, value, nil))
	}

	return diffs
}

// scalarValues flattens the variant-specific tracked scalars of a node into
// canonical string form, keyed by field name.
func scalarValues(n *models.Node) map[string]*string {
	values := make(map[string]*string, 5)

	str := func(s string) *string {
		if s == "" {
			return nil
		}

		return &s
	}

	switch n.Kind {
	case models.KindAlert:
		values["queue"] = str(n.Alert.Queue)
		values["disposition"] = n.Alert.Disposition
		values["owner"] = n.Alert.Owner
		values["description"] = str(n.Alert.Description)

		if n.Alert.EventTime != nil {
			s := n.Alert.EventTime.UTC().Format(time.RFC3339Nano)
			values["event_time"] = &s
		}
	case models.KindEvent:
		values["name"] = str(n.Event.Name)
		values["status"] = str(n.Event.Status)
	case models.KindAnalysis:
		values["module_type"] = str(n.Analysis.ModuleType)
		values["summary"] = str(n.Analysis.Summary)
	case models.KindObservable:
		values["type"] = str(n.Observable.Type)
		values["value"] = str(n.Observable.Value)
	case models.KindUser:
		values["username"] = str(n.User.Username)
		values["display_name"] = str(n.User.DisplayName)
		values["email"] = str(n.User.Email)

		enabled := "false"
		if n.User.Enabled {
			enabled = "true"
		}
		values["enabled"] = &enabled
	}

	return values
}

func commentValues(comments []models.Comment) []string {
	values := make([]string, 0, len(comments))
	for _, c := range comments {
		values = append(values, c.Value)
	}

	return values
}

func detectionPointValues(points []models.DetectionPoint) []string {
	values := make([]string, 0, len(points))
	for _, p := range points {
		values = append(values, p.Value)
	}

	return values
}

// GetHistory returns history entries for a record, ordered by action time
// ascending with insertion order breaking ties, with has_more pagination.
func (s *HistoryStore) GetHistory(
	ctx context.Context,
	recordUUID uuid.UUID,
	limit, offset int,
) ([]models.HistoryEntry, bool, error) {
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

	rows, err := s.Pool.Query(ctx, `
		SELECT id, uuid, record_uuid, record_kind, action, action_by, action_time, field, diff, snapshot
		FROM cm_history
		WHERE record_uuid = $1
		ORDER BY action_time ASC, id ASC
		LIMIT $2 OFFSET $3`,
		recordUUID, limit+1, offset,
	)
	if err != nil {
		return nil, false, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0, limit+1)

	for rows.Next() {
		var e models.HistoryEntry
		var diffJSON []byte

		if err := rows.Scan(
			&e.ID, &e.UUID, &e.RecordUUID, &e.RecordKind, &e.Action,
			&e.ActionBy, &e.ActionTime, &e.Field, &diffJSON, &e.Snapshot,
		); err != nil {
			return nil, false, fmt.Errorf("scanning history row: %w", err)
		}

		if diffJSON != nil {
			e.Diff = &models.Diff{}
			if err := json.Unmarshal(diffJSON, e.Diff); err != nil {
				return nil, false, fmt.Errorf("unmarshalling history diff: %w", err)
			}

			if e.Field != nil {
				e.Diff.Field = *e.Field
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating history rows: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return entries, hasMore, nil
}
