package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caseforge/caseforge/internal/diff"
	"github.com/caseforge/caseforge/internal/models"
)

// NodeStore handles node CRUD and owned-child operations.
type NodeStore struct {
	Base
}

// NewNodeStore creates a new NodeStore.
func NewNodeStore(base Base) *NodeStore {
	return &NodeStore{Base: base}
}

// uniqueConstraint names from 001_initial.sql, used to tell identity
// collisions apart from observable duplicates.
const (
	nodePKConstraint         = "cm_nodes_pkey"
	observableUniqConstraint = "cm_nodes_observable_type_value_key"
)

// CreateNode inserts a new node with its reference collections and the CREATE
// history entry, all in one transaction. The returned bool is false when an
// observable with the same (type, value) already existed and that row was
// returned instead (idempotent get-or-create; no history is written for it).
func (s *NodeStore) CreateNode(
	ctx context.Context,
	req models.CreateNodeRequest,
	actor string,
) (*models.Node, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("creating node: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	n := &models.Node{
		UUID:         uuid.New(),
		Kind:         req.Kind,
		Version:      NewVersion(),
		Tags:         normalizeSet(req.Tags),
		Directives:   normalizeSet(req.Directives),
		Threats:      normalizeSet(req.Threats),
		ThreatActors: normalizeSet(req.ThreatActors),

		Comments:        []models.Comment{},
		DetectionPoints: []models.DetectionPoint{},

		Alert:      req.Alert,
		Event:      req.Event,
		Analysis:   req.Analysis,
		Observable: req.Observable,
		User:       req.User,
	}

	if req.UUID != nil {
		n.UUID = *req.UUID
	}

	// Resolve every referenced vocabulary value before writing anything;
	// a single miss aborts the whole operation.
	collectionIDs, err := resolveNodeCollections(ctx, tx, n)
	if err != nil {
		return nil, false, err
	}

	if err := resolveVariantVocab(ctx, tx, n); err != nil {
		return nil, false, err
	}

	details, err := marshalDetails(n)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.insertNodeRow(ctx, tx, n, details)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("committing get-or-create node: %w", err)
		}

		return existing, false, nil
	}

	for kind, ids := range collectionIDs {
		if err := replaceCollection(ctx, tx, n.UUID, kind, ids); err != nil {
			return nil, false, err
		}
	}

	if err := recordCreate(ctx, tx, n, actor, time.Now().UTC()); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing create node: %w", err)
	}

	s.notify("cm_nodes", "insert", n.UUID.String())

	return n, true, nil
}

// insertNodeRow inserts the node row inside a savepoint so a uniqueness
// violation from a concurrent duplicate is caught and converted without
// aborting the outer transaction. Returns the winning row for observable
// duplicates, nil when this insert won.
func (s *NodeStore) insertNodeRow(
	ctx context.Context,
	tx pgx.Tx,
	n *models.Node,
	details []byte,
) (*models.Node, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting insert savepoint: %w", err)
	}

	err = sp.QueryRow(ctx, `
		INSERT INTO cm_nodes (uuid, kind, version, details)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		n.UUID, n.Kind, n.Version, details,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err == nil {
		if err := sp.Commit(ctx); err != nil {
			return nil, fmt.Errorf("releasing insert savepoint: %w", err)
		}

		return nil, nil
	}

	sp.Rollback(ctx) //nolint:errcheck // savepoint rollback on insert failure.

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil, fmt.Errorf("inserting node: %w", err)
	}

	switch pgErr.ConstraintName {
	case observableUniqConstraint:
		existing, err := s.getObservableByValue(ctx, tx, n.Observable.Type, n.Observable.Value)
		if err != nil {
			return nil, fmt.Errorf("reading winning observable row: %w", err)
		}

		return existing, nil
	default:
		return nil, models.ErrIdentityConflict
	}
}

// getObservableByValue loads the observable node with the given (type, value)
// pair, including collections and children.
func (s *NodeStore) getObservableByValue(
	ctx context.Context,
	tx pgx.Tx,
	obsType, obsValue string,
) (*models.Node, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+nodeColumns+` FROM cm_nodes
		WHERE kind = 'observable' AND details->>'type' = $1 AND details->>'value' = $2`,
		obsType, obsValue,
	)

	n, err := scanNode(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNodeNotFound
		}

		return nil, fmt.Errorf("scanning observable: %w", err)
	}

	if err := attachRelations(ctx, tx, n); err != nil {
		return nil, err
	}

	return n, nil
}

// UpdateNode applies a partial update gated on the expected version token.
// A stale token fails with ErrVersionConflict before any write. A no-op
// update (all submitted values equal current) leaves the version unchanged
// and emits no history.
func (s *NodeStore) UpdateNode(
	ctx context.Context,
	nodeUUID uuid.UUID,
	req models.UpdateNodeRequest,
	actor string,
) (*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("updating node: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	n, err := loadNode(ctx, tx, nodeUUID, true)
	if err != nil {
		return nil, err
	}

	if err := checkVersion(n.Version, req.ExpectedVersion); err != nil {
		return nil, err
	}

	if req.Empty() {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing no-op update: %w", err)
		}

		return n, nil
	}

	diffs, err := applyCollectionUpdates(ctx, tx, n, req)
	if err != nil {
		return nil, err
	}

	scalarDiffs, err := applyScalarUpdates(ctx, tx, n, req)
	if err != nil {
		return nil, err
	}

	diffs = append(diffs, scalarDiffs...)

	if len(diffs) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing no-change update: %w", err)
		}

		return n, nil
	}

	if err := bumpNodeVersion(ctx, tx, n); err != nil {
		return nil, err
	}

	if err := recordUpdate(ctx, tx, n, actor, time.Now().UTC(), diffs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing update node: %w", err)
	}

	s.notify("cm_nodes", "update", n.UUID.String())

	return n, nil
}

// DeleteNode removes a node and its tree placements (administrative path).
// A whole-record entry plus per-field removal entries are written to the
// history log first and survive the delete.
func (s *NodeStore) DeleteNode(ctx context.Context, nodeUUID uuid.UUID, actor string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	n, err := loadNode(ctx, tx, nodeUUID, true)
	if err != nil {
		return err
	}

	if err := recordDelete(ctx, tx, n, actor, time.Now().UTC()); err != nil {
		return err
	}

	// Leaves placing this node (and their descendant subtrees) plus all
	// trees rooted at it must go before the row itself.
	_, err = tx.Exec(ctx, `
		WITH RECURSIVE doomed AS (
			SELECT uuid FROM cm_tree_leaves WHERE node_uuid = $1 OR root_node_uuid = $1
			UNION
			SELECT l.uuid FROM cm_tree_leaves l JOIN doomed d ON l.parent_tree_uuid = d.uuid
		)
		DELETE FROM cm_tree_leaves WHERE uuid IN (SELECT uuid FROM doomed)`,
		nodeUUID,
	)
	if err != nil {
		return fmt.Errorf("deleting tree placements for node: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cm_nodes WHERE uuid = $1`, nodeUUID)
	if err != nil {
		return fmt.Errorf("executing node delete: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNodeNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete node: %w", err)
	}

	s.notify("cm_nodes", "delete", nodeUUID.String())

	return nil
}

// resolveNodeCollections resolves all reference collections of a node against
// their vocabulary kinds, returning the resolved ids per kind.
func resolveNodeCollections(
	ctx context.Context,
	tx pgx.Tx,
	n *models.Node,
) (map[models.VocabKind][]int64, error) {
	collections := map[models.VocabKind][]string{
		models.VocabTag:         n.Tags,
		models.VocabDirective:   n.Directives,
		models.VocabThreat:      n.Threats,
		models.VocabThreatActor: n.ThreatActors,
	}

	ids := make(map[models.VocabKind][]int64, len(collections))

	for kind, values := range collections {
		resolved, err := resolveValues(ctx, tx, kind, values)
		if err != nil {
			return nil, err
		}

		if len(resolved) > 0 {
			ids[kind] = resolved
		}
	}

	return ids, nil
}

// resolveVariantVocab checks variant-specific vocabulary references
// (alert queue, observable type) at create time.
func resolveVariantVocab(ctx context.Context, tx pgx.Tx, n *models.Node) error {
	switch n.Kind {
	case models.KindAlert:
		return resolveValue(ctx, tx, models.VocabQueue, n.Alert.Queue)
	case models.KindObservable:
		return resolveValue(ctx, tx, models.VocabObservableType, n.Observable.Type)
	default:
		return nil
	}
}

// applyCollectionUpdates resolves and replaces each submitted reference
// collection, returning one diff per collection that actually changed.
// Unchanged collections are left untouched in storage.
func applyCollectionUpdates(
	ctx context.Context,
	tx pgx.Tx,
	n *models.Node,
	req models.UpdateNodeRequest,
) ([]models.Diff, error) {
	updates := []struct {
		field  string
		kind   models.VocabKind
		values *[]string
		target *[]string
	}{
		{"tags", models.VocabTag, req.Tags, &n.Tags},
		{"directives", models.VocabDirective, req.Directives, &n.Directives},
		{"threats", models.VocabThreat, req.Threats, &n.Threats},
		{"threat_actors", models.VocabThreatActor, req.ThreatActors, &n.ThreatActors},
	}

	var diffs []models.Diff

	for _, u := range updates {
		if u.values == nil {
			continue
		}

		newValues := normalizeSet(*u.values)

		ids, err := resolveValues(ctx, tx, u.kind, newValues)
		if err != nil {
			return nil, err
		}

		d := diff.Sets(u.field, *u.target, newValues)
		if d == nil {
			continue
		}

		if err := replaceCollection(ctx, tx, n.UUID, u.kind, ids); err != nil {
			return nil, err
		}

		*u.target = newValues
		diffs = append(diffs, *d)
	}

	return diffs, nil
}

// applyScalarUpdates applies variant-specific scalar changes to the node in
// memory and returns one diff per field that actually changed. Submitting a
// field that does not belong to the node's kind fails the whole operation.
func applyScalarUpdates( //nolint:gocyclo,cyclop // one branch per tracked variant field.
	ctx context.Context,
	tx pgx.Tx,
	n *models.Node,
	req models.UpdateNodeRequest,
) ([]models.Diff, error) {
	if err := checkVariantFields(n.Kind, req); err != nil {
		return nil, err
	}

	var diffs []models.Diff

	add := func(d *models.Diff) {
		if d != nil {
			diffs = append(diffs, *d)
		}
	}

	switch n.Kind {
	case models.KindAlert:
		if req.Queue != nil {
			if err := resolveValue(ctx, tx, models.VocabQueue, *req.Queue); err != nil {
				return nil, err
			}

			add(diff.String("queue", n.Alert.Queue, *req.Queue))
			n.Alert.Queue = *req.Queue
		}

		if req.Disposition != nil {
			add(diff.Scalar("disposition", n.Alert.Disposition, req.Disposition))
			n.Alert.Disposition = req.Disposition
		}

		if req.Owner != nil {
			add(diff.Scalar("owner", n.Alert.Owner, req.Owner))
			n.Alert.Owner = req.Owner
		}

		if req.Description != nil {
			add(diff.String("description", n.Alert.Description, *req.Description))
			n.Alert.Description = *req.Description
		}

		if req.EventTime != nil {
			add(diff.Time("event_time", n.Alert.EventTime, req.EventTime))
			n.Alert.EventTime = req.EventTime
		}
	case models.KindEvent:
		if req.Name != nil {
			add(diff.String("name", n.Event.Name, *req.Name))
			n.Event.Name = *req.Name
		}

		if req.Status != nil {
			add(diff.String("status", n.Event.Status, *req.Status))
			n.Event.Status = *req.Status
		}
	case models.KindAnalysis:
		if req.ModuleType != nil {
			add(diff.String("module_type", n.Analysis.ModuleType, *req.ModuleType))
			n.Analysis.ModuleType = *req.ModuleType
		}

		if req.Summary != nil {
			add(diff.String("summary", n.Analysis.Summary, *req.Summary))
			n.Analysis.Summary = *req.Summary
		}
	case models.KindUser:
		if req.Username != nil {
			add(diff.String("username", n.User.Username, *req.Username))
			n.User.Username = *req.Username
		}

		if req.DisplayName != nil {
			add(diff.String("display_name", n.User.DisplayName, *req.DisplayName))
			n.User.DisplayName = *req.DisplayName
		}

		if req.Email != nil {
			add(diff.String("email", n.User.Email, *req.Email))
			n.User.Email = *req.Email
		}

		if req.Enabled != nil {
			add(diff.Bool("enabled", n.User.Enabled, *req.Enabled))
			n.User.Enabled = *req.Enabled
		}
	case models.KindObservable:
		// type and value are immutable; checkVariantFields rejects them.
	}

	return diffs, nil
}

// variantFields maps each kind to the scalar fields updatable on it.
// Observables have none: their (type, value) identity is immutable.
var variantFields = map[models.NodeKind]map[string]bool{
	models.KindAlert:      {"queue": true, "disposition": true, "owner": true, "description": true, "event_time": true},
	models.KindEvent:      {"name": true, "status": true},
	models.KindAnalysis:   {"module_type": true, "summary": true},
	models.KindObservable: {},
	models.KindUser:       {"username": true, "display_name": true, "email": true, "enabled": true},
}

// checkVariantFields rejects scalar fields that do not belong to the kind.
func checkVariantFields(kind models.NodeKind, req models.UpdateNodeRequest) error {
	submitted := map[string]bool{
		"queue":        req.Queue != nil,
		"disposition":  req.Disposition != nil,
		"owner":        req.Owner != nil,
		"description":  req.Description != nil,
		"event_time":   req.EventTime != nil,
		"name":         req.Name != nil,
		"status":       req.Status != nil,
		"module_type":  req.ModuleType != nil,
		"summary":      req.Summary != nil,
		"username":     req.Username != nil,
		"display_name": req.DisplayName != nil,
		"email":        req.Email != nil,
		"enabled":      req.Enabled != nil,
	}

	allowed := variantFields[kind]

	for field, present := range submitted {
		if present && !allowed[field] {
			return fmt.Errorf("%s on %s node: %w", field, kind, models.ErrMismatchedDetail)
		}
	}

	return nil
}

// bumpNodeVersion regenerates the node's version token and persists the
// current in-memory state of the row.
func bumpNodeVersion(ctx context.Context, tx pgx.Tx, n *models.Node) error {
	n.Version = NewVersion()

	details, err := marshalDetails(n)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		UPDATE cm_nodes SET version = $2, details = $3, updated_at = now()
		WHERE uuid = $1
		RETURNING updated_at`,
		n.UUID, n.Version, details,
	).Scan(&n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bumping node version: %w", err)
	}

	return nil
}

// normalizeSet deduplicates and sorts a collection's values.
func normalizeSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		if !seen[v] {
			seen[v] = true

			out = append(out, v)
		}
	}

	sort.Strings(out)

	return out
}
