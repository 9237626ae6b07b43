package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caseforge/caseforge/internal/models"
)

// VocabStore manages the shared vocabulary tables.
type VocabStore struct {
	Base
}

// NewVocabStore creates a new VocabStore.
func NewVocabStore(base Base) *VocabStore {
	return &VocabStore{Base: base}
}

// CreateValue inserts a vocabulary value, returning the existing row when the
// (kind, value) pair is already present.
func (s *VocabStore) CreateValue(ctx context.Context, kind models.VocabKind, value string) (*models.VocabValue, error) {
	if value == "" {
		return nil, models.ErrMissingValue
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	v := models.VocabValue{Kind: kind, Value: value}

	err := s.Pool.QueryRow(ctx, `
		INSERT INTO cm_vocab (kind, value) VALUES ($1, $2)
		ON CONFLICT (kind, value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id, created_at`,
		kind, value,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting vocabulary value: %w", err)
	}

	return &v, nil
}

// ListValues returns all values for a vocabulary kind, sorted by value.
func (s *VocabStore) ListValues(ctx context.Context, kind models.VocabKind) ([]models.VocabValue, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT id, kind, value, created_at FROM cm_vocab WHERE kind = $1 ORDER BY value`,
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("querying vocabulary: %w", err)
	}
	defer rows.Close()

	values := make([]models.VocabValue, 0, 32)

	for rows.Next() {
		var v models.VocabValue
		if err := rows.Scan(&v.ID, &v.Kind, &v.Value, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning vocabulary row: %w", err)
		}

		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vocabulary rows: %w", err)
	}

	return values, nil
}

// resolveValues resolves each supplied value against the vocabulary table for
// the given kind. Any unresolved value fails the whole operation — partial
// application is not permitted. Package-level so NodeStore can call it within
// its transaction.
func resolveValues(ctx context.Context, tx pgx.Tx, kind models.VocabKind, values []string) ([]int64, error) {
	if len(values) == 0 {
		return nil, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT id, value FROM cm_vocab WHERE kind = $1 AND value = ANY($2)`,
		kind, values,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving %s values: %w", kind, err)
	}
	defer rows.Close()

	found := make(map[string]int64, len(values))

	for rows.Next() {
		var id int64
		var value string

		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scanning %s value: %w", kind, err)
		}

		found[value] = id
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s values: %w", kind, err)
	}

	ids := make([]int64, 0, len(values))

	for _, v := range values {
		id, ok := found[v]
		if !ok {
			return nil, fmt.Errorf("%s %q: %w", kind, v, models.ErrValueNotFound)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// resolveValue checks that a single value exists for the given vocabulary kind.
func resolveValue(ctx context.Context, tx pgx.Tx, kind models.VocabKind, value string) error {
	_, err := resolveValues(ctx, tx, kind, []string{value})

	return err
}

// replaceCollection replaces a node's reference collection for one vocabulary
// kind with the resolved ids. Full replacement, never element-by-element.
func replaceCollection(ctx context.Context, tx pgx.Tx, nodeUUID uuid.UUID, kind models.VocabKind, ids []int64) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM cm_node_vocab
		WHERE node_uuid = $1
		AND vocab_id IN (SELECT id FROM cm_vocab WHERE kind = $2)`,
		nodeUUID, kind,
	)
	if err != nil {
		return fmt.Errorf("clearing %s collection: %w", kind, err)
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cm_node_vocab (node_uuid, vocab_id) VALUES ($1, $2)`,
			nodeUUID, id,
		); err != nil {
			return fmt.Errorf("inserting %s collection row: %w", kind, err)
		}
	}

	return nil
}

// loadCollections loads all reference collections for a node, keyed by
// vocabulary kind. Values are returned sorted by the query for determinism.
func loadCollections(ctx context.Context, tx pgx.Tx, nodeUUID uuid.UUID) (map[models.VocabKind][]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT v.kind, v.value FROM cm_node_vocab nv
		JOIN cm_vocab v ON v.id = nv.vocab_id
		WHERE nv.node_uuid = $1
		ORDER BY v.kind, v.value`,
		nodeUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying node collections: %w", err)
	}
	defer rows.Close()

	collections := make(map[models.VocabKind][]string, 4)

	for rows.Next() {
		var kind models.VocabKind
		var value string

		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}

		collections[kind] = append(collections[kind], value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection rows: %w", err)
	}

	return collections, nil
}
