package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caseforge/caseforge/internal/models"
)

// Owned child records (comments, detection points) are presented as part of
// the node's logical state: every child mutation bumps the parent's version
// and appends one UPDATE history entry on the parent describing the change.

// AddComment appends a comment to a node and returns the updated node.
func (s *NodeStore) AddComment(
	ctx context.Context,
	nodeUUID uuid.UUID,
	value, actor string,
) (*models.Node, error) {
	if value == "" {
		return nil, models.ErrMissingValue
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("adding comment: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	n, err := loadNode(ctx, tx, nodeUUID, true)
	if err != nil {
		return nil, err
	}

	c := models.Comment{UUID: uuid.New(), NodeUUID: n.UUID, Value: value, CreatedBy: actor}

	err = tx.QueryRow(ctx, `
		INSERT INTO cm_comments (uuid, node_uuid, value, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		c.UUID, c.NodeUUID, c.Value, c.CreatedBy,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting comment: %w", err)
	}

	n.Comments = append(n.Comments, c)

	if err := finishChildMutation(ctx, tx, n, actor, "comments", value, true); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing add comment: %w", err)
	}

	s.notify("cm_comments", "insert", c.UUID.String())

	return n, nil
}

// AddDetectionPoint appends a detection point to a node and returns the
// updated node.
func (s *NodeStore) AddDetectionPoint(
	ctx context.Context,
	nodeUUID uuid.UUID,
	value, actor string,
) (*models.Node, error) {
	if value == "" {
		return nil, models.ErrMissingValue
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("adding detection point: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	n, err := loadNode(ctx, tx, nodeUUID, true)
	if err != nil {
		return nil, err
	}

	p := models.DetectionPoint{UUID: uuid.New(), NodeUUID: n.UUID, Value: value}

	err = tx.QueryRow(ctx, `
		INSERT INTO cm_detection_points (uuid, node_uuid, value)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		p.UUID, p.NodeUUID, p.Value,
	).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting detection point: %w", err)
	}

	n.DetectionPoints = append(n.DetectionPoints, p)

	if err := finishChildMutation(ctx, tx, n, actor, "detection_points", value, true); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing add detection point: %w", err)
	}

	s.notify("cm_detection_points", "insert", p.UUID.String())

	return n, nil
}

// DeleteComment removes a comment by UUID and returns the updated owner node.
func (s *NodeStore) DeleteComment(ctx context.Context, commentUUID uuid.UUID, actor string) (*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("deleting comment: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var nodeUUID uuid.UUID
	var value string

	err = tx.QueryRow(ctx,
		`SELECT node_uuid, value FROM cm_comments WHERE uuid = $1`,
		commentUUID,
	).Scan(&nodeUUID, &value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrChildNotFound
		}

		return nil, fmt.Errorf("reading comment: %w", err)
	}

	n, err := loadNode(ctx, tx, nodeUUID, true)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cm_comments WHERE uuid = $1`, commentUUID)
	if err != nil {
		return nil, fmt.Errorf("executing comment delete: %w", err)
	}

	// A concurrent delete may have removed the row between the initial read
	// and the owner lock. No row deleted means no version bump and no
	// history entry.
	if tag.RowsAffected() == 0 {
		return nil, models.ErrChildNotFound
	}

	n.Comments = removeComment(n.Comments, commentUUID)

	if err := finishChildMutation(ctx, tx, n, actor, "comments", value, false); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing delete comment: %w", err)
	}

	s.notify("cm_comments", "delete", commentUUID.String())

	return n, nil
}

// DeleteDetectionPoint removes a detection point by UUID and returns the
// updated owner node.
func (s *NodeStore) DeleteDetectionPoint(ctx context.Context, pointUUID uuid.UUID, actor string) (*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("deleting detection point: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var nodeUUID uuid.UUID
	var value string

	err = tx.QueryRow(ctx,
		`SELECT node_uuid, value FROM cm_detection_points WHERE uuid = $1`,
		pointUUID,
	).Scan(&nodeUUID, &value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrChildNotFound
		}

		return nil, fmt.Errorf("reading detection point: %w", err)
	}

	n, err := loadNode(ctx, tx, nodeUUID, true)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cm_detection_points WHERE uuid = $1`, pointUUID)
	if err != nil {
		return nil, fmt.Errorf("executing detection point delete: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, models.ErrChildNotFound
	}

	n.DetectionPoints = removeDetectionPoint(n.DetectionPoints, pointUUID)

	if err := finishChildMutation(ctx, tx, n, actor, "detection_points", value, false); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing delete detection point: %w", err)
	}

	s.notify("cm_detection_points", "delete", pointUUID.String())

	return n, nil
}

// finishChildMutation bumps the owner's version and appends the UPDATE
// history entry describing a single child addition or removal.
func finishChildMutation(
	ctx context.Context,
	tx pgx.Tx,
	n *models.Node,
	actor, field, value string,
	added bool,
) error {
	if err := bumpNodeVersion(ctx, tx, n); err != nil {
		return err
	}

	d := models.Diff{Field: field, Added: []string{}, Removed: []string{}}
	if added {
		d.Added = []string{value}
	} else {
		d.Removed = []string{value}
	}

	return recordUpdate(ctx, tx, n, actor, time.Now().UTC(), []models.Diff{d})
}

func removeComment(comments []models.Comment, commentUUID uuid.UUID) []models.Comment {
	out := comments[:0]

	for _, c := range comments {
		if c.UUID != commentUUID {
			out = append(out, c)
		}
	}

	return out
}

func removeDetectionPoint(points []models.DetectionPoint, pointUUID uuid.UUID) []models.DetectionPoint {
	out := points[:0]

	for _, p := range points {
		if p.UUID != pointUUID {
			out = append(out, p)
		}
	}

	return out
}
