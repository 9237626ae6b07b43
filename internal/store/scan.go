package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caseforge/caseforge/internal/models"
)

// nodeColumns lists the columns selected for node queries.
const nodeColumns = `uuid, kind, version, details, created_at, updated_at`

// leafColumns lists the columns selected for tree leaf queries.
const leafColumns = `uuid, root_node_uuid, node_uuid, parent_tree_uuid, created_at`

// prefixedNodeColumns qualifies the node column list with a table alias for
// joined queries.
func prefixedNodeColumns(alias string) string {
	return alias + ".uuid, " + alias + ".kind, " + alias + ".version, " +
		alias + ".details, " + alias + ".created_at, " + alias + ".updated_at"
}

// scanNode scans a single row into a models.Node. Collections and owned
// children are loaded separately.
func scanNode(scan func(dest ...any) error) (*models.Node, error) {
	var n models.Node
	var kind string
	var details []byte

	err := scan(
		&n.UUID,
		&kind,
		&n.Version,
		&details,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Kind, err = models.ParseNodeKind(kind)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.UUID, err)
	}

	if err := unmarshalDetails(&n, details); err != nil {
		return nil, fmt.Errorf("unmarshalling node details: %w", err)
	}

	return &n, nil
}

// unmarshalDetails decodes the variant payload into the pointer matching the
// node's kind. This is the storage-boundary dispatch point.
func unmarshalDetails(n *models.Node, details []byte) error {
	switch n.Kind {
	case models.KindAlert:
		n.Alert = &models.AlertDetail{}
		return json.Unmarshal(details, n.Alert)
	case models.KindEvent:
		n.Event = &models.EventDetail{}
		return json.Unmarshal(details, n.Event)
	case models.KindAnalysis:
		n.Analysis = &models.AnalysisDetail{}
		return json.Unmarshal(details, n.Analysis)
	case models.KindObservable:
		n.Observable = &models.ObservableDetail{}
		return json.Unmarshal(details, n.Observable)
	case models.KindUser:
		n.User = &models.UserDetail{}
		return json.Unmarshal(details, n.User)
	}

	return models.ErrUnknownKind
}

// marshalDetails encodes the variant payload matching the node's kind.
func marshalDetails(n *models.Node) ([]byte, error) {
	var payload any

	switch n.Kind {
	case models.KindAlert:
		payload = n.Alert
	case models.KindEvent:
		payload = n.Event
	case models.KindAnalysis:
		payload = n.Analysis
	case models.KindObservable:
		payload = n.Observable
	case models.KindUser:
		payload = n.User
	default:
		return nil, models.ErrUnknownKind
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling node details: %w", err)
	}

	return data, nil
}

// scanLeaf scans a single row into a models.TreeLeaf.
func scanLeaf(scan func(dest ...any) error) (*models.TreeLeaf, error) {
	var l models.TreeLeaf
	var parent *uuid.UUID

	err := scan(
		&l.UUID,
		&l.RootNodeUUID,
		&l.NodeUUID,
		&parent,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.ParentTreeUUID = parent

	return &l, nil
}

// collectNodes scans all rows into a node slice.
func collectNodes(rows pgx.Rows) ([]models.Node, error) {
	nodes := make([]models.Node, 0, 16)

	for rows.Next() {
		n, err := scanNode(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}

		nodes = append(nodes, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node rows: %w", err)
	}

	return nodes, nil
}

// collectLeaves scans all rows into a leaf slice.
func collectLeaves(rows pgx.Rows) ([]models.TreeLeaf, error) {
	leaves := make([]models.TreeLeaf, 0, 16)

	for rows.Next() {
		l, err := scanLeaf(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning leaf row: %w", err)
		}

		leaves = append(leaves, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaf rows: %w", err)
	}

	return leaves, nil
}

// snapshotNode serializes the full node state for a history entry.
func snapshotNode(n *models.Node) (json.RawMessage, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("serializing node snapshot: %w", err)
	}

	return data, nil
}
