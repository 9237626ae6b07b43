package models

import "time"

// AuditEntry is one operational audit log record describing an engine API
// call. It is written fire-and-forget outside the mutation transaction and is
// distinct from the transactional per-record history.
type AuditEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditQueryOpts holds filters for querying the operational audit log.
type AuditQueryOpts struct {
	EntityKind string
	EntityID   string
	Action     string
	Since      *time.Time
	Limit      int
	Offset     int
}
