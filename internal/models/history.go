package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// HistoryAction is the kind of mutation a history entry records.
type HistoryAction string

// History actions.
const (
	ActionCreate HistoryAction = "CREATE"
	ActionUpdate HistoryAction = "UPDATE"
	ActionDelete HistoryAction = "DELETE"
)

// Diff describes a single field's change. Exactly one shape is populated:
// scalar (OldValue/NewValue) or collection (Added/Removed). Field names the
// tracked attribute the diff concerns and is carried outside the serialized
// diff body.
type Diff struct {
	Field string

	OldValue *string
	NewValue *string

	Added   []string
	Removed []string
}

// IsList reports whether the diff is collection-shaped.
func (d *Diff) IsList() bool {
	return d.Added != nil || d.Removed != nil
}

// scalarDiffJSON and listDiffJSON are the two wire shapes. A collection diff
// always serializes both lists, even when one is empty.
type scalarDiffJSON struct {
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

type listDiffJSON struct {
	Added   []string `json:"added_to_list"`
	Removed []string `json:"removed_from_list"`
}

// MarshalJSON serializes the diff in its scalar or collection shape.
func (d Diff) MarshalJSON() ([]byte, error) {
	if d.IsList() {
		added := d.Added
		if added == nil {
			added = []string{}
		}

		removed := d.Removed
		if removed == nil {
			removed = []string{}
		}

		return json.Marshal(listDiffJSON{Added: added, Removed: removed})
	}

	return json.Marshal(scalarDiffJSON{OldValue: d.OldValue, NewValue: d.NewValue})
}

// UnmarshalJSON restores a diff from either wire shape.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var list listDiffJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	if list.Added != nil || list.Removed != nil {
		d.Added = list.Added
		d.Removed = list.Removed

		return nil
	}

	var scalar scalarDiffJSON
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}

	d.OldValue = scalar.OldValue
	d.NewValue = scalar.NewValue

	return nil
}

// HistoryEntry is one immutable, append-only audit record. Field and Diff are
// nil only for whole-record CREATE/DELETE entries. Snapshot is the full
// serialized node as it existed immediately after the action (pre-delete for
// DELETE entries).
type HistoryEntry struct {
	ID         int64           `json:"-"`
	UUID       uuid.UUID       `json:"uuid"`
	RecordUUID uuid.UUID       `json:"record_uuid"`
	RecordKind NodeKind        `json:"record_kind"`
	Action     HistoryAction   `json:"action"`
	ActionBy   string          `json:"action_by"`
	ActionTime time.Time       `json:"action_time"`
	Field      *string         `json:"field,omitempty"`
	Diff       *Diff           `json:"diff,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot"`
}
