// Package diff computes structured change records between old and new values
// of tracked node fields. It is pure: it never touches storage and has no
// side effects.
package diff

import (
	"sort"
	"time"

	"github.com/caseforge/caseforge/internal/models"
)

// Scalar compares two optional scalar values in their canonical string form.
// Returns nil when old and new are equal (no history entry is emitted).
func Scalar(field string, oldVal, newVal *string) *models.Diff {
	if equalPtr(oldVal, newVal) {
		return nil
	}

	return &models.Diff{Field: field, OldValue: clone(oldVal), NewValue: clone(newVal)}
}

// String compares two plain scalar values. The empty string is treated as a
// real value, not absence.
func String(field, oldVal, newVal string) *models.Diff {
	if oldVal == newVal {
		return nil
	}

	return &models.Diff{Field: field, OldValue: &oldVal, NewValue: &newVal}
}

// Bool compares two boolean values, canonicalized to "true"/"false".
func Bool(field string, oldVal, newVal bool) *models.Diff {
	if oldVal == newVal {
		return nil
	}

	return String(field, boolString(oldVal), boolString(newVal))
}

// Time compares two optional timestamps, normalized to RFC 3339 UTC.
func Time(field string, oldVal, newVal *time.Time) *models.Diff {
	return Scalar(field, timeString(oldVal), timeString(newVal))
}

// Sets compares two collections as sets of canonical string keys. Added and
// removed are sorted deterministically; values present in both sides are
// never mentioned. Returns nil when both deltas are empty.
func Sets(field string, oldVals, newVals []string) *models.Diff {
	oldSet := toSet(oldVals)
	newSet := toSet(newVals)

	added := make([]string, 0, len(newSet))

	for v := range newSet {
		if !oldSet[v] {
			added = append(added, v)
		}
	}

	removed := make([]string, 0, len(oldSet))

	for v := range oldSet {
		if !newSet[v] {
			removed = append(removed, v)
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	sort.Strings(added)
	sort.Strings(removed)

	return &models.Diff{Field: field, Added: added, Removed: removed}
}

// Removal expresses the full removal of a collection, used for DELETE
// history entries. Returns nil when the collection is already empty.
func Removal(field string, values []string) *models.Diff {
	return Sets(field, values, nil)
}

// Apply replays a collection diff against a base set and returns the result
// sorted. Applying Sets(a, b) to a reproduces b exactly.
func Apply(base []string, d *models.Diff) []string {
	set := toSet(base)

	for _, v := range d.Removed {
		delete(set, v)
	}

	for _, v := range d.Added {
		set[v] = true
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}

	sort.Strings(out)

	return out
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func clone(s *string) *string {
	if s == nil {
		return nil
	}

	v := *s

	return &v
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}

	s := t.UTC().Format(time.RFC3339Nano)

	return &s
}

func boolString(b bool) string {
	if b {
		return "true"
	}

	return "false"
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}

	return set
}
