package store

import (
	"github.com/google/uuid"

	"github.com/caseforge/caseforge/internal/models"
)

// NewVersion issues a fresh opaque version token. Tokens are unordered;
// row-equality is the only defined comparison, which tolerates multiple
// writers racing without a shared monotonic counter.
func NewVersion() uuid.UUID {
	return uuid.New()
}

// checkVersion gates an update on the caller's expected version token.
// A nil expected token bypasses the check (bulk/administrative paths).
func checkVersion(current uuid.UUID, expected *uuid.UUID) error {
	if expected == nil {
		return nil
	}

	if *expected != current {
		return models.ErrVersionConflict
	}

	return nil
}
