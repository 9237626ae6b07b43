package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for entity lookups.
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrLeafNotFound  = errors.New("tree leaf not found")
	ErrChildNotFound = errors.New("child record not found")
)

// ErrVersionConflict indicates the caller's expected version token does not
// match the node's current version. The caller must re-read and resubmit.
var ErrVersionConflict = errors.New("version conflict")

// ErrIdentityConflict indicates a caller-supplied identity collides with an
// existing, distinct row.
var ErrIdentityConflict = errors.New("identity conflict")

// ErrValueNotFound indicates a referenced vocabulary value does not exist.
// The whole write is aborted; no partial attribute application.
var ErrValueNotFound = errors.New("value not found")

// ErrUnknownKind indicates a kind string that names no known node variant.
var ErrUnknownKind = errors.New("unknown node kind")

// Sentinel errors for request validation.
var (
	ErrMissingDetail    = errors.New("variant detail is required for the declared kind")
	ErrMismatchedDetail = errors.New("variant detail does not match the declared kind")
	ErrMissingValue     = errors.New("value is required")
)

// ErrDuplicateKey indicates a unique constraint violation surfaced by the
// database. Stores convert it into ErrIdentityConflict or get-or-create
// reads; it never escapes the store layer.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrMissingField returns an error indicating a required variant field is absent.
func ErrMissingField(field string) error {
	return fmt.Errorf("%s is required", field)
}
