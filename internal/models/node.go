// Package models defines data types for the case-management engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// NodeKind discriminates the concrete node variants.
type NodeKind string

// The closed set of node variants.
const (
	KindAlert      NodeKind = "alert"
	KindEvent      NodeKind = "event"
	KindAnalysis   NodeKind = "analysis"
	KindObservable NodeKind = "observable"
	KindUser       NodeKind = "user"
)

// nodeKinds is the set of valid kinds, used for parsing.
var nodeKinds = map[NodeKind]bool{
	KindAlert:      true,
	KindEvent:      true,
	KindAnalysis:   true,
	KindObservable: true,
	KindUser:       true,
}

// ParseNodeKind validates a kind string and returns the typed kind.
func ParseNodeKind(s string) (NodeKind, error) {
	k := NodeKind(s)
	if !nodeKinds[k] {
		return "", ErrUnknownKind
	}

	return k, nil
}

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	return nodeKinds[k]
}

// Node is the polymorphic base entity. Exactly one of the variant detail
// pointers is non-nil, matching Kind. Dispatch on Kind happens at the
// storage boundary only.
type Node struct {
	UUID    uuid.UUID `json:"uuid"`
	Kind    NodeKind  `json:"kind"`
	Version uuid.UUID `json:"version"`

	Tags         []string `json:"tags"`
	Directives   []string `json:"directives"`
	Threats      []string `json:"threats"`
	ThreatActors []string `json:"threat_actors"`

	Comments        []Comment        `json:"comments"`
	DetectionPoints []DetectionPoint `json:"detection_points"`

	Alert      *AlertDetail      `json:"alert,omitempty"`
	Event      *EventDetail      `json:"event,omitempty"`
	Analysis   *AnalysisDetail   `json:"analysis,omitempty"`
	Observable *ObservableDetail `json:"observable,omitempty"`
	User       *UserDetail       `json:"user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertDetail holds alert-specific attributes.
type AlertDetail struct {
	Queue       string     `json:"queue"`
	Disposition *string    `json:"disposition,omitempty"`
	Owner       *string    `json:"owner,omitempty"`
	Description string     `json:"description,omitempty"`
	EventTime   *time.Time `json:"event_time,omitempty"`
}

// EventDetail holds event-specific attributes.
type EventDetail struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// AnalysisDetail holds analysis-specific attributes.
type AnalysisDetail struct {
	ModuleType string `json:"module_type"`
	Summary    string `json:"summary,omitempty"`
}

// ObservableDetail holds observable-specific attributes.
// The (Type, Value) pair is unique across all observables and immutable
// after creation.
type ObservableDetail struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UserDetail holds user-specific attributes.
type UserDetail struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Comment is an owned child record, ordered by insertion time.
type Comment struct {
	UUID      uuid.UUID `json:"uuid"`
	NodeUUID  uuid.UUID `json:"-"`
	Value     string    `json:"value"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DetectionPoint is an owned child record, ordered by insertion time.
type DetectionPoint struct {
	UUID      uuid.UUID `json:"uuid"`
	NodeUUID  uuid.UUID `json:"-"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateNodeRequest is the payload for creating a new node.
// If UUID is nil an identity is generated; a caller-supplied UUID that
// collides with an existing row fails with ErrIdentityConflict.
type CreateNodeRequest struct {
	UUID *uuid.UUID `json:"uuid,omitempty"`
	Kind NodeKind   `json:"kind"`

	Tags         []string `json:"tags,omitempty"`
	Directives   []string `json:"directives,omitempty"`
	Threats      []string `json:"threats,omitempty"`
	ThreatActors []string `json:"threat_actors,omitempty"`

	Alert      *AlertDetail      `json:"alert,omitempty"`
	Event      *EventDetail      `json:"event,omitempty"`
	Analysis   *AnalysisDetail   `json:"analysis,omitempty"`
	Observable *ObservableDetail `json:"observable,omitempty"`
	User       *UserDetail       `json:"user,omitempty"`
}

// Validate checks that required fields are present and the variant payload
// matches the declared kind.
func (r *CreateNodeRequest) Validate() error {
	if _, err := ParseNodeKind(string(r.Kind)); err != nil {
		return err
	}

	variants := map[NodeKind]bool{
		KindAlert:      r.Alert != nil,
		KindEvent:      r.Event != nil,
		KindAnalysis:   r.Analysis != nil,
		KindObservable: r.Observable != nil,
		KindUser:       r.User != nil,
	}

	for kind, present := range variants {
		if kind == r.Kind && !present {
			return ErrMissingDetail
		}

		if kind != r.Kind && present {
			return ErrMismatchedDetail
		}
	}

	switch r.Kind {
	case KindAlert:
		if r.Alert.Queue == "" {
			return ErrMissingField("alert.queue")
		}
	case KindEvent:
		if r.Event.Name == "" {
			return ErrMissingField("event.name")
		}
	case KindAnalysis:
		if r.Analysis.ModuleType == "" {
			return ErrMissingField("analysis.module_type")
		}
	case KindObservable:
		if r.Observable.Type == "" {
			return ErrMissingField("observable.type")
		}

		if r.Observable.Value == "" {
			return ErrMissingField("observable.value")
		}
	case KindUser:
		if r.User.Username == "" {
			return ErrMissingField("user.username")
		}
	}

	return nil
}

// UpdateNodeRequest is the payload for updating an existing node.
// Nil pointers leave the corresponding field untouched. ExpectedVersion,
// when set, gates the update; nil bypasses the version check entirely
// (bulk/administrative paths).
type UpdateNodeRequest struct {
	ExpectedVersion *uuid.UUID `json:"expected_version,omitempty"`

	Tags         *[]string `json:"tags,omitempty"`
	Directives   *[]string `json:"directives,omitempty"`
	Threats      *[]string `json:"threats,omitempty"`
	ThreatActors *[]string `json:"threat_actors,omitempty"`

	Queue       *string    `json:"queue,omitempty"`
	Disposition *string    `json:"disposition,omitempty"`
	Owner       *string    `json:"owner,omitempty"`
	Description *string    `json:"description,omitempty"`
	EventTime   *time.Time `json:"event_time,omitempty"`

	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`

	ModuleType *string `json:"module_type,omitempty"`
	Summary    *string `json:"summary,omitempty"`

	Username    *string `json:"username,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// Empty reports whether the request touches no tracked attribute.
func (r *UpdateNodeRequest) Empty() bool {
	return r.Tags == nil && r.Directives == nil && r.Threats == nil &&
		r.ThreatActors == nil && r.Queue == nil && r.Disposition == nil &&
		r.Owner == nil && r.Description == nil && r.EventTime == nil &&
		r.Name == nil && r.Status == nil && r.ModuleType == nil &&
		r.Summary == nil && r.Username == nil && r.DisplayName == nil &&
		r.Email == nil && r.Enabled == nil
}
