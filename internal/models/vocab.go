package models

import "time"

// VocabKind discriminates the shared vocabulary tables.
type VocabKind string

// Vocabulary kinds. The first four are the node reference-collection fields;
// observable_type and queue back variant-specific columns.
const (
	VocabTag            VocabKind = "tag"
	VocabDirective      VocabKind = "directive"
	VocabThreat         VocabKind = "threat"
	VocabThreatActor    VocabKind = "threat_actor"
	VocabObservableType VocabKind = "observable_type"
	VocabQueue          VocabKind = "queue"
)

var vocabKinds = map[VocabKind]bool{
	VocabTag:            true,
	VocabDirective:      true,
	VocabThreat:         true,
	VocabThreatActor:    true,
	VocabObservableType: true,
	VocabQueue:          true,
}

// ParseVocabKind validates a vocabulary kind string.
func ParseVocabKind(s string) (VocabKind, error) {
	k := VocabKind(s)
	if !vocabKinds[k] {
		return "", ErrUnknownKind
	}

	return k, nil
}

// VocabValue is one entry in a shared vocabulary, looked up by canonical value.
type VocabValue struct {
	ID        int64     `json:"id"`
	Kind      VocabKind `json:"kind"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
