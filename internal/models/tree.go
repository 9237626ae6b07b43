package models

import (
	"time"

	"github.com/google/uuid"
)

// TreeLeaf places a node at a position within a rooted tree. ParentTreeUUID
// references another leaf of the same tree; nil means the leaf hangs directly
// off the root. For a fixed root, (NodeUUID, ParentTreeUUID) is unique —
// including the nil-parent case.
type TreeLeaf struct {
	UUID           uuid.UUID  `json:"uuid"`
	RootNodeUUID   uuid.UUID  `json:"root_node_uuid"`
	NodeUUID       uuid.UUID  `json:"node_uuid"`
	ParentTreeUUID *uuid.UUID `json:"parent_tree_uuid,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Tree is a materialized rooted tree: the root node plus the flat list of
// its leaves. Callers reconstruct nesting from ParentTreeUUID.
type Tree struct {
	Root   *Node      `json:"root"`
	Leaves []TreeLeaf `json:"leaves"`
}
