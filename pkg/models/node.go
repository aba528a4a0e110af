package models

import (
	"encoding/json"
	"time"
)

// NodeState is the progress of a node or workflow in the lab.
type NodeState string

const (
	NodeStateQueued     NodeState = "QUEUED"
	NodeStateInProgress NodeState = "IN_PROGRESS"
	NodeStateComplete   NodeState = "COMPLETE"
)

// Valid reports whether s is a known node state.
func (s NodeState) Valid() bool {
	switch s {
	case NodeStateQueued, NodeStateInProgress, NodeStateComplete:
		return true
	default:
		return false
	}
}

// Position is the canvas position of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SubmissionNode is a node as submitted by a client. FormData may be in either the
// canonical list shape or the legacy object shape.
type SubmissionNode struct {
	ID                     SubmissionID    `json:"id"                               validate:"required"`
	Label                  string          `json:"label"`
	ServiceID              StorageID       `json:"serviceId"                        validate:"required"`
	AdditionalInstructions string          `json:"additionalInstructions,omitempty"`
	FormData               any             `json:"formData,omitempty"`
	ReactNode              json.RawMessage `json:"reactNode,omitempty"`
	Position               *Position       `json:"position,omitempty"`
}

// Node is a persisted graph node bound to a catalog service.
type Node struct {
	ID                     StorageID       `json:"id"`
	Label                  string          `json:"label"`
	ServiceID              StorageID       `json:"serviceId"`
	AdditionalInstructions string          `json:"additionalInstructions,omitempty"`
	FormData               FormData        `json:"formData"`
	ReactNode              json.RawMessage `json:"reactNode,omitempty"`
	Position               *Position       `json:"position,omitempty"`
	Price                  *float64        `json:"price,omitempty"` // Cost snapshot at submission time
	State                  NodeState       `json:"state"`
	CreatedAt              time.Time       `json:"createdAt"`
}

func (n *Node) DocumentID() StorageID      { return n.ID }
func (n *Node) SetDocumentID(id StorageID) { n.ID = id }
