package models

import (
	"encoding/json"
	"time"
)

// SubmissionEdge connects two submission nodes by their submission ids.
type SubmissionEdge struct {
	ID        SubmissionID    `json:"id"`
	Source    SubmissionID    `json:"source"              validate:"required"`
	Target    SubmissionID    `json:"target"              validate:"required"`
	ReactEdge json.RawMessage `json:"reactEdge,omitempty"`
}

// Edge is a persisted connection between two stored nodes of the same graph.
type Edge struct {
	ID        StorageID       `json:"id"`
	Source    StorageID       `json:"source"`
	Target    StorageID       `json:"target"`
	ReactEdge json.RawMessage `json:"reactEdge,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (e *Edge) DocumentID() StorageID      { return e.ID }
func (e *Edge) SetDocumentID(id StorageID) { e.ID = id }
