// Package models defines the core domain models for lab service ordering.
package models

// SubmissionID identifies a node or edge inside one client submission. It has no
// meaning in storage.
type SubmissionID string

// StorageID is a store-generated document identifier.
type StorageID string

// Document is implemented by every persisted model.
type Document interface {
	DocumentID() StorageID
	SetDocumentID(id StorageID)
}

// StorageIDs converts plain strings into storage ids.
func StorageIDs(ids ...string) []StorageID {
	out := make([]StorageID, len(ids))
	for i, id := range ids {
		out[i] = StorageID(id)
	}

	return out
}
