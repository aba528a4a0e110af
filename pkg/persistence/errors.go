// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDocumentNotFound indicates no document exists for the given identifier.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDuplicateDocument indicates a document violates a uniqueness constraint.
	ErrDuplicateDocument = errors.New("duplicate document")
)

// DocumentError wraps document errors with additional context.
type DocumentError struct {
	Op         string // Operation being performed (e.g., "FindByID", "Insert")
	Collection string
	ID         string
	Err        error
}

func (e *DocumentError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Collection, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for document errors.
func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDocumentError creates a new document error with context.
func NewDocumentError(op, collection, id string, err error) *DocumentError {
	return &DocumentError{
		Op:         op,
		Collection: collection,
		ID:         id,
		Err:        err,
	}
}

// IsNotFound checks if an error indicates a document was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsDuplicate checks if an error indicates a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateDocument)
}
