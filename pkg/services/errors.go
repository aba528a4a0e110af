// Package services implements the graph builder and the job, workflow and SOW
// lifecycles of the ordering core.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/labflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation marks malformed user input (400 Bad Request).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a missing entity (404 Not Found).
	ErrNotFound = errors.New("not found")

	// ErrConstruction marks a graph that could not be materialized. It is a kind of
	// validation error.
	ErrConstruction = errors.New("graph construction failed")

	// ErrForbidden marks a failed role or ownership check (403 Forbidden).
	ErrForbidden = errors.New("not permitted")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ConstructionError names the submission reference that could not be resolved while
// building a graph.
type ConstructionError struct {
	Op   string
	Ref  string // Offending service id, submission node id or connection
	Kind string // "service", "node" or "connection"
}

func (e *ConstructionError) Error() string {
	if e.Kind == "connection" {
		return fmt.Sprintf("%s: connection %s is not allowed", e.Op, e.Ref)
	}

	return fmt.Sprintf("%s: unresolvable %s reference %q", e.Op, e.Kind, e.Ref)
}

func (e *ConstructionError) Is(target error) bool {
	return target == ErrConstruction || target == ErrValidation
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || persistence.IsNotFound(err)
}

// IsConstructionError checks if an error came from graph materialization.
func IsConstructionError(err error) bool {
	return errors.Is(err, ErrConstruction)
}

// IsAuthorizationError checks if an error should return HTTP 403.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// NewValidationError creates a new validation error with context. A nil err
// defaults to ErrValidation.
func NewValidationError(op, code, message string, err error) *ServiceError {
	if err == nil {
		err = ErrValidation
	} else if !errors.Is(err, ErrValidation) {
		err = fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError reports a missing entity of the given kind.
func NewNotFoundError(op, kind, id string) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    kind + "_not_found",
		Message: fmt.Sprintf("%s %s not found", kind, id),
		Err:     ErrNotFound,
	}
}

// NewAuthorizationError never says which check failed.
func NewAuthorizationError(op string) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "forbidden",
		Message: "not permitted",
		Err:     ErrForbidden,
	}
}

// notFoundOr maps a persistence miss to a NotFound service error and wraps anything
// else.
func notFoundOr(err error, op, kind, id string) error {
	if persistence.IsNotFound(err) {
		return NewNotFoundError(op, kind, id)
	}

	return fmt.Errorf("%s: %w", op, err)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput runs struct tag validation and reports failures as validation errors.
func validateInput(op string, input any) error {
	if err := validate.Struct(input); err != nil {
		return NewValidationError(op, "invalid_input", err.Error(), err)
	}

	return nil
}
