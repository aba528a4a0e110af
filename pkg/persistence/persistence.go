// Package persistence provides the document store abstraction used by the ordering core.
package persistence

import (
	"context"

	"github.com/dukex/labflow/pkg/models"
)

// Collection names shared by every backend.
const (
	CollectionServices   = "services"
	CollectionCategories = "categories"
	CollectionBundles    = "bundles"
	CollectionNodes      = "nodes"
	CollectionEdges      = "edges"
	CollectionWorkflows  = "workflows"
	CollectionJobs       = "jobs"
	CollectionSOWs       = "sows"
)

// Filter selects documents whose top-level JSON fields equal the given scalar values.
// An empty filter matches every document.
type Filter map[string]any

// Collection stores documents of one kind.
type Collection[T any] interface {
	// Insert persists doc, assigning a generated id when doc has none.
	Insert(ctx context.Context, doc *T) error
	// FindByID returns ErrDocumentNotFound when id does not exist.
	FindByID(ctx context.Context, id models.StorageID) (*T, error)
	// FindByIDs silently omits missing ids. Order is not guaranteed.
	FindByIDs(ctx context.Context, ids []models.StorageID) ([]*T, error)
	FindByFilter(ctx context.Context, filter Filter) ([]*T, error)
	// UpdateByID applies mutate to the stored document as one atomic
	// read-modify-write. Returning an error from mutate aborts the update.
	UpdateByID(ctx context.Context, id models.StorageID, mutate func(doc *T) error) (*T, error)
	// DeleteByID is idempotent.
	DeleteByID(ctx context.Context, id models.StorageID) error
	// DeleteByIDs is idempotent.
	DeleteByIDs(ctx context.Context, ids []models.StorageID) error
	DropAll(ctx context.Context) error
}

// Persistence groups the collections of the ordering core.
type Persistence interface {
	Services() Collection[models.Service]
	Categories() Collection[models.Category]
	Bundles() Collection[models.Bundle]
	Nodes() Collection[models.Node]
	Edges() Collection[models.Edge]
	Workflows() Collection[models.Workflow]
	Jobs() Collection[models.Job]
	SOWs() Collection[models.SOW]

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Transactor is implemented by stores that support multi-document transactions.
// fn receives a Persistence bound to the transaction; returning an error rolls it back.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Persistence) error) error
}
