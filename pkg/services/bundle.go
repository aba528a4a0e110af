package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
)

// Bundle manages catalog graph templates.
type Bundle struct {
	persistence persistence.Persistence
	builder     *GraphBuilder
	logger      *slog.Logger
}

// NewBundle creates a new bundle service.
func NewBundle(p persistence.Persistence, builder *GraphBuilder, logger *slog.Logger) *Bundle {
	return &Bundle{persistence: p, builder: builder, logger: logger}
}

// CreateBundleInput is a bundle definition with submission-scoped ids.
type CreateBundleInput struct {
	Name        string                  `json:"name"        validate:"required,max=255"`
	Description string                  `json:"description"`
	Nodes       []models.SubmissionNode `json:"nodes"       validate:"dive"`
	Edges       []models.SubmissionEdge `json:"edges"       validate:"dive"`
}

// Create builds and persists a bundle as one unit.
func (b *Bundle) Create(ctx context.Context, input CreateBundleInput) (*models.BundleGraph, error) {
	var created *models.BundleGraph

	err := b.builder.Run(ctx, func(ctx context.Context, u *Unit) error {
		var err error

		created, err = b.CreateIn(ctx, u, input)

		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// CreateIn builds and persists a bundle inside an existing unit.
func (b *Bundle) CreateIn(ctx context.Context, u *Unit, input CreateBundleInput) (*models.BundleGraph, error) {
	const op = "Bundle.Create"

	if err := validateInput(op, input); err != nil {
		return nil, err
	}

	graph, err := b.builder.BuildIn(ctx, u, models.GraphSubmission{Nodes: input.Nodes, Edges: input.Edges})
	if err != nil {
		return nil, err
	}

	bundle := &models.Bundle{
		Name:        input.Name,
		Description: input.Description,
		NodeIDs:     graph.NodeIDs(),
		EdgeIDs:     graph.EdgeIDs(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := u.Store().Bundles().Insert(ctx, bundle); err != nil {
		return nil, fmt.Errorf("failed to create bundle: %w", err)
	}

	u.Track(persistence.CollectionBundles, bundle.ID)
	u.Emit(string(bundle.ID), events.BundleCreated{
		BaseEvent: events.NewBaseEvent(events.BundleCreatedEvent, ""),
		BundleID:  bundle.ID,
		Name:      bundle.Name,
	})

	return &models.BundleGraph{Bundle: bundle, Nodes: graph.Nodes, Edges: graph.Edges}, nil
}

// FetchByID returns a bundle with its nodes and edges.
func (b *Bundle) FetchByID(ctx context.Context, id models.StorageID) (*models.BundleGraph, error) {
	bundle, err := b.persistence.Bundles().FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Bundle.FetchByID", "bundle", string(id))
	}

	nodes, edges, err := hydrate(ctx, b.persistence, b.logger, bundle.NodeIDs, bundle.EdgeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle %s: %w", id, err)
	}

	return &models.BundleGraph{Bundle: bundle, Nodes: nodes, Edges: edges}, nil
}

// List returns every bundle without its graph.
func (b *Bundle) List(ctx context.Context) ([]*models.Bundle, error) {
	bundles, err := b.persistence.Bundles().FindByFilter(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}

	return bundles, nil
}
