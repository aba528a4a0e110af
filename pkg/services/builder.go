package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/otelhelper"
	"github.com/dukex/labflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// BuildMode selects what happens to records written before a build fails.
type BuildMode string

const (
	// BuildModeBestEffort leaves already written records in place.
	BuildModeBestEffort BuildMode = "best-effort"
	// BuildModeTransactional runs the build in a store transaction when the store
	// supports one, and deletes every record it wrote otherwise.
	BuildModeTransactional BuildMode = "transactional"
)

// DefaultBuildConcurrency bounds parallel inserts within one build phase.
const DefaultBuildConcurrency = 4

// ParseBuildMode validates a configured build mode.
func ParseBuildMode(value string) (BuildMode, error) {
	switch mode := BuildMode(value); mode {
	case BuildModeBestEffort, BuildModeTransactional:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown build mode %q", value)
	}
}

// ServiceResolver looks up catalog services.
type ServiceResolver interface {
	ResolveService(ctx context.Context, id models.StorageID) (*models.Service, error)
}

// BuildOptions configures a GraphBuilder.
type BuildOptions struct {
	Mode                      BuildMode
	Concurrency               int
	EnforceAllowedConnections bool
}

// GraphBuilder materializes client submitted graphs.
type GraphBuilder struct {
	persistence persistence.Persistence
	catalog     ServiceResolver
	emitter     emitter
	logger      *slog.Logger
	options     BuildOptions
}

// NewGraphBuilder creates a graph builder. Zero options mean best-effort mode with
// the default concurrency.
func NewGraphBuilder(
	p persistence.Persistence,
	catalog ServiceResolver,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	options BuildOptions,
) *GraphBuilder {
	if options.Mode == "" {
		options.Mode = BuildModeBestEffort
	}

	if options.Concurrency <= 0 {
		options.Concurrency = DefaultBuildConcurrency
	}

	return &GraphBuilder{
		persistence: p,
		catalog:     catalog,
		emitter:     emitter{publisher: publisher, logger: logger},
		logger:      logger,
		options:     options,
	}
}

// Mode returns the configured build mode.
func (b *GraphBuilder) Mode() BuildMode {
	return b.options.Mode
}

// Unit is one all-or-nothing write sequence: a single build, or a job with all its
// workflows. Stores must be taken from Store so writes join the transaction.
type Unit struct {
	store    persistence.Persistence
	resolver ServiceResolver
	limit    int

	mu      sync.Mutex
	created map[string][]models.StorageID
	pending []pendingEvent
}

// Store returns the persistence bound to this unit.
func (u *Unit) Store() persistence.Persistence {
	return u.store
}

// UseResolver replaces the service resolver for the rest of the unit, so services
// written in the same transaction resolve.
func (u *Unit) UseResolver(resolver ServiceResolver) {
	u.resolver = resolver
}

// Track records a document written by the unit for compensating cleanup.
func (u *Unit) Track(collection string, ids ...models.StorageID) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.created != nil {
		u.created[collection] = append(u.created[collection], ids...)
	}
}

// Emit queues an event for publication once the unit has succeeded.
func (u *Unit) Emit(key string, event eventbus.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.pending = append(u.pending, pendingEvent{key: key, event: event})
}

// Run executes fn as one unit according to the build mode and publishes the events
// fn queued when it succeeds.
func (b *GraphBuilder) Run(ctx context.Context, fn func(ctx context.Context, u *Unit) error) error {
	unit, err := b.run(ctx, fn)
	if err != nil {
		return err
	}

	for _, pending := range unit.pending {
		b.emitter.emit(ctx, pending.key, pending.event)
	}

	return nil
}

func (b *GraphBuilder) run(ctx context.Context, fn func(ctx context.Context, u *Unit) error) (*Unit, error) {
	if b.options.Mode == BuildModeTransactional {
		if transactor, ok := b.persistence.(persistence.Transactor); ok {
			var unit *Unit

			err := transactor.WithTransaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
				// A transaction is used by one goroutine at a time.
				unit = &Unit{store: tx, resolver: b.catalog, limit: 1}

				return fn(ctx, unit)
			})
			if err != nil {
				return nil, err
			}

			return unit, nil
		}

		unit := &Unit{
			store:    b.persistence,
			resolver: b.catalog,
			limit:    b.options.Concurrency,
			created:  make(map[string][]models.StorageID),
		}

		if err := fn(ctx, unit); err != nil {
			b.cleanup(context.WithoutCancel(ctx), unit)

			return nil, err
		}

		return unit, nil
	}

	unit := &Unit{store: b.persistence, resolver: b.catalog, limit: b.options.Concurrency}
	if err := fn(ctx, unit); err != nil {
		return nil, err
	}

	return unit, nil
}

var cleanupOrder = []string{
	persistence.CollectionJobs,
	persistence.CollectionWorkflows,
	persistence.CollectionBundles,
	persistence.CollectionEdges,
	persistence.CollectionNodes,
}

// cleanup deletes everything a failed unit wrote.
func (b *GraphBuilder) cleanup(ctx context.Context, u *Unit) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, collection := range cleanupOrder {
		ids := u.created[collection]
		if len(ids) == 0 {
			continue
		}

		var err error

		switch collection {
		case persistence.CollectionJobs:
			err = u.store.Jobs().DeleteByIDs(ctx, ids)
		case persistence.CollectionWorkflows:
			err = u.store.Workflows().DeleteByIDs(ctx, ids)
		case persistence.CollectionBundles:
			err = u.store.Bundles().DeleteByIDs(ctx, ids)
		case persistence.CollectionEdges:
			err = u.store.Edges().DeleteByIDs(ctx, ids)
		case persistence.CollectionNodes:
			err = u.store.Nodes().DeleteByIDs(ctx, ids)
		}

		if err != nil {
			b.logger.ErrorContext(ctx, "failed to clean up after failed build",
				"collection", collection,
				"ids", ids,
				"error", err,
			)

			continue
		}

		b.logger.InfoContext(ctx, "removed records of failed build", "collection", collection, "count", len(ids))
	}
}

// Build materializes submission as one unit.
func (b *GraphBuilder) Build(ctx context.Context, submission models.GraphSubmission) (*models.Graph, error) {
	var graph *models.Graph

	err := b.Run(ctx, func(ctx context.Context, u *Unit) error {
		var err error

		graph, err = b.BuildIn(ctx, u, submission)

		return err
	})
	if err != nil {
		return nil, err
	}

	return graph, nil
}

// BuildIn materializes submission inside an existing unit. Nodes are all persisted
// before any edge is attempted, since edges resolve through the node id map.
func (b *GraphBuilder) BuildIn(ctx context.Context, u *Unit, submission models.GraphSubmission) (*models.Graph, error) {
	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "graph.build",
		attribute.Int(otelhelper.NodeCountKey, len(submission.Nodes)),
		attribute.Int(otelhelper.EdgeCountKey, len(submission.Edges)),
		attribute.String(otelhelper.BuildModeKey, string(b.options.Mode)),
	)
	defer span.End()

	nodes, services, err := b.materializeNodes(ctx, u, submission.Nodes)
	if err != nil {
		otelhelper.SetError(span, err)
		b.logger.InfoContext(ctx, "graph build failed in node phase", "error", err)

		return nil, err
	}

	// Last writer wins for colliding submission ids.
	idMap := make(map[models.SubmissionID]models.StorageID, len(nodes))
	serviceBySubmission := make(map[models.SubmissionID]*models.Service, len(nodes))

	for i, input := range submission.Nodes {
		idMap[input.ID] = nodes[i].ID
		serviceBySubmission[input.ID] = services[i]
	}

	edges, err := b.materializeEdges(ctx, u, submission.Edges, idMap, serviceBySubmission)
	if err != nil {
		otelhelper.SetError(span, err)
		b.logger.InfoContext(ctx, "graph build failed in edge phase", "error", err)

		return nil, err
	}

	return &models.Graph{Nodes: nodes, Edges: edges}, nil
}

func (b *GraphBuilder) materializeNodes(ctx context.Context, u *Unit, inputs []models.SubmissionNode) ([]*models.Node, []*models.Service, error) {
	store := NewNodeStore(u.store.Nodes(), b.logger)
	nodes := make([]*models.Node, len(inputs))
	services := make([]*models.Service, len(inputs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(u.limit)

	for i, input := range inputs {
		group.Go(func() error {
			service, err := u.resolver.ResolveService(groupCtx, input.ServiceID)
			if err != nil {
				if IsNotFoundError(err) {
					return &ConstructionError{Op: "GraphBuilder.Build", Ref: string(input.ServiceID), Kind: "service"}
				}

				return fmt.Errorf("failed to resolve service %s: %w", input.ServiceID, err)
			}

			node, err := store.Create(groupCtx, service, input)
			if err != nil {
				return err
			}

			u.Track(persistence.CollectionNodes, node.ID)

			nodes[i] = node
			services[i] = service

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	return nodes, services, nil
}

func (b *GraphBuilder) materializeEdges(
	ctx context.Context,
	u *Unit,
	inputs []models.SubmissionEdge,
	idMap map[models.SubmissionID]models.StorageID,
	services map[models.SubmissionID]*models.Service,
) ([]*models.Edge, error) {
	// Reject every dangling or disallowed edge before writing any.
	for _, input := range inputs {
		for _, ref := range []models.SubmissionID{input.Source, input.Target} {
			if _, ok := idMap[ref]; !ok {
				return nil, &ConstructionError{Op: "GraphBuilder.Build", Ref: string(ref), Kind: "node"}
			}
		}

		if b.options.EnforceAllowedConnections {
			source, target := services[input.Source], services[input.Target]
			if !source.CanConnectTo(target.ID) {
				return nil, &ConstructionError{
					Op:   "GraphBuilder.Build",
					Ref:  fmt.Sprintf("%s -> %s", source.ID, target.ID),
					Kind: "connection",
				}
			}
		}
	}

	store := NewEdgeStore(u.store.Edges())
	edges := make([]*models.Edge, len(inputs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(u.limit)

	for i, input := range inputs {
		group.Go(func() error {
			edge, err := store.Create(groupCtx, input, idMap)
			if err != nil {
				return err
			}

			u.Track(persistence.CollectionEdges, edge.ID)

			edges[i] = edge

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return edges, nil
}
