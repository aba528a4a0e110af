package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/labflow/pkg/formdata"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/pricing"
)

// entityStore holds the lookups shared by the node and edge stores.
type entityStore[T any] struct {
	collection persistence.Collection[T]
	kind       string
}

func (s *entityStore[T]) GetByID(ctx context.Context, id models.StorageID) (*T, error) {
	entity, err := s.collection.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "GetByID", s.kind, string(id))
	}

	return entity, nil
}

// GetByIDs silently omits missing ids. Order is not guaranteed.
func (s *entityStore[T]) GetByIDs(ctx context.Context, ids []models.StorageID) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}

	entities, err := s.collection.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get %ss: %w", s.kind, err)
	}

	return entities, nil
}

// RemoveByIDs is idempotent.
func (s *entityStore[T]) RemoveByIDs(ctx context.Context, ids []models.StorageID) error {
	if len(ids) == 0 {
		return nil
	}

	if err := s.collection.DeleteByIDs(ctx, ids); err != nil {
		return fmt.Errorf("failed to remove %ss: %w", s.kind, err)
	}

	return nil
}

// NodeStore creates and looks up graph nodes.
type NodeStore struct {
	entityStore[models.Node]

	logger *slog.Logger
}

// NewNodeStore creates a node store over the given collection.
func NewNodeStore(collection persistence.Collection[models.Node], logger *slog.Logger) *NodeStore {
	return &NodeStore{
		entityStore: entityStore[models.Node]{collection: collection, kind: "node"},
		logger:      logger,
	}
}

// Create persists a node bound to service. The form data is stored in canonical
// shape and the node carries a price snapshot.
func (s *NodeStore) Create(ctx context.Context, service *models.Service, input models.SubmissionNode) (*models.Node, error) {
	if service == nil {
		return nil, &ConstructionError{Op: "NodeStore.Create", Ref: string(input.ServiceID), Kind: "service"}
	}

	formData := formdata.Normalize(input.FormData, formdata.MultiValueIDs(service.Parameters))
	price := pricing.CalculateCost(service, formData)

	node := &models.Node{
		Label:                  input.Label,
		ServiceID:              service.ID,
		AdditionalInstructions: input.AdditionalInstructions,
		FormData:               formData,
		ReactNode:              input.ReactNode,
		Position:               input.Position,
		Price:                  &price,
		State:                  models.NodeStateQueued,
		CreatedAt:              time.Now().UTC(),
	}

	if err := s.collection.Insert(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	s.logger.DebugContext(ctx, "node created", "node_id", node.ID, "service_id", service.ID, "price", price)

	return node, nil
}

// UpdateState sets the state of a node and returns it with its previous state.
func (s *NodeStore) UpdateState(ctx context.Context, id models.StorageID, state models.NodeState) (*models.Node, models.NodeState, error) {
	if !state.Valid() {
		return nil, "", NewValidationError("NodeStore.UpdateState", "invalid_state", fmt.Sprintf("unknown node state %q", state), nil)
	}

	var previous models.NodeState

	node, err := s.collection.UpdateByID(ctx, id, func(node *models.Node) error {
		previous = node.State
		node.State = state

		return nil
	})
	if err != nil {
		return nil, "", notFoundOr(err, "NodeStore.UpdateState", "node", string(id))
	}

	return node, previous, nil
}

// EdgeStore creates and looks up graph edges.
type EdgeStore struct {
	entityStore[models.Edge]
}

// NewEdgeStore creates an edge store over the given collection.
func NewEdgeStore(collection persistence.Collection[models.Edge]) *EdgeStore {
	return &EdgeStore{
		entityStore: entityStore[models.Edge]{collection: collection, kind: "edge"},
	}
}

// Create persists an edge whose endpoints are resolved through idMap.
func (s *EdgeStore) Create(ctx context.Context, input models.SubmissionEdge, idMap map[models.SubmissionID]models.StorageID) (*models.Edge, error) {
	source, ok := idMap[input.Source]
	if !ok {
		return nil, &ConstructionError{Op: "EdgeStore.Create", Ref: string(input.Source), Kind: "node"}
	}

	target, ok := idMap[input.Target]
	if !ok {
		return nil, &ConstructionError{Op: "EdgeStore.Create", Ref: string(input.Target), Kind: "node"}
	}

	edge := &models.Edge{
		Source:    source,
		Target:    target,
		ReactEdge: input.ReactEdge,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.collection.Insert(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to create edge: %w", err)
	}

	return edge, nil
}
