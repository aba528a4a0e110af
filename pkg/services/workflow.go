package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
)

// Workflow manages client workflow graphs.
type Workflow struct {
	persistence persistence.Persistence
	builder     *GraphBuilder
	authorizer  auth.Authorizer
	emitter     emitter
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	p persistence.Persistence,
	builder *GraphBuilder,
	authorizer auth.Authorizer,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: p,
		builder:     builder,
		authorizer:  authorizer,
		emitter:     emitter{publisher: publisher, logger: logger},
		logger:      logger,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateWorkflowInput is a client graph submission.
type CreateWorkflowInput struct {
	Label string                  `json:"label" validate:"max=255"`
	Nodes []models.SubmissionNode `json:"nodes" validate:"required,min=1,dive"`
	Edges []models.SubmissionEdge `json:"edges" validate:"dive"`
}

// Create builds the graph and persists the workflow owning it. The whole operation
// fails on an unresolvable service or a dangling edge.
func (w *Workflow) Create(ctx context.Context, principal auth.Principal, input CreateWorkflowInput) (*models.WorkflowGraph, error) {
	const op = "Workflow.Create"

	if !w.authorizer.IsPermitted(principal, auth.RoleClient) {
		return nil, NewAuthorizationError(op)
	}

	if err := validateInput(op, input); err != nil {
		return nil, err
	}

	var created *models.WorkflowGraph

	err := w.builder.Run(ctx, func(ctx context.Context, u *Unit) error {
		var err error

		created, err = w.createIn(ctx, u, principal.Identity, input)

		return err
	})
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "workflow created",
		"workflow_id", created.ID,
		"nodes", len(created.Nodes),
		"edges", len(created.Edges),
	)

	return created, nil
}

func (w *Workflow) createIn(ctx context.Context, u *Unit, owner models.Identity, input CreateWorkflowInput) (*models.WorkflowGraph, error) {
	graph, err := w.builder.BuildIn(ctx, u, models.GraphSubmission{Nodes: input.Nodes, Edges: input.Edges})
	if err != nil {
		return nil, err
	}

	workflow := &models.Workflow{
		Label:       input.Label,
		SubmittedBy: owner,
		NodeIDs:     graph.NodeIDs(),
		EdgeIDs:     graph.EdgeIDs(),
		State:       models.NodeStateQueued,
		CreatedAt:   time.Now().UTC(),
	}

	if err := u.Store().Workflows().Insert(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	u.Track(persistence.CollectionWorkflows, workflow.ID)
	u.Emit(string(workflow.ID), events.WorkflowCreated{
		BaseEvent:  events.NewBaseEvent(events.WorkflowCreatedEvent, owner.Email),
		WorkflowID: workflow.ID,
		NodeCount:  len(graph.Nodes),
		EdgeCount:  len(graph.Edges),
	})

	return &models.WorkflowGraph{Workflow: workflow, Nodes: graph.Nodes, Edges: graph.Edges}, nil
}

// FetchByID returns a workflow with its nodes and edges. Only the creating client and
// staff may read it.
func (w *Workflow) FetchByID(ctx context.Context, principal auth.Principal, id models.StorageID) (*models.WorkflowGraph, error) {
	const op = "Workflow.FetchByID"

	workflow, err := w.persistence.Workflows().FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, op, "workflow", string(id))
	}

	if !workflow.OwnedBy(principal.Identity) && !w.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	nodes, edges, err := hydrate(ctx, w.persistence, w.logger, workflow.NodeIDs, workflow.EdgeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}

	return &models.WorkflowGraph{Workflow: workflow, Nodes: nodes, Edges: edges}, nil
}

// UpdateState sets the workflow state. Staff only.
func (w *Workflow) UpdateState(ctx context.Context, principal auth.Principal, id models.StorageID, state models.NodeState) (*models.Workflow, error) {
	const op = "Workflow.UpdateState"

	if !w.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	if !state.Valid() {
		return nil, NewValidationError(op, "invalid_state", fmt.Sprintf("unknown workflow state %q", state), nil)
	}

	workflow, err := w.persistence.Workflows().UpdateByID(ctx, id, func(workflow *models.Workflow) error {
		workflow.State = state

		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, op, "workflow", string(id))
	}

	return workflow, nil
}

// UpdateNodeState sets the state of a single node. Staff only.
func (w *Workflow) UpdateNodeState(ctx context.Context, principal auth.Principal, nodeID models.StorageID, state models.NodeState) (*models.Node, error) {
	const op = "Workflow.UpdateNodeState"

	if !w.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	node, previous, err := NewNodeStore(w.persistence.Nodes(), w.logger).UpdateState(ctx, nodeID, state)
	if err != nil {
		return nil, err
	}

	if previous != state {
		w.emitter.emit(ctx, string(node.ID), events.NodeStateChanged{
			BaseEvent: events.NewBaseEvent(events.NodeStateChangedEvent, principal.Email),
			NodeID:    node.ID,
			From:      previous,
			To:        state,
		})
	}

	return node, nil
}
