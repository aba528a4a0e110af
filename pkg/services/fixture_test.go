package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/mocks"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/persistence/memory"
	"github.com/dukex/labflow/pkg/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = testutil.Client("alice@example.org")
	bob   = testutil.Client("bob@example.org")
	tech  = testutil.Staff("tech@example.org")
)

type fixture struct {
	store     *memory.Persistence
	resolver  *testutil.StaticResolver
	bus       *mocks.MockEventBus
	builder   *GraphBuilder
	workflows *Workflow
	jobs      *Job
	bundles   *Bundle
	sows      *SOW
}

func newFixture(t *testing.T, options BuildOptions) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()
	resolver := testutil.NewStaticResolver(
		testutil.CreateTestService("extraction"),
		testutil.CreateTestService("sequencing", testutil.WithPrice(250)),
		testutil.CreateTestService("analysis", testutil.WithPrice("75.5")),
	)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	authorizer := auth.NewRoleAuthorizer()
	builder := NewGraphBuilder(store, resolver, bus, logger, options)
	workflows := NewWorkflow(store, builder, authorizer, bus, logger)

	return &fixture{
		store:     store,
		resolver:  resolver,
		bus:       bus,
		builder:   builder,
		workflows: workflows,
		jobs:      NewJob(store, builder, workflows, authorizer, bus, logger),
		bundles:   NewBundle(store, builder, logger),
		sows:      NewSOW(store, authorizer, bus, logger),
	}
}

func count[T any](t *testing.T, collection persistence.Collection[T]) int {
	t.Helper()

	docs, err := collection.FindByFilter(context.Background(), nil)
	require.NoError(t, err)

	return len(docs)
}

func linearWorkflow(label string) CreateWorkflowInput {
	return CreateWorkflowInput{
		Label: label,
		Nodes: []models.SubmissionNode{
			testutil.CreateTestNode("n1", "extraction"),
			testutil.CreateTestNode("n2", "sequencing"),
		},
		Edges: []models.SubmissionEdge{testutil.CreateTestEdge("n1", "n2")},
	}
}
