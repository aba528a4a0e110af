// Package persistencetest holds behaviour tests shared by every persistence backend.
package persistencetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSuite exercises a backend. newStore must return an empty store.
func RunSuite(t *testing.T, newStore func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("insert assigns id", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		node := &models.Node{Label: "PCR", ServiceID: "svc-1", State: models.NodeStateQueued}
		require.NoError(t, store.Nodes().Insert(ctx, node))
		assert.NotEmpty(t, node.ID)

		found, err := store.Nodes().FindByID(ctx, node.ID)
		require.NoError(t, err)
		assert.Equal(t, "PCR", found.Label)
		assert.Equal(t, models.StorageID("svc-1"), found.ServiceID)
		assert.Equal(t, models.NodeStateQueued, found.State)
	})

	t.Run("insert keeps caller id and rejects duplicates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		svc := &models.Service{ID: "svc-fixed", Name: "Sequencing"}
		require.NoError(t, store.Services().Insert(ctx, svc))
		assert.Equal(t, models.StorageID("svc-fixed"), svc.ID)

		err := store.Services().Insert(ctx, &models.Service{ID: "svc-fixed", Name: "Other"})
		require.Error(t, err)
		assert.True(t, persistence.IsDuplicate(err))
	})

	t.Run("find missing id", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Jobs().FindByID(context.Background(), "does-not-exist")
		require.Error(t, err)
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("find by ids omits missing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := &models.Edge{Source: "a", Target: "b"}
		second := &models.Edge{Source: "b", Target: "c"}
		require.NoError(t, store.Edges().Insert(ctx, first))
		require.NoError(t, store.Edges().Insert(ctx, second))

		edges, err := store.Edges().FindByIDs(ctx, []models.StorageID{first.ID, "missing", second.ID, first.ID})
		require.NoError(t, err)
		assert.ElementsMatch(t, []models.StorageID{first.ID, second.ID}, ids(edges))

		edges, err = store.Edges().FindByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("find by filter", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, state := range []models.JobState{models.JobStateSubmitted, models.JobStateAccepted, models.JobStateSubmitted} {
			require.NoError(t, store.Jobs().Insert(ctx, &models.Job{Name: "job", State: state, Submitted: time.Now()}))
		}

		jobs, err := store.Jobs().FindByFilter(ctx, persistence.Filter{"state": models.JobStateSubmitted})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)

		jobs, err = store.Jobs().FindByFilter(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, jobs, 3)

		jobs, err = store.Jobs().FindByFilter(ctx, persistence.Filter{"state": models.JobStateRejected})
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("update applies mutation", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		node := &models.Node{Label: "PCR", State: models.NodeStateQueued}
		require.NoError(t, store.Nodes().Insert(ctx, node))

		updated, err := store.Nodes().UpdateByID(ctx, node.ID, func(n *models.Node) error {
			n.State = models.NodeStateComplete
			n.ID = "ignored"

			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, node.ID, updated.ID)
		assert.Equal(t, models.NodeStateComplete, updated.State)

		found, err := store.Nodes().FindByID(ctx, node.ID)
		require.NoError(t, err)
		assert.Equal(t, models.NodeStateComplete, found.State)
	})

	t.Run("update aborted by mutation error", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		node := &models.Node{Label: "PCR", State: models.NodeStateQueued}
		require.NoError(t, store.Nodes().Insert(ctx, node))

		abort := errors.New("abort")
		_, err := store.Nodes().UpdateByID(ctx, node.ID, func(n *models.Node) error {
			n.State = models.NodeStateComplete

			return abort
		})
		require.ErrorIs(t, err, abort)

		found, err := store.Nodes().FindByID(ctx, node.ID)
		require.NoError(t, err)
		assert.Equal(t, models.NodeStateQueued, found.State)
	})

	t.Run("update missing id", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Nodes().UpdateByID(context.Background(), "missing", func(*models.Node) error { return nil })
		require.Error(t, err)
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sow := &models.SOW{JobID: "job-1", Status: models.SOWStatusDraft}
		require.NoError(t, store.SOWs().Insert(ctx, sow))

		const writers = 8

		var wg sync.WaitGroup

		for range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := store.SOWs().UpdateByID(ctx, sow.ID, func(s *models.SOW) error {
					s.SOWNumber++

					return nil
				})
				assert.NoError(t, err)
			}()
		}

		wg.Wait()

		found, err := store.SOWs().FindByID(ctx, sow.ID)
		require.NoError(t, err)
		assert.Equal(t, writers, found.SOWNumber)
	})

	t.Run("one sow per job", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.SOWs().Insert(ctx, &models.SOW{JobID: "job-1", Status: models.SOWStatusDraft}))

		err := store.SOWs().Insert(ctx, &models.SOW{JobID: "job-1", Status: models.SOWStatusDraft})
		require.Error(t, err)
		assert.True(t, persistence.IsDuplicate(err))

		require.NoError(t, store.SOWs().Insert(ctx, &models.SOW{JobID: "job-2", Status: models.SOWStatusDraft}))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := &models.Workflow{Label: "a"}
		second := &models.Workflow{Label: "b"}
		third := &models.Workflow{Label: "c"}

		for _, wf := range []*models.Workflow{first, second, third} {
			require.NoError(t, store.Workflows().Insert(ctx, wf))
		}

		require.NoError(t, store.Workflows().DeleteByID(ctx, first.ID))
		require.NoError(t, store.Workflows().DeleteByID(ctx, first.ID))
		require.NoError(t, store.Workflows().DeleteByIDs(ctx, []models.StorageID{second.ID, "missing"}))

		remaining, err := store.Workflows().FindByFilter(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []models.StorageID{third.ID}, ids(remaining))
	})

	t.Run("drop all only affects one collection", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Services().Insert(ctx, &models.Service{Name: "a"}))
		require.NoError(t, store.Categories().Insert(ctx, &models.Category{Name: "b"}))

		require.NoError(t, store.Services().DropAll(ctx))

		services, err := store.Services().FindByFilter(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, services)

		categories, err := store.Categories().FindByFilter(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, categories, 1)
	})

	t.Run("parameters survive round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		svc := &models.Service{Name: "Assay", PricingMode: models.PricingModeParameter}
		require.NoError(t, json.Unmarshal(
			[]byte(`[{"id":"p1","type":"dropdown","options":[{"id":"o1","price":5}]},{"broken":true}]`),
			&svc.Parameters,
		))
		require.NoError(t, store.Services().Insert(ctx, svc))

		found, err := store.Services().FindByID(ctx, svc.ID)
		require.NoError(t, err)
		require.Len(t, found.Parameters, 2)
		assert.Equal(t, models.ParameterKindDropdown, found.Parameters[0].Kind())
		assert.Equal(t, models.ParameterKindUnknown, found.Parameters[1].Kind())
		assert.JSONEq(t, `{"broken":true}`, string(found.Parameters[1].Raw()))
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.HealthCheck(context.Background()))
	})
}

func ids[T any, PT interface {
	*T
	models.Document
}](docs []PT) []models.StorageID {
	out := make([]models.StorageID, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.DocumentID())
	}

	return out
}
