package memory_test

import (
	"context"
	"testing"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/persistence/memory"
	"github.com/dukex/labflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence(t *testing.T) {
	persistencetest.RunSuite(t, func(_ *testing.T) persistence.Persistence {
		return memory.NewPersistence()
	})
}

func TestCollection_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	nodes := memory.NewCollection[models.Node](persistence.CollectionNodes)

	node := &models.Node{Label: "original"}
	require.NoError(t, nodes.Insert(ctx, node))

	node.Label = "changed by caller"

	found, err := nodes.FindByID(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", found.Label)

	found.Label = "changed again"

	again, err := nodes.FindByID(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Label)
	assert.Equal(t, 1, nodes.Len())
}

func TestPersistence_IsNotTransactor(t *testing.T) {
	var store persistence.Persistence = memory.NewPersistence()

	_, ok := store.(persistence.Transactor)
	assert.False(t, ok)
}
