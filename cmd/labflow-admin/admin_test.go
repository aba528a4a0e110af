package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/labflow/pkg/channels/gochannel"
	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/persistence/memory"
	"github.com/dukex/labflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogDocument = `{
  "categories": [{"id": "dna", "name": "DNA"}],
  "services": [
    {"id": "extraction", "name": "DNA extraction", "price": 120, "allowedConnections": ["sequencing"], "categories": ["dna"]},
    {"id": "sequencing", "name": "Sequencing", "price": 300}
  ],
  "bundles": [
    {"name": "Starter", "nodes": [
      {"id": "a", "serviceId": "extraction"},
      {"id": "b", "serviceId": "sequencing"}
    ], "edges": [{"source": "a", "target": "b"}]}
  ]
}`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newStack(t *testing.T, publisher eventbus.EventPublisher) *cmd.Stack {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	catalogService, _, err := cmd.NewCatalog(context.Background(), store, logger, cmd.CatalogOptions{})
	require.NoError(t, err)

	return cmd.NewStack(store, catalogService, publisher, logger, services.BuildOptions{})
}

func TestReloadCatalog(t *testing.T) {
	ctx := context.Background()
	stack := newStack(t, nil)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogDocument), 0o600))

	result, err := reloadCatalog(ctx, stack.Loader, path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Services)
	assert.Equal(t, 1, result.Bundles)

	service, err := stack.Catalog.ResolveService(ctx, "sequencing")
	require.NoError(t, err)
	assert.Equal(t, "Sequencing", service.Name)
}

func TestReloadCatalog_MissingFile(t *testing.T) {
	stack := newStack(t, nil)

	_, err := reloadCatalog(context.Background(), stack.Loader, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReloadCatalog_InvalidDocument(t *testing.T) {
	stack := newStack(t, nil)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"services": [{"name": "no id"}]}`), 0o600))

	_, err := reloadCatalog(context.Background(), stack.Loader, path)
	assert.True(t, services.IsValidationError(err))
}

func TestTransactional(t *testing.T) {
	assert.False(t, transactional(memory.NewPersistence()))
}

func TestTailEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	output := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(output, nil))

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	require.NoError(t, tailEvents(ctx, bus, logger))

	stack := newStack(t, bus)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogDocument), 0o600))

	_, err = reloadCatalog(ctx, stack.Loader, path)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return strings.Contains(output.String(), "type=catalog.reloaded")
	}, 2*time.Second, 10*time.Millisecond)
}
