package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/catalog"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/services"
	"github.com/dukex/labflow/pkg/web"
)

// CatalogOptions configures the optional Redis cache in front of the catalog.
type CatalogOptions struct {
	RedisURL string
	CacheTTL time.Duration
}

// NewCatalog creates the catalog, with a Redis cache when a URL is configured. The
// returned close function releases the cache connection.
func NewCatalog(ctx context.Context, p persistence.Persistence, logger *slog.Logger, options CatalogOptions) (*catalog.Catalog, func() error, error) {
	if options.RedisURL == "" {
		return catalog.New(p, logger), func() error { return nil }, nil
	}

	cache, err := catalog.NewRedisCache(ctx, options.RedisURL, options.CacheTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}

	logger.InfoContext(ctx, "Catalog cache enabled", "ttl", options.CacheTTL)

	return catalog.New(p, logger, catalog.WithCache(cache)), cache.Close, nil
}

// Stack is the wired service layer shared by the binaries.
type Stack struct {
	Catalog    *catalog.Catalog
	Builder    *services.GraphBuilder
	Workflows  *services.Workflow
	Jobs       *services.Job
	SOWs       *services.SOW
	Bundles    *services.Bundle
	Loader     *catalog.Loader
	Authorizer auth.Authorizer
}

// NewStack wires every service over one store and publisher.
func NewStack(
	p persistence.Persistence,
	catalogService *catalog.Catalog,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	options services.BuildOptions,
) *Stack {
	authorizer := auth.NewRoleAuthorizer()
	builder := services.NewGraphBuilder(p, catalogService, publisher, logger, options)
	workflows := services.NewWorkflow(p, builder, authorizer, publisher, logger)
	bundles := services.NewBundle(p, builder, logger)

	return &Stack{
		Catalog:    catalogService,
		Builder:    builder,
		Workflows:  workflows,
		Jobs:       services.NewJob(p, builder, workflows, authorizer, publisher, logger),
		SOWs:       services.NewSOW(p, authorizer, publisher, logger),
		Bundles:    bundles,
		Loader:     catalog.NewLoader(catalogService, builder, bundles, logger),
		Authorizer: authorizer,
	}
}

// WebServices returns the handler collaborators.
func (s *Stack) WebServices() web.Services {
	return web.Services{
		Workflows:  s.Workflows,
		Jobs:       s.Jobs,
		SOWs:       s.SOWs,
		Bundles:    s.Bundles,
		Catalog:    s.Catalog,
		Authorizer: s.Authorizer,
	}
}
