// Package catalog provides lookup and maintenance of the lab service catalog.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/pricing"
	"github.com/dukex/labflow/pkg/services"
	"github.com/go-playground/validator/v10"
)

// Cache holds resolved services between lookups.
type Cache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, id models.StorageID) (*models.Service, bool, error)
	Set(ctx context.Context, service *models.Service) error
	Invalidate(ctx context.Context, ids ...models.StorageID) error
	Flush(ctx context.Context) error
}

// Catalog resolves services for the graph builder and the API.
type Catalog struct {
	persistence persistence.Persistence
	cache       Cache
	logger      *slog.Logger
	validate    *validator.Validate
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache puts cache in front of service lookups.
func WithCache(cache Cache) Option {
	return func(c *Catalog) {
		c.cache = cache
	}
}

// New creates a catalog over the store.
func New(p persistence.Persistence, logger *slog.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		persistence: p,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ResolveService returns the service with the given id. Cache failures degrade to a
// store lookup.
func (c *Catalog) ResolveService(ctx context.Context, id models.StorageID) (*models.Service, error) {
	if c.cache != nil {
		service, ok, err := c.cache.Get(ctx, id)
		if err != nil {
			c.logger.WarnContext(ctx, "catalog cache lookup failed", "service_id", id, "error", err)
		} else if ok {
			return service, nil
		}
	}

	service, err := c.persistence.Services().FindByID(ctx, id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, services.NewNotFoundError("Catalog.ResolveService", "service", string(id))
		}

		return nil, fmt.Errorf("failed to resolve service %s: %w", id, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, service); err != nil {
			c.logger.WarnContext(ctx, "failed to cache service", "service_id", id, "error", err)
		}
	}

	return service, nil
}

// ResolveServices returns the services that exist among ids, in the order of ids.
// Missing ids are skipped.
func (c *Catalog) ResolveServices(ctx context.Context, ids []models.StorageID) ([]*models.Service, error) {
	found, err := c.persistence.Services().FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve services: %w", err)
	}

	byID := make(map[models.StorageID]*models.Service, len(found))
	for _, service := range found {
		byID[service.ID] = service
	}

	resolved := make([]*models.Service, 0, len(found))

	for _, id := range ids {
		if service, ok := byID[id]; ok {
			resolved = append(resolved, service)
			delete(byID, id)
		}
	}

	return resolved, nil
}

// ListServices returns every service, optionally restricted to a category.
func (c *Catalog) ListServices(ctx context.Context, category models.StorageID) ([]*models.Service, error) {
	all, err := c.persistence.Services().FindByFilter(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	if category == "" {
		return all, nil
	}

	return slices.DeleteFunc(all, func(service *models.Service) bool {
		return !slices.Contains(service.Categories, category)
	}), nil
}

// ListCategories returns every category.
func (c *Catalog) ListCategories(ctx context.Context) ([]*models.Category, error) {
	categories, err := c.persistence.Categories().FindByFilter(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	return categories, nil
}

// SaveService creates or replaces a service. Allowed connections and categories must
// reference existing records; a service may allow connecting to itself.
func (c *Catalog) SaveService(ctx context.Context, service *models.Service) error {
	const op = "Catalog.SaveService"

	if err := c.validate.Struct(service); err != nil {
		return services.NewValidationError(op, "invalid_service", err.Error(), err)
	}

	if err := c.checkReferences(ctx, service); err != nil {
		return err
	}

	if service.ID != "" {
		_, err := c.persistence.Services().UpdateByID(ctx, service.ID, func(stored *models.Service) error {
			*stored = *service

			return nil
		})

		switch {
		case err == nil:
			c.invalidate(ctx, service.ID)

			return nil
		case !persistence.IsNotFound(err):
			return fmt.Errorf("failed to update service %s: %w", service.ID, err)
		}
	}

	if err := c.persistence.Services().Insert(ctx, service); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	c.logger.InfoContext(ctx, "service saved", "service_id", service.ID, "name", service.Name)

	return nil
}

func (c *Catalog) checkReferences(ctx context.Context, service *models.Service) error {
	const op = "Catalog.SaveService"

	targets := slices.DeleteFunc(slices.Clone(service.AllowedConnections), func(id models.StorageID) bool {
		return id == service.ID
	})

	found, err := c.persistence.Services().FindByIDs(ctx, targets)
	if err != nil {
		return fmt.Errorf("failed to check allowed connections: %w", err)
	}

	if missing := missingIDs(targets, found); len(missing) > 0 {
		return services.NewValidationError(op, "unknown_connection",
			fmt.Sprintf("allowed connections reference unknown services %v", missing), nil)
	}

	categories, err := c.persistence.Categories().FindByIDs(ctx, service.Categories)
	if err != nil {
		return fmt.Errorf("failed to check categories: %w", err)
	}

	if missing := missingIDs(service.Categories, categories); len(missing) > 0 {
		return services.NewValidationError(op, "unknown_category",
			fmt.Sprintf("service references unknown categories %v", missing), nil)
	}

	return nil
}

// Quote prices a submission against the current catalog without persisting anything.
func (c *Catalog) Quote(ctx context.Context, serviceID models.StorageID, formData any) (float64, error) {
	service, err := c.ResolveService(ctx, serviceID)
	if err != nil {
		return 0, err
	}

	return pricing.CalculateCost(service, formData), nil
}

func (c *Catalog) invalidate(ctx context.Context, ids ...models.StorageID) {
	if c.cache == nil {
		return
	}

	if err := c.cache.Invalidate(ctx, ids...); err != nil {
		c.logger.WarnContext(ctx, "failed to invalidate cached services", "ids", ids, "error", err)
	}
}

// Flush drops every cached service.
func (c *Catalog) Flush(ctx context.Context) {
	if c.cache == nil {
		return
	}

	if err := c.cache.Flush(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to flush catalog cache", "error", err)
	}
}

func missingIDs[T any, PT interface {
	*T
	models.Document
}](want []models.StorageID, found []*T) []models.StorageID {
	have := make(map[models.StorageID]bool, len(found))
	for _, doc := range found {
		have[PT(doc).DocumentID()] = true
	}

	var missing []models.StorageID

	for _, id := range want {
		if !have[id] {
			missing = append(missing, id)
		}
	}

	return missing
}
