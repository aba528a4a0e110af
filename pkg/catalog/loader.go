package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/services"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var documentSchema string

// Document is the catalog import format.
type Document struct {
	Categories []models.Category            `json:"categories"`
	Services   []models.Service             `json:"services"`
	Bundles    []services.CreateBundleInput `json:"bundles"`
}

// ReloadResult summarizes a completed reload.
type ReloadResult struct {
	Categories int
	Services   int
	Bundles    int
}

// Loader replaces the whole catalog from a Document.
type Loader struct {
	catalog *Catalog
	builder *services.GraphBuilder
	bundles *services.Bundle
	logger  *slog.Logger
}

// NewLoader creates a loader. Bundles are built with builder, so reloads are
// transactional exactly when graph builds are.
func NewLoader(catalog *Catalog, builder *services.GraphBuilder, bundles *services.Bundle, logger *slog.Logger) *Loader {
	return &Loader{catalog: catalog, builder: builder, bundles: bundles, logger: logger}
}

// Reload validates data completely, then clears services, categories and bundles and
// loads the new catalog as one unit. Nothing is cleared when validation fails.
func (l *Loader) Reload(ctx context.Context, data []byte) (*ReloadResult, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	err = l.builder.Run(ctx, func(ctx context.Context, u *services.Unit) error {
		store := u.Store()

		if err := store.Bundles().DropAll(ctx); err != nil {
			return fmt.Errorf("failed to clear bundles: %w", err)
		}

		if err := store.Services().DropAll(ctx); err != nil {
			return fmt.Errorf("failed to clear services: %w", err)
		}

		if err := store.Categories().DropAll(ctx); err != nil {
			return fmt.Errorf("failed to clear categories: %w", err)
		}

		for i := range doc.Categories {
			if err := store.Categories().Insert(ctx, &doc.Categories[i]); err != nil {
				return fmt.Errorf("failed to load category %s: %w", doc.Categories[i].ID, err)
			}
		}

		for i := range doc.Services {
			if err := store.Services().Insert(ctx, &doc.Services[i]); err != nil {
				return fmt.Errorf("failed to load service %s: %w", doc.Services[i].ID, err)
			}
		}

		// Bundles must resolve the services inserted above, uncached.
		u.UseResolver(New(store, l.logger))

		for _, bundle := range doc.Bundles {
			if _, err := l.bundles.CreateIn(ctx, u, bundle); err != nil {
				return fmt.Errorf("failed to build bundle %q: %w", bundle.Name, err)
			}
		}

		u.Emit("catalog", events.CatalogReloaded{
			BaseEvent:  events.NewBaseEvent(events.CatalogReloadedEvent, ""),
			Services:   len(doc.Services),
			Categories: len(doc.Categories),
			Bundles:    len(doc.Bundles),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.catalog.Flush(ctx)

	result := &ReloadResult{
		Categories: len(doc.Categories),
		Services:   len(doc.Services),
		Bundles:    len(doc.Bundles),
	}

	l.logger.InfoContext(ctx, "catalog reloaded",
		"services", result.Services,
		"categories", result.Categories,
		"bundles", result.Bundles,
	)

	return result, nil
}

// Parse validates data against the catalog schema and checks that every reference
// inside the document resolves.
func Parse(data []byte) (*Document, error) {
	const op = "Loader.Reload"

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, services.NewValidationError(op, "invalid_catalog", "catalog is not valid JSON", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return nil, services.NewValidationError(op, "invalid_catalog",
			"catalog schema validation failed: "+strings.Join(problems, "; "), nil)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, services.NewValidationError(op, "invalid_catalog", "failed to decode catalog", err)
	}

	if err := doc.checkReferences(); err != nil {
		return nil, services.NewValidationError(op, "invalid_catalog", err.Error(), nil)
	}

	return &doc, nil
}

func (d *Document) checkReferences() error {
	categories := make(map[models.StorageID]bool, len(d.Categories))

	for _, category := range d.Categories {
		if categories[category.ID] {
			return fmt.Errorf("duplicate category %s", category.ID)
		}

		categories[category.ID] = true
	}

	serviceIDs := make(map[models.StorageID]bool, len(d.Services))

	for _, service := range d.Services {
		if serviceIDs[service.ID] {
			return fmt.Errorf("duplicate service %s", service.ID)
		}

		serviceIDs[service.ID] = true
	}

	for _, service := range d.Services {
		for _, id := range service.AllowedConnections {
			if !serviceIDs[id] {
				return fmt.Errorf("service %s allows connecting to unknown service %s", service.ID, id)
			}
		}

		for _, id := range service.Categories {
			if !categories[id] {
				return fmt.Errorf("service %s references unknown category %s", service.ID, id)
			}
		}
	}

	for _, bundle := range d.Bundles {
		nodes := make(map[models.SubmissionID]bool, len(bundle.Nodes))

		for _, node := range bundle.Nodes {
			if !serviceIDs[node.ServiceID] {
				return fmt.Errorf("bundle %q uses unknown service %s", bundle.Name, node.ServiceID)
			}

			nodes[node.ID] = true
		}

		for _, edge := range bundle.Edges {
			if !nodes[edge.Source] || !nodes[edge.Target] {
				return fmt.Errorf("bundle %q has an edge %s -> %s to an unknown node", bundle.Name, edge.Source, edge.Target)
			}
		}
	}

	return nil
}
