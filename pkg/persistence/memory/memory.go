// Package memory provides an in-process persistence implementation for tests and
// local development.
package memory

import (
	"context"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
)

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	services   *Collection[models.Service, *models.Service]
	categories *Collection[models.Category, *models.Category]
	bundles    *Collection[models.Bundle, *models.Bundle]
	nodes      *Collection[models.Node, *models.Node]
	edges      *Collection[models.Edge, *models.Edge]
	workflows  *Collection[models.Workflow, *models.Workflow]
	jobs       *Collection[models.Job, *models.Job]
	sows       *Collection[models.SOW, *models.SOW]
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		services:   NewCollection[models.Service](persistence.CollectionServices),
		categories: NewCollection[models.Category](persistence.CollectionCategories),
		bundles:    NewCollection[models.Bundle](persistence.CollectionBundles),
		nodes:      NewCollection[models.Node](persistence.CollectionNodes),
		edges:      NewCollection[models.Edge](persistence.CollectionEdges),
		workflows:  NewCollection[models.Workflow](persistence.CollectionWorkflows),
		jobs:       NewCollection[models.Job](persistence.CollectionJobs),
		sows:       NewCollection[models.SOW](persistence.CollectionSOWs, "jobId"),
	}
}

func (p *Persistence) Services() persistence.Collection[models.Service] { return p.services }
func (p *Persistence) Categories() persistence.Collection[models.Category] { return p.categories }
func (p *Persistence) Bundles() persistence.Collection[models.Bundle] { return p.bundles }
func (p *Persistence) Nodes() persistence.Collection[models.Node] { return p.nodes }
func (p *Persistence) Edges() persistence.Collection[models.Edge] { return p.edges }
func (p *Persistence) Workflows() persistence.Collection[models.Workflow] { return p.workflows }
func (p *Persistence) Jobs() persistence.Collection[models.Job] { return p.jobs }
func (p *Persistence) SOWs() persistence.Collection[models.SOW] { return p.sows }

// HealthCheck always succeeds.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close performs no cleanup.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
