// Package file provides file-based persistence where every document is a JSON file
// under <root>/<collection>/<id>.json.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root       string
	services   *Collection[models.Service, *models.Service]
	categories *Collection[models.Category, *models.Category]
	bundles    *Collection[models.Bundle, *models.Bundle]
	nodes      *Collection[models.Node, *models.Node]
	edges      *Collection[models.Edge, *models.Edge]
	workflows  *Collection[models.Workflow, *models.Workflow]
	jobs       *Collection[models.Job, *models.Job]
	sows       *Collection[models.SOW, *models.SOW]
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:       cleanRoot,
		services:   NewCollection[models.Service](cleanRoot, persistence.CollectionServices),
		categories: NewCollection[models.Category](cleanRoot, persistence.CollectionCategories),
		bundles:    NewCollection[models.Bundle](cleanRoot, persistence.CollectionBundles),
		nodes:      NewCollection[models.Node](cleanRoot, persistence.CollectionNodes),
		edges:      NewCollection[models.Edge](cleanRoot, persistence.CollectionEdges),
		workflows:  NewCollection[models.Workflow](cleanRoot, persistence.CollectionWorkflows),
		jobs:       NewCollection[models.Job](cleanRoot, persistence.CollectionJobs),
		sows:       NewCollection[models.SOW](cleanRoot, persistence.CollectionSOWs, "jobId"),
	}
}

func (fp *Persistence) Services() persistence.Collection[models.Service] { return fp.services }

func (fp *Persistence) Categories() persistence.Collection[models.Category] { return fp.categories }

func (fp *Persistence) Bundles() persistence.Collection[models.Bundle] { return fp.bundles }

func (fp *Persistence) Nodes() persistence.Collection[models.Node] { return fp.nodes }

func (fp *Persistence) Edges() persistence.Collection[models.Edge] { return fp.edges }

func (fp *Persistence) Workflows() persistence.Collection[models.Workflow] { return fp.workflows }

func (fp *Persistence) Jobs() persistence.Collection[models.Job] { return fp.jobs }

func (fp *Persistence) SOWs() persistence.Collection[models.SOW] { return fp.sows }

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}
