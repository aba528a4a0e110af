// Package postgresql provides PostgreSQL persistence where every collection is stored
// as JSONB rows of a single documents table.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	collections
}

type collections struct {
	services   *Collection[models.Service, *models.Service]
	categories *Collection[models.Category, *models.Category]
	bundles    *Collection[models.Bundle, *models.Bundle]
	nodes      *Collection[models.Node, *models.Node]
	edges      *Collection[models.Edge, *models.Edge]
	workflows  *Collection[models.Workflow, *models.Workflow]
	jobs       *Collection[models.Job, *models.Job]
	sows       *Collection[models.SOW, *models.SOW]
}

func newCollections(db *sql.DB, tx *sql.Tx, logger *slog.Logger) collections {
	return collections{
		services:   newCollection[models.Service](db, tx, logger, persistence.CollectionServices),
		categories: newCollection[models.Category](db, tx, logger, persistence.CollectionCategories),
		bundles:    newCollection[models.Bundle](db, tx, logger, persistence.CollectionBundles),
		nodes:      newCollection[models.Node](db, tx, logger, persistence.CollectionNodes),
		edges:      newCollection[models.Edge](db, tx, logger, persistence.CollectionEdges),
		workflows:  newCollection[models.Workflow](db, tx, logger, persistence.CollectionWorkflows),
		jobs:       newCollection[models.Job](db, tx, logger, persistence.CollectionJobs),
		sows:       newCollection[models.SOW](db, tx, logger, persistence.CollectionSOWs),
	}
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		collections: newCollections(database, nil, logger),
	}, nil
}

func (c collections) Services() persistence.Collection[models.Service] { return c.services }

func (c collections) Categories() persistence.Collection[models.Category] { return c.categories }

func (c collections) Bundles() persistence.Collection[models.Bundle] { return c.bundles }

func (c collections) Nodes() persistence.Collection[models.Node] { return c.nodes }

func (c collections) Edges() persistence.Collection[models.Edge] { return c.edges }

func (c collections) Workflows() persistence.Collection[models.Workflow] { return c.workflows }

func (c collections) Jobs() persistence.Collection[models.Job] { return c.jobs }

func (c collections) SOWs() persistence.Collection[models.SOW] { return c.sows }

// WithTransaction runs fn against collections bound to one database transaction.
func (p *Persistence) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Persistence) error) error {
	transaction, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txPersistence := &txPersistence{
		parent:      p,
		collections: newCollections(p.db, transaction, p.logger),
	}

	if err := fn(ctx, txPersistence); err != nil {
		if rollbackErr := transaction.Rollback(); rollbackErr != nil {
			p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// txPersistence is the view of the store handed to WithTransaction callbacks.
type txPersistence struct {
	parent *Persistence

	collections
}

func (t *txPersistence) HealthCheck(ctx context.Context) error {
	return t.parent.HealthCheck(ctx)
}

// Close is a no-op; the transaction ends when the callback returns.
func (t *txPersistence) Close(_ context.Context) error {
	return nil
}
