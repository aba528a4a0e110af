// Package sweeper removes graph records that no workflow or bundle owns.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultGracePeriod keeps records of builds that may still be in flight.
const DefaultGracePeriod = time.Hour

// Result counts the records removed by one sweep.
type Result struct {
	Nodes int
	Edges int
}

// Sweeper deletes orphaned nodes and edges. Orphans are left behind by failed
// best-effort builds and by catalog reloads.
type Sweeper struct {
	persistence persistence.Persistence
	grace       time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a sweeper. A non-positive grace selects DefaultGracePeriod.
func New(p persistence.Persistence, grace time.Duration, logger *slog.Logger) *Sweeper {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &Sweeper{
		persistence: p,
		grace:       grace,
		logger:      logger,
		now:         time.Now,
	}
}

// SweepOnce deletes every node and edge older than the grace period that no workflow
// or bundle references.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	nodeRefs, edgeRefs, err := s.references(ctx)
	if err != nil {
		return Result{}, err
	}

	cutoff := s.now().Add(-s.grace)

	nodes, err := s.persistence.Nodes().FindByFilter(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list nodes: %w", err)
	}

	edges, err := s.persistence.Edges().FindByFilter(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list edges: %w", err)
	}

	var orphanEdges []models.StorageID

	for _, edge := range edges {
		if !edgeRefs[edge.ID] && edge.CreatedAt.Before(cutoff) {
			orphanEdges = append(orphanEdges, edge.ID)
		}
	}

	var orphanNodes []models.StorageID

	for _, node := range nodes {
		if !nodeRefs[node.ID] && node.CreatedAt.Before(cutoff) {
			orphanNodes = append(orphanNodes, node.ID)
		}
	}

	// Edges first, so a partial failure never leaves an edge pointing at a deleted node.
	if err := s.persistence.Edges().DeleteByIDs(ctx, orphanEdges); err != nil {
		return Result{}, fmt.Errorf("failed to delete orphaned edges: %w", err)
	}

	if err := s.persistence.Nodes().DeleteByIDs(ctx, orphanNodes); err != nil {
		return Result{Edges: len(orphanEdges)}, fmt.Errorf("failed to delete orphaned nodes: %w", err)
	}

	result := Result{Nodes: len(orphanNodes), Edges: len(orphanEdges)}

	if result.Nodes > 0 || result.Edges > 0 {
		s.logger.InfoContext(ctx, "removed orphaned graph records", "nodes", result.Nodes, "edges", result.Edges)
	}

	return result, nil
}

func (s *Sweeper) references(ctx context.Context) (map[models.StorageID]bool, map[models.StorageID]bool, error) {
	nodeRefs := map[models.StorageID]bool{}
	edgeRefs := map[models.StorageID]bool{}

	workflows, err := s.persistence.Workflows().FindByFilter(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		mark(nodeRefs, workflow.NodeIDs)
		mark(edgeRefs, workflow.EdgeIDs)
	}

	bundles, err := s.persistence.Bundles().FindByFilter(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bundles: %w", err)
	}

	for _, bundle := range bundles {
		mark(nodeRefs, bundle.NodeIDs)
		mark(edgeRefs, bundle.EdgeIDs)
	}

	return nodeRefs, edgeRefs, nil
}

func mark(set map[models.StorageID]bool, ids []models.StorageID) {
	for _, id := range ids {
		set[id] = true
	}
}

// Run sweeps on the cron schedule until ctx is cancelled. Overlapping runs are
// skipped.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := c.AddFunc(schedule, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.logger.InfoContext(ctx, "sweeper started", "schedule", schedule, "grace", s.grace)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.InfoContext(ctx, "sweeper stopped")

	return nil
}
