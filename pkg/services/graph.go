package services

import (
	"context"
	"log/slog"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
)

// hydrate loads the nodes and edges a container references, in reference order.
func hydrate(ctx context.Context, p persistence.Persistence, logger *slog.Logger, nodeIDs, edgeIDs []models.StorageID) ([]*models.Node, []*models.Edge, error) {
	nodes, err := NewNodeStore(p.Nodes(), logger).GetByIDs(ctx, nodeIDs)
	if err != nil {
		return nil, nil, err
	}

	edges, err := NewEdgeStore(p.Edges()).GetByIDs(ctx, edgeIDs)
	if err != nil {
		return nil, nil, err
	}

	return inOrder(nodeIDs, nodes), inOrder(edgeIDs, edges), nil
}

// inOrder arranges docs to follow ids, dropping ids that were not found.
func inOrder[T any, PT interface {
	*T
	models.Document
}](ids []models.StorageID, docs []PT) []PT {
	byID := make(map[models.StorageID]PT, len(docs))
	for _, doc := range docs {
		byID[doc.DocumentID()] = doc
	}

	ordered := make([]PT, 0, len(docs))

	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			ordered = append(ordered, doc)
			delete(byID, id)
		}
	}

	return ordered
}
