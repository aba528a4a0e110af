// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
)

// CreateTestService creates a flat priced Service with default values that can be
// overridden.
func CreateTestService(id string, overrides ...func(*models.Service)) *models.Service {
	service := &models.Service{
		ID:          models.StorageID(id),
		Name:        "Service " + id,
		Price:       100,
		PricingMode: models.PricingModeService,
	}

	for _, override := range overrides {
		override(service)
	}

	return service
}

// WithPrice sets the flat service price.
func WithPrice(price any) func(*models.Service) {
	return func(s *models.Service) {
		s.Price = price
	}
}

// WithAllowedConnections whitelists downstream services.
func WithAllowedConnections(ids ...string) func(*models.Service) {
	return func(s *models.Service) {
		s.AllowedConnections = models.StorageIDs(ids...)
	}
}

// CreateTestNode creates a SubmissionNode bound to serviceID.
func CreateTestNode(id, serviceID string, overrides ...func(*models.SubmissionNode)) models.SubmissionNode {
	node := models.SubmissionNode{
		ID:        models.SubmissionID(id),
		Label:     "Node " + id,
		ServiceID: models.StorageID(serviceID),
		Position:  &models.Position{X: 100, Y: 200},
	}

	for _, override := range overrides {
		override(&node)
	}

	return node
}

// WithFormData sets the submitted form data.
func WithFormData(formData any) func(*models.SubmissionNode) {
	return func(n *models.SubmissionNode) {
		n.FormData = formData
	}
}

// CreateTestEdge creates a SubmissionEdge between two submission nodes.
func CreateTestEdge(source, target string) models.SubmissionEdge {
	return models.SubmissionEdge{
		ID:     models.SubmissionID(fmt.Sprintf("%s-%s", source, target)),
		Source: models.SubmissionID(source),
		Target: models.SubmissionID(target),
	}
}

// Client returns a principal holding only the client role.
func Client(email string) auth.Principal {
	return auth.Principal{
		Identity: models.Identity{Username: email, Sub: "sub-" + email, Email: email},
		Roles:    []auth.Role{auth.RoleClient},
	}
}

// Staff returns a principal holding the staff role.
func Staff(email string) auth.Principal {
	return auth.Principal{
		Identity: models.Identity{Username: email, Sub: "sub-" + email, Email: email},
		Roles:    []auth.Role{auth.RoleStaff},
	}
}

// StaticResolver resolves services from a fixed set and counts lookups.
type StaticResolver struct {
	mu       sync.Mutex
	services map[models.StorageID]*models.Service
	calls    int
}

// NewStaticResolver creates a resolver over services.
func NewStaticResolver(services ...*models.Service) *StaticResolver {
	r := &StaticResolver{services: make(map[models.StorageID]*models.Service, len(services))}
	for _, service := range services {
		r.services[service.ID] = service
	}

	return r
}

func (r *StaticResolver) ResolveService(_ context.Context, id models.StorageID) (*models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	service, ok := r.services[id]
	if !ok {
		return nil, persistence.NewDocumentError("FindByID", persistence.CollectionServices, string(id), persistence.ErrDocumentNotFound)
	}

	return service, nil
}

// Calls returns the number of lookups made.
func (r *StaticResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}
