package mocks

import (
	"context"

	"github.com/dukex/labflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockServiceResolver is a mock implementation of services.ServiceResolver interface.
type MockServiceResolver struct {
	mock.Mock
}

func (m *MockServiceResolver) ResolveService(ctx context.Context, id models.StorageID) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Service), args.Error(1)
}
