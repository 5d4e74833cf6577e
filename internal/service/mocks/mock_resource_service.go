package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pdflearn/internal/confirm"
	"pdflearn/internal/service"
)

type MockResourceService struct {
	mock.Mock
}

func (m *MockResourceService) Save(ctx context.Context, ownerID string, req service.SaveRequest) (*service.SaveResult, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SaveResult), args.Error(1)
}

func (m *MockResourceService) RequestDeletion(ctx context.Context, ownerID string, req service.DeletionRequest) (*confirm.Ticket, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*confirm.Ticket), args.Error(1)
}

func (m *MockResourceService) ConfirmDeletion(ctx context.Context, ownerID, bearer, token string) (*service.DeletionResult, error) {
	args := m.Called(ctx, ownerID, bearer, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DeletionResult), args.Error(1)
}

func (m *MockResourceService) CancelDeletion(ctx context.Context, ownerID, token string) error {
	return m.Called(ctx, ownerID, token).Error(0)
}
