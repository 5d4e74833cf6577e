package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pdflearn/internal/service"
)

type MockBrowserService struct {
	mock.Mock
}

func (m *MockBrowserService) Browse(ctx context.Context, ownerID, query string) (*service.BrowseResult, error) {
	args := m.Called(ctx, ownerID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BrowseResult), args.Error(1)
}

func (m *MockBrowserService) Selection(ctx context.Context, ownerID, query string) (*service.SelectionResult, error) {
	args := m.Called(ctx, ownerID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SelectionResult), args.Error(1)
}

func (m *MockBrowserService) Documents(ctx context.Context, ownerID string) (*service.DocumentListResult, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockBrowserService) Document(ctx context.Context, ownerID, id string) (*service.DocumentDetail, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentDetail), args.Error(1)
}
