package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pdflearn/internal/model"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) CreateWithResources(ctx context.Context, doc *model.SavedDocument, resources []model.SavedResource) (*model.SavedDocument, []model.SavedResource, error) {
	args := m.Called(ctx, doc, resources)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.SavedDocument), args.Get(1).([]model.SavedResource), args.Error(2)
}

func (m *MockDocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.SavedDocument, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SavedDocument), args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, ownerID, id string) (*model.SavedDocument, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SavedDocument), args.Error(1)
}

func (m *MockDocumentRepository) ListResources(ctx context.Context, ownerID, documentID string) ([]model.SavedResource, error) {
	args := m.Called(ctx, ownerID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SavedResource), args.Error(1)
}

func (m *MockDocumentRepository) DeleteResources(ctx context.Context, ownerID, documentID string, ids []string) (int, error) {
	args := m.Called(ctx, ownerID, documentID, ids)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepository) DeleteDocument(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}
