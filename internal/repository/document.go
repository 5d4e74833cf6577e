package repository

import (
	"context"

	"pdflearn/internal/model"
)

// DocumentRepository defines data access for saved documents and their resources.
// Every query is scoped by owner; no business logic here.
type DocumentRepository interface {
	// CreateWithResources writes one document and all of its resources in a single transaction.
	// Resource IDs are assigned by the store and returned.
	CreateWithResources(ctx context.Context, doc *model.SavedDocument, resources []model.SavedResource) (*model.SavedDocument, []model.SavedResource, error)

	// ListByOwner returns every document of the owner, newest first, with resource counts.
	ListByOwner(ctx context.Context, ownerID string) ([]model.SavedDocument, error)

	// FindByID returns one document of the owner with its resource count.
	FindByID(ctx context.Context, ownerID, id string) (*model.SavedDocument, error)

	// ListResources returns the resources of one document.
	ListResources(ctx context.Context, ownerID, documentID string) ([]model.SavedResource, error)

	// DeleteResources removes the given resources of one document and returns how many remain.
	DeleteResources(ctx context.Context, ownerID, documentID string, ids []string) (int, error)

	// DeleteDocument removes a document and all of its resources.
	DeleteDocument(ctx context.Context, ownerID, id string) error
}
