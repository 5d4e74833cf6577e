package model

import "time"

// SavedDocument is one analyzed PDF persisted for its owner.
// ID is the correlation identifier generated at submission time.
type SavedDocument struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	Filename      string    `json:"filename,omitempty"`
	StoragePath   string    `json:"storage_path,omitempty"`
	ResourceCount int       `json:"resource_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// SavedResource is a persisted ExtractedResource, child of a SavedDocument.
// ID is assigned by the store; SourceID keeps the transient extraction id for traceability only.
type SavedResource struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	SourceID   string    `json:"source_id,omitempty"`
	Title      string    `json:"title"`
	Category   Category  `json:"category"`
	URL        string    `json:"url"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}
