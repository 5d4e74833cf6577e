package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pdflearn/internal/analysis"
	"pdflearn/internal/confirm"
	"pdflearn/internal/model"
	"pdflearn/internal/repository"
	"pdflearn/internal/storage"
)

var (
	ErrCorrelationIDRequired = errors.New("no analysis to save: correlation id is missing")
	ErrTitleRequired         = errors.New("a title is required to save resources")
	ErrEmptySelection        = errors.New("select at least one resource")
	ErrUnknownSelection      = errors.New("selection contains unknown resources")
	ErrAlreadySaved          = errors.New("this analysis has already been saved")
	ErrAmbiguousCandidates   = errors.New("analysis results contain repeated resource ids")
)

// Non-blocking cleanup warnings returned by ConfirmDeletion.
const (
	WarnBlobCleanup    = "The stored PDF could not be removed."
	WarnBackendCleanup = "The analysis service could not release its copy of the PDF."
)

// SaveRequest is one save of a finished analysis.
type SaveRequest struct {
	CorrelationID string
	Title         string
	Filename      string
	StoragePath   string
	Candidates    []model.ExtractedResource
	Selected      []string
}

// SaveResult is the persisted document with its resources.
type SaveResult struct {
	Document  *model.SavedDocument  `json:"document"`
	Resources []model.SavedResource `json:"resources"`
}

// DeletionRequest names what to delete. WholeDocument ignores ResourceIDs.
type DeletionRequest struct {
	DocumentID    string   `json:"document_id"`
	ResourceIDs   []string `json:"resource_ids"`
	WholeDocument bool     `json:"whole_document"`
}

// DeletionResult reports a confirmed deletion.
type DeletionResult struct {
	DocumentID       string   `json:"document_id"`
	DeletedResources int      `json:"deleted_resources"`
	DocumentDeleted  bool     `json:"document_deleted"`
	Warnings         []string `json:"warnings,omitempty"`
}

// ResourceService persists selected resources and deletes them behind confirmation tickets.
type ResourceService interface {
	// Save writes one document and one resource per selected candidate. Every precondition is
	// checked before the first write.
	Save(ctx context.Context, ownerID string, req SaveRequest) (*SaveResult, error)

	// RequestDeletion validates the request and returns a ticket describing its exact consequence.
	RequestDeletion(ctx context.Context, ownerID string, req DeletionRequest) (*confirm.Ticket, error)

	// ConfirmDeletion redeems the ticket and executes it. Deleting the last resource of a document
	// cascades to the document, its blob and the analysis service copy.
	ConfirmDeletion(ctx context.Context, ownerID, bearer, token string) (*DeletionResult, error)

	// CancelDeletion discards a ticket.
	CancelDeletion(ctx context.Context, ownerID, token string) error
}

type resourceService struct {
	repo     repository.DocumentRepository
	store    storage.Storage
	analysis analysis.Service
	tickets  *confirm.Store
	logger   *slog.Logger
}

// NewResourceService constructs a ResourceService.
func NewResourceService(repo repository.DocumentRepository, store storage.Storage, an analysis.Service, tickets *confirm.Store, logger *slog.Logger) ResourceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &resourceService{
		repo:     repo,
		store:    store,
		analysis: an,
		tickets:  tickets,
		logger:   logger.With("component", "resources"),
	}
}

func (s *resourceService) Save(ctx context.Context, ownerID string, req SaveRequest) (*SaveResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		return nil, ErrCorrelationIDRequired
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if len(req.Selected) == 0 {
		return nil, ErrEmptySelection
	}

	byID := make(map[string]model.ExtractedResource, len(req.Candidates))
	for _, c := range req.Candidates {
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrAmbiguousCandidates, c.ID)
		}
		byID[c.ID] = c
	}
	seen := make(map[string]bool, len(req.Selected))
	resources := make([]model.SavedResource, 0, len(req.Selected))
	for _, id := range req.Selected {
		if seen[id] {
			continue
		}
		seen[id] = true
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSelection, id)
		}
		resources = append(resources, model.SavedResource{
			OwnerID:    ownerID,
			DocumentID: correlationID,
			SourceID:   c.ID,
			Title:      c.Title,
			Category:   c.Category,
			URL:        c.URL,
			Confidence: c.Confidence,
		})
	}

	doc, saved, err := s.repo.CreateWithResources(ctx, &model.SavedDocument{
		ID:          correlationID,
		OwnerID:     ownerID,
		Title:       title,
		Filename:    req.Filename,
		StoragePath: req.StoragePath,
	}, resources)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadySaved
		}
		return nil, fmt.Errorf("save resources: %w", err)
	}
	s.logger.InfoContext(ctx, "resources_saved", "document_id", doc.ID, "count", len(saved))
	return &SaveResult{Document: doc, Resources: saved}, nil
}

func (s *resourceService) RequestDeletion(ctx context.Context, ownerID string, req DeletionRequest) (*confirm.Ticket, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if req.DocumentID == "" {
		return nil, ErrIDRequired
	}
	if !req.WholeDocument && len(req.ResourceIDs) == 0 {
		return nil, ErrEmptySelection
	}

	doc, err := s.findDocument(ctx, ownerID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListResources(ctx, ownerID, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	cmd := confirm.Command{DocumentID: doc.ID}
	if req.WholeDocument {
		cmd.Kind = confirm.KindDeleteDocument
	} else {
		known := make(map[string]bool, len(existing))
		for _, r := range existing {
			known[r.ID] = true
		}
		picked := make(map[string]bool, len(req.ResourceIDs))
		for _, id := range req.ResourceIDs {
			if !known[id] {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSelection, id)
			}
			if !picked[id] {
				picked[id] = true
				cmd.ResourceIDs = append(cmd.ResourceIDs, id)
			}
		}
		cmd.Kind = confirm.KindDeleteResources
		if len(cmd.ResourceIDs) == len(existing) {
			cmd.Kind = confirm.KindDeleteDocument
			cmd.ResourceIDs = nil
		}
	}

	if cmd.Kind == confirm.KindDeleteDocument {
		cmd.Description = fmt.Sprintf(
			"This will delete the entire document %q and all of its %d resource(s). This action cannot be undone.",
			doc.Title, len(existing))
	} else {
		cmd.Description = fmt.Sprintf(
			"This will delete %d selected resource(s) from %q. The document and its other resources are kept.",
			len(cmd.ResourceIDs), doc.Title)
	}
	return s.tickets.Request(ctx, ownerID, cmd)
}

func (s *resourceService) ConfirmDeletion(ctx context.Context, ownerID, bearer, token string) (*DeletionResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	cmd, err := s.tickets.Redeem(ctx, ownerID, token, confirm.KindDeleteResources, confirm.KindDeleteDocument)
	if err != nil {
		return nil, err
	}
	res := &DeletionResult{DocumentID: cmd.DocumentID}

	if cmd.Kind == confirm.KindDeleteResources {
		remaining, err := s.repo.DeleteResources(ctx, ownerID, cmd.DocumentID, cmd.ResourceIDs)
		if err != nil {
			return nil, fmt.Errorf("delete resources: %w", err)
		}
		res.DeletedResources = len(cmd.ResourceIDs)
		if remaining > 0 {
			s.logger.InfoContext(ctx, "resources_deleted", "document_id", cmd.DocumentID, "count", res.DeletedResources, "remaining", remaining)
			return res, nil
		}
	}

	doc, err := s.findDocument(ctx, ownerID, cmd.DocumentID)
	if err != nil {
		return nil, err
	}
	if cmd.Kind == confirm.KindDeleteDocument {
		res.DeletedResources = doc.ResourceCount
	}
	if err := s.repo.DeleteDocument(ctx, ownerID, doc.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete document: %w", err)
	}
	res.DocumentDeleted = true
	res.Warnings = s.cleanup(ctx, bearer, doc)
	s.logger.InfoContext(ctx, "document_deleted", "document_id", doc.ID, "resources", res.DeletedResources, "warnings", len(res.Warnings))
	return res, nil
}

// cleanup releases the blob and the analysis service copy. Failures never undo the deletion.
func (s *resourceService) cleanup(ctx context.Context, bearer string, doc *model.SavedDocument) []string {
	var warnings []string
	if doc.StoragePath != "" {
		if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
			s.logger.WarnContext(ctx, "blob_cleanup_failed", "document_id", doc.ID, "path", doc.StoragePath, "error", err.Error())
			warnings = append(warnings, WarnBlobCleanup)
		}
	}
	if err := s.analysis.DeletePDF(ctx, bearer, doc.ID, doc.Filename); err != nil {
		s.logger.WarnContext(ctx, "backend_cleanup_failed", "document_id", doc.ID, "error", err.Error())
		warnings = append(warnings, WarnBackendCleanup)
	}
	return warnings
}

func (s *resourceService) CancelDeletion(ctx context.Context, ownerID, token string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	return s.tickets.Cancel(ctx, ownerID, token)
}

func (s *resourceService) findDocument(ctx context.Context, ownerID, id string) (*model.SavedDocument, error) {
	doc, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}
