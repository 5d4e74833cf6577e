package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pdflearn/internal/model"
	"pdflearn/internal/repository"
	"pdflearn/internal/storage"
)

// Empty-state messages of the saved-resources views.
const (
	EmptyLibraryMessage  = "No saved resources yet."
	EmptyFilterMessage   = "No resources match your search."
	EmptyDocumentMessage = "No resources found for this PDF."
)

// loadConcurrency bounds the per-document resource reads of one Browse call.
const loadConcurrency = 4

// downloadExpiry is the lifetime of a document's presigned download link.
const downloadExpiry = 15 * time.Minute

// ResourceView is a saved resource flattened with the title of its document.
type ResourceView struct {
	model.SavedResource
	DocumentTitle string `json:"document_title"`
}

// BrowseResult is the filtered, sorted resource list. Message is set whenever Items is empty.
type BrowseResult struct {
	Items   []ResourceView `json:"data"`
	Total   int            `json:"total"`
	Query   string         `json:"query,omitempty"`
	Message string         `json:"message,omitempty"`
}

// SelectionResult is the select-all answer for a filtered view. Documents groups the ids per
// document in view order; each group can be sent as a deletion request as is.
type SelectionResult struct {
	IDs       []string          `json:"ids"`
	Documents []DeletionRequest `json:"documents"`
}

// DocumentView is one saved document with its resource summary line.
type DocumentView struct {
	model.SavedDocument
	Summary string `json:"summary"`
}

// DocumentListResult is the service-level DTO for the document list.
type DocumentListResult struct {
	Items   []DocumentView `json:"data"`
	Total   int            `json:"total"`
	Message string         `json:"message,omitempty"`
}

// DocumentDetail is one document with its resources, best first.
type DocumentDetail struct {
	Document    DocumentView          `json:"document"`
	Resources   []model.SavedResource `json:"resources"`
	DownloadURL string                `json:"download_url,omitempty"`
	Message     string                `json:"message,omitempty"`
}

// BrowserService reads what a user saved.
type BrowserService interface {
	// Browse returns every saved resource of the owner matching query on title or category.
	Browse(ctx context.Context, ownerID, query string) (*BrowseResult, error)

	// Selection returns the ids of the resources Browse would show, for select-all.
	Selection(ctx context.Context, ownerID, query string) (*SelectionResult, error)

	// Documents lists the owner's documents, newest first.
	Documents(ctx context.Context, ownerID string) (*DocumentListResult, error)

	// Document returns one document with its resources.
	Document(ctx context.Context, ownerID, id string) (*DocumentDetail, error)
}

type browserService struct {
	repo  repository.DocumentRepository
	blobs storage.Storage
}

// NewBrowserService constructs a BrowserService. blobs may be nil, in which case
// document details carry no download link.
func NewBrowserService(repo repository.DocumentRepository, blobs storage.Storage) BrowserService {
	return &browserService{repo: repo, blobs: blobs}
}

// Summary renders the resource count line shown under a document.
func Summary(count int) string {
	if count == 1 {
		return "1 learning resource available"
	}
	return fmt.Sprintf("%d learning resources available", count)
}

func (s *browserService) Browse(ctx context.Context, ownerID, query string) (*BrowseResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	all, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	items := filter(all, query)
	slices.SortStableFunc(items, func(a, b ResourceView) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	res := &BrowseResult{Items: items, Total: len(items), Query: query}
	switch {
	case len(all) == 0:
		res.Message = EmptyLibraryMessage
	case len(items) == 0:
		res.Message = EmptyFilterMessage
	}
	return res, nil
}

func (s *browserService) Selection(ctx context.Context, ownerID, query string) (*SelectionResult, error) {
	res, err := s.Browse(ctx, ownerID, query)
	if err != nil {
		return nil, err
	}
	out := &SelectionResult{IDs: make([]string, 0, len(res.Items)), Documents: []DeletionRequest{}}
	group := make(map[string]int)
	for _, it := range res.Items {
		out.IDs = append(out.IDs, it.ID)
		i, ok := group[it.DocumentID]
		if !ok {
			i = len(out.Documents)
			group[it.DocumentID] = i
			out.Documents = append(out.Documents, DeletionRequest{DocumentID: it.DocumentID})
		}
		out.Documents[i].ResourceIDs = append(out.Documents[i].ResourceIDs, it.ID)
	}
	return out, nil
}

// load reads every document, then each document's resources concurrently, keeping document order.
func (s *browserService) load(ctx context.Context, ownerID string) ([]ResourceView, error) {
	docs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	perDoc := make([][]model.SavedResource, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, d := range docs {
		g.Go(func() error {
			rs, err := s.repo.ListResources(gctx, ownerID, d.ID)
			if err != nil {
				return fmt.Errorf("list resources of %s: %w", d.ID, err)
			}
			perDoc[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ResourceView
	for i, rs := range perDoc {
		for _, r := range rs {
			r.DocumentID = docs[i].ID
			out = append(out, ResourceView{SavedResource: r, DocumentTitle: docs[i].Title})
		}
	}
	return out, nil
}

func filter(all []ResourceView, query string) []ResourceView {
	out := make([]ResourceView, 0, len(all))
	if query == "" {
		return append(out, all...)
	}
	q := strings.ToLower(query)
	for _, r := range all {
		if strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(string(r.Category)), q) {
			out = append(out, r)
		}
	}
	return out
}

func (s *browserService) Documents(ctx context.Context, ownerID string) (*DocumentListResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	docs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	items := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		items = append(items, DocumentView{SavedDocument: d, Summary: Summary(d.ResourceCount)})
	}
	res := &DocumentListResult{Items: items, Total: len(items)}
	if len(items) == 0 {
		res.Message = EmptyLibraryMessage
	}
	return res, nil
}

func (s *browserService) Document(ctx context.Context, ownerID, id string) (*DocumentDetail, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	rs, err := s.repo.ListResources(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if rs == nil {
		rs = []model.SavedResource{}
	}
	res := &DocumentDetail{
		Document:  DocumentView{SavedDocument: *doc, Summary: Summary(len(rs))},
		Resources: rs,
	}
	if len(rs) == 0 {
		res.Message = EmptyDocumentMessage
	}
	if s.blobs != nil && doc.StoragePath != "" {
		// a missing link never hides the document
		if u, err := s.blobs.PresignGet(ctx, doc.StoragePath, downloadExpiry); err == nil {
			res.DownloadURL = u
		}
	}
	return res, nil
}
