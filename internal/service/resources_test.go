package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pdflearn/internal/analysis"
	anMocks "pdflearn/internal/analysis/mocks"
	"pdflearn/internal/confirm"
	"pdflearn/internal/logging"
	"pdflearn/internal/model"
	"pdflearn/internal/repository"
	repoMocks "pdflearn/internal/repository/mocks"
	storeMocks "pdflearn/internal/storage/mocks"
)

type resourceFixture struct {
	svc     ResourceService
	repo    *repoMocks.MockDocumentRepository
	store   *storeMocks.MockStorage
	an      *anMocks.MockService
	tickets *confirm.Store
}

func newResourceFixture(t *testing.T) *resourceFixture {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &resourceFixture{
		repo:    new(repoMocks.MockDocumentRepository),
		store:   new(storeMocks.MockStorage),
		an:      new(anMocks.MockService),
		tickets: confirm.NewStore(rdb, time.Minute),
	}
	f.svc = NewResourceService(f.repo, f.store, f.an, f.tickets, logging.Discard())
	return f
}

func candidates() []model.ExtractedResource {
	return []model.ExtractedResource{
		{ID: "a1", Title: "Intro article", Category: model.CategoryArticle, URL: "https://a/1", Confidence: 0.9},
		{ID: "v1", Title: "Lecture", Category: model.CategoryVideo, URL: "https://youtube.com/1", Confidence: 0.8},
		{ID: "c1", Title: "Course", Category: model.CategoryCourse, URL: "https://coursera.org/1", Confidence: 0.7},
		{ID: "a2", Title: "Deep dive", Category: model.CategoryArticle, URL: "https://a/2", Confidence: 0.6},
		{ID: "v2", Title: "Talk", Category: model.CategoryVideo, URL: "https://vimeo.com/2", Confidence: 0.5},
	}
}

func TestResourceService_Save(t *testing.T) {
	ctx := context.Background()
	valid := SaveRequest{
		CorrelationID: "corr-1",
		Title:         "notes.pdf",
		Filename:      "notes.pdf",
		StoragePath:   "uploads/corr-1-notes.pdf",
		Candidates:    candidates(),
		Selected:      []string{"a1", "c1", "v2"},
	}

	tests := []struct {
		name       string
		owner      string
		req        func() SaveRequest
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantCount  int
	}{
		{
			name:  "three of five selected",
			owner: "owner-1",
			req:   func() SaveRequest { return valid },
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("CreateWithResources", mock.Anything,
					mock.MatchedBy(func(d *model.SavedDocument) bool {
						return d.ID == "corr-1" && d.OwnerID == "owner-1" && d.Title == "notes.pdf"
					}),
					mock.MatchedBy(func(rs []model.SavedResource) bool {
						return len(rs) == 3 && rs[0].SourceID == "a1" && rs[1].SourceID == "c1" && rs[2].SourceID == "v2" &&
							rs[0].ID == "" && rs[0].DocumentID == "corr-1"
					}),
				).Return(&model.SavedDocument{ID: "corr-1"}, []model.SavedResource{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}, nil).Once()
			},
			wantCount: 3,
		},
		{
			name:  "duplicate selections are saved once",
			owner: "owner-1",
			req: func() SaveRequest {
				r := valid
				r.Selected = []string{"a1", "a1"}
				return r
			},
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("CreateWithResources", mock.Anything, mock.Anything,
					mock.MatchedBy(func(rs []model.SavedResource) bool { return len(rs) == 1 }),
				).Return(&model.SavedDocument{ID: "corr-1"}, []model.SavedResource{{ID: "r1"}}, nil).Once()
			},
			wantCount: 1,
		},
		{
			name:    "unauthenticated",
			req:     func() SaveRequest { return valid },
			wantErr: ErrUnauthenticated,
		},
		{
			name:  "missing correlation id",
			owner: "owner-1",
			req: func() SaveRequest {
				r := valid
				r.CorrelationID = " "
				return r
			},
			wantErr: ErrCorrelationIDRequired,
		},
		{
			name:  "missing title",
			owner: "owner-1",
			req: func() SaveRequest {
				r := valid
				r.Title = ""
				return r
			},
			wantErr: ErrTitleRequired,
		},
		{
			name:  "empty selection",
			owner: "owner-1",
			req: func() SaveRequest {
				r := valid
				r.Selected = nil
				return r
			},
			wantErr: ErrEmptySelection,
		},
		{
			name:  "unknown selection",
			owner: "owner-1",
			req: func() SaveRequest {
				r := valid
				r.Selected = []string{"a1", "zz"}
				return r
			},
			wantErr: ErrUnknownSelection,
		},
		{
			name:  "repeated candidate ids",
			owner: "owner-1",
			req: func() SaveRequest {
				r := valid
				r.Candidates = []model.ExtractedResource{
					{ID: "Go basics", Title: "Go basics", Category: model.CategoryArticle, Confidence: 0.9},
					{ID: "Go basics", Title: "Go basics", Category: model.CategoryArticle, Confidence: 0.2},
				}
				r.Selected = []string{"Go basics"}
				return r
			},
			wantErr: ErrAmbiguousCandidates,
		},
		{
			name:  "already saved",
			owner: "owner-1",
			req:   func() SaveRequest { return valid },
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("CreateWithResources", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, nil, repository.ErrDuplicate)
			},
			wantErr: ErrAlreadySaved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResourceFixture(t)
			if tt.setupMocks != nil {
				tt.setupMocks(f.repo)
			}

			res, err := f.svc.Save(ctx, tt.owner, tt.req())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				if tt.setupMocks == nil {
					f.repo.AssertNotCalled(t, "CreateWithResources", mock.Anything, mock.Anything, mock.Anything)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, res.Resources, tt.wantCount)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestResourceService_SaveKeepsPickedCandidate(t *testing.T) {
	f := newResourceFixture(t)
	cands := analysis.Normalize(analysis.RawResources{
		Articles: json.RawMessage(`[{"title":"Go basics","score":0.9},{"title":"Go basics","score":0.2}]`),
	})
	require.Len(t, cands, 2)
	f.repo.On("CreateWithResources", mock.Anything, mock.Anything,
		mock.MatchedBy(func(rs []model.SavedResource) bool {
			return len(rs) == 1 && rs[0].Confidence == 0.9
		}),
	).Return(&model.SavedDocument{ID: "corr-1"}, []model.SavedResource{{ID: "r1"}}, nil).Once()

	_, err := f.svc.Save(context.Background(), "owner-1", SaveRequest{
		CorrelationID: "corr-1",
		Title:         "notes.pdf",
		Candidates:    cands,
		Selected:      []string{cands[0].ID},
	})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func threeResources() []model.SavedResource {
	return []model.SavedResource{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}
}

func TestResourceService_RequestDeletion(t *testing.T) {
	ctx := context.Background()
	doc := &model.SavedDocument{ID: "doc-1", Title: "Notes", ResourceCount: 3}

	tests := []struct {
		name     string
		req      DeletionRequest
		wantKind confirm.Kind
		wantText string
		wantErr  error
	}{
		{
			name:     "subset",
			req:      DeletionRequest{DocumentID: "doc-1", ResourceIDs: []string{"r2"}},
			wantKind: confirm.KindDeleteResources,
			wantText: "This will delete 1 selected resource(s) from \"Notes\".",
		},
		{
			name:     "every resource selected deletes the document",
			req:      DeletionRequest{DocumentID: "doc-1", ResourceIDs: []string{"r1", "r2", "r3"}},
			wantKind: confirm.KindDeleteDocument,
			wantText: "entire document \"Notes\" and all of its 3 resource(s)",
		},
		{
			name:     "whole document",
			req:      DeletionRequest{DocumentID: "doc-1", WholeDocument: true},
			wantKind: confirm.KindDeleteDocument,
			wantText: "entire document",
		},
		{
			name:    "unknown resource",
			req:     DeletionRequest{DocumentID: "doc-1", ResourceIDs: []string{"nope"}},
			wantErr: ErrUnknownSelection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResourceFixture(t)
			f.repo.On("FindByID", mock.Anything, "owner-1", "doc-1").Return(doc, nil)
			f.repo.On("ListResources", mock.Anything, "owner-1", "doc-1").Return(threeResources(), nil)

			ticket, err := f.svc.RequestDeletion(ctx, "owner-1", tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ticket.Kind)
			assert.Contains(t, ticket.Description, tt.wantText)
			assert.NotEmpty(t, ticket.Token)
		})
	}

	t.Run("validation happens before any read", func(t *testing.T) {
		f := newResourceFixture(t)
		_, err := f.svc.RequestDeletion(ctx, "owner-1", DeletionRequest{DocumentID: "doc-1"})
		assert.ErrorIs(t, err, ErrEmptySelection)
		_, err = f.svc.RequestDeletion(ctx, "owner-1", DeletionRequest{ResourceIDs: []string{"r1"}})
		assert.ErrorIs(t, err, ErrIDRequired)
		f.repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newResourceFixture(t)
		f.repo.On("FindByID", mock.Anything, "owner-1", "ghost").Return(nil, repository.ErrNotFound)
		_, err := f.svc.RequestDeletion(ctx, "owner-1", DeletionRequest{DocumentID: "ghost", WholeDocument: true})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResourceService_ConfirmDeletion(t *testing.T) {
	ctx := context.Background()
	doc := &model.SavedDocument{
		ID: "doc-1", Title: "Notes", Filename: "notes.pdf",
		StoragePath: "uploads/doc-1-notes.pdf", ResourceCount: 3,
	}

	request := func(t *testing.T, f *resourceFixture, cmd confirm.Command) string {
		t.Helper()
		ticket, err := f.tickets.Request(ctx, "owner-1", cmd)
		require.NoError(t, err)
		return ticket.Token
	}

	t.Run("strict subset keeps the document", func(t *testing.T) {
		f := newResourceFixture(t)
		f.repo.On("DeleteResources", mock.Anything, "owner-1", "doc-1", []string{"r2"}).Return(2, nil)
		token := request(t, f, confirm.Command{Kind: confirm.KindDeleteResources, Description: "d", DocumentID: "doc-1", ResourceIDs: []string{"r2"}})

		res, err := f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", token)
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedResources)
		assert.False(t, res.DocumentDeleted)
		f.repo.AssertNotCalled(t, "DeleteDocument", mock.Anything, mock.Anything, mock.Anything)
		f.an.AssertNotCalled(t, "DeletePDF", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("last resource cascades", func(t *testing.T) {
		f := newResourceFixture(t)
		one := *doc
		one.ResourceCount = 0
		f.repo.On("DeleteResources", mock.Anything, "owner-1", "doc-1", []string{"r1"}).Return(0, nil)
		f.repo.On("FindByID", mock.Anything, "owner-1", "doc-1").Return(&one, nil)
		f.repo.On("DeleteDocument", mock.Anything, "owner-1", "doc-1").Return(nil)
		f.store.On("Delete", mock.Anything, "uploads/doc-1-notes.pdf").Return(nil)
		f.an.On("DeletePDF", mock.Anything, "bearer", "doc-1", "notes.pdf").Return(nil)
		token := request(t, f, confirm.Command{Kind: confirm.KindDeleteResources, Description: "d", DocumentID: "doc-1", ResourceIDs: []string{"r1"}})

		res, err := f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", token)
		require.NoError(t, err)
		assert.True(t, res.DocumentDeleted)
		assert.Equal(t, 1, res.DeletedResources)
		assert.Empty(t, res.Warnings)
		f.repo.AssertExpectations(t)
		f.store.AssertExpectations(t)
		f.an.AssertExpectations(t)
	})

	t.Run("cleanup failures become warnings", func(t *testing.T) {
		f := newResourceFixture(t)
		f.repo.On("FindByID", mock.Anything, "owner-1", "doc-1").Return(doc, nil)
		f.repo.On("DeleteDocument", mock.Anything, "owner-1", "doc-1").Return(nil)
		f.store.On("Delete", mock.Anything, "uploads/doc-1-notes.pdf").Return(errors.New("minio down"))
		f.an.On("DeletePDF", mock.Anything, "bearer", "doc-1", "notes.pdf").Return(errors.New("502"))
		token := request(t, f, confirm.Command{Kind: confirm.KindDeleteDocument, Description: "d", DocumentID: "doc-1"})

		res, err := f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", token)
		require.NoError(t, err)
		assert.True(t, res.DocumentDeleted)
		assert.Equal(t, 3, res.DeletedResources)
		assert.Equal(t, []string{WarnBlobCleanup, WarnBackendCleanup}, res.Warnings)
	})

	t.Run("tickets are single use", func(t *testing.T) {
		f := newResourceFixture(t)
		f.repo.On("DeleteResources", mock.Anything, "owner-1", "doc-1", []string{"r2"}).Return(1, nil).Once()
		token := request(t, f, confirm.Command{Kind: confirm.KindDeleteResources, Description: "d", DocumentID: "doc-1", ResourceIDs: []string{"r2"}})

		_, err := f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", token)
		require.NoError(t, err)
		_, err = f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", token)
		assert.ErrorIs(t, err, confirm.ErrTicketNotFound)
	})

	t.Run("unconfirmed or foreign tickets never delete", func(t *testing.T) {
		f := newResourceFixture(t)
		upload := request(t, f, confirm.Command{Kind: confirm.KindDiscardUpload, Description: "d"})

		_, err := f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", upload)
		assert.ErrorIs(t, err, confirm.ErrKindMismatch)
		_, err = f.svc.ConfirmDeletion(ctx, "owner-2", "bearer", upload)
		assert.ErrorIs(t, err, confirm.ErrTicketNotFound)
		_, err = f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", "made-up")
		assert.ErrorIs(t, err, confirm.ErrTicketNotFound)
		f.repo.AssertNotCalled(t, "DeleteResources", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "DeleteDocument", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cancel", func(t *testing.T) {
		f := newResourceFixture(t)
		token := request(t, f, confirm.Command{Kind: confirm.KindDeleteDocument, Description: "d", DocumentID: "doc-1"})

		require.NoError(t, f.svc.CancelDeletion(ctx, "owner-1", token))
		_, err := f.svc.ConfirmDeletion(ctx, "owner-1", "bearer", token)
		assert.ErrorIs(t, err, confirm.ErrTicketNotFound)
	})
}
