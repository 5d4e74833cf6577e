package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pdflearn/internal/identity"
	"pdflearn/internal/model"
	"pdflearn/internal/storage"
	"pdflearn/internal/storage/mocks"
)

const (
	jobID      = "3f1c9a52-8d4e-4b7a-9c61-2a5e7d0b9f13"
	otherJobID = "7b2e4c1d-0f3a-4e5b-8c9d-1a2b3c4d5e6f"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (*identity.Claims, error) {
	switch token {
	case "token-1":
		return &identity.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ID: "sess-1"}}, nil
	case "token-2":
		return &identity.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2", ID: "sess-2"}}, nil
	case "outage":
		return nil, errors.New("redis unavailable")
	}
	return nil, identity.ErrInvalidToken
}

type fakeQueue struct {
	enqueued  []AnalyzePayload
	err       error
	cancelled []string
	cancelOK  bool
}

func (q *fakeQueue) Enqueue(_ context.Context, p AnalyzePayload) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, p)
	return nil
}

func (q *fakeQueue) Cancel(jobID string) bool {
	q.cancelled = append(q.cancelled, jobID)
	return q.cancelOK
}

type apiFixture struct {
	app   *fiber.App
	jobs  *JobStore
	redis *miniredis.Miniredis
	blobs *mocks.MockStorage
	queue *fakeQueue
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	jobs, srv, rdb := newJobStore(t)
	f := &apiFixture{jobs: jobs, redis: srv, blobs: new(mocks.MockStorage), queue: &fakeQueue{}}
	s := NewServer(ServerOptions{
		Jobs:     jobs,
		Blobs:    f.blobs,
		Queue:    f.queue,
		Verifier: stubVerifier{},
		Redis:    rdb,
		MaxBytes: 64,
	})
	f.app = fiber.New()
	s.Register(f.app)
	return f
}

func pdfForm(t *testing.T, id, filename, contentType string, body []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if id != "" {
		require.NoError(t, w.WriteField("uuid", id))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write(body)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (f *apiFixture) do(t *testing.T, req *http.Request, token string) (*http.Response, map[string]any) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	var body map[string]any
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &body)
	return resp, body
}

func jsonBody(method, path string, v any) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	f.redis.SetError("down")
	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLogUserAction(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, jsonBody(http.MethodPost, "/api/log_user_action", map[string]any{
		"action": "[AUTH ACTION] [SIGNIN SUCCESS]", "component": "auth", "level": "warning",
	}), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, jsonBody(http.MethodPost, "/api/log_user_action", map[string]any{"component": "auth"}), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "An action is required", body["error"])
}

func TestAuthenticate(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/analyze-pdf-status/"+jobID, nil)
	resp, body := f.do(t, req, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	req = httptest.NewRequest(http.MethodGet, "/api/analyze-pdf-status/"+jobID, nil)
	resp, _ = f.do(t, req, "outage")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAnalyzePDF(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		f := newAPIFixture(t)
		key := storage.UploadKey(jobID, "notes.pdf")
		f.blobs.On("Put", mock.Anything, key, mock.Anything, mock.MatchedBy(func(o storage.PutObjectOptions) bool {
			return o.ContentType == "application/pdf" && o.Metadata["owner"] == "user-1"
		})).Return(storage.ObjectInfo{Key: key}, nil)

		body, ct := pdfForm(t, jobID, "../notes.pdf", "application/pdf", []byte("%PDF-1.4 tiny"))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze-pdf", body)
		req.Header.Set("Content-Type", ct)
		resp, out := f.do(t, req, "token-1")

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "pending", out["status"])
		j, err := f.jobs.Get(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", j.Owner)
		assert.Equal(t, key, j.StorageKey)
		assert.Equal(t, []AnalyzePayload{{JobID: jobID, StorageKey: key, Filename: "notes.pdf"}}, f.queue.enqueued)
		f.blobs.AssertExpectations(t)
	})

	tests := []struct {
		name        string
		id          string
		contentType string
		body        []byte
		wantStatus  int
	}{
		{"invalid uuid", "not-a-uuid", "application/pdf", []byte("%PDF"), http.StatusBadRequest},
		{"wrong type", jobID, "image/png", []byte("png"), http.StatusUnsupportedMediaType},
		{"too large", jobID, "application/pdf", bytes.Repeat([]byte("x"), 65), http.StatusRequestEntityTooLarge},
		{"empty", jobID, "application/pdf", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			body, ct := pdfForm(t, tt.id, "notes.pdf", tt.contentType, tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/analyze-pdf", body)
			req.Header.Set("Content-Type", ct)
			resp, _ := f.do(t, req, "token-1")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Empty(t, f.queue.enqueued)
			f.blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("reused uuid", func(t *testing.T) {
		f := newAPIFixture(t)
		require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-2"}))
		body, ct := pdfForm(t, jobID, "notes.pdf", "application/pdf", []byte("%PDF"))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze-pdf", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := f.do(t, req, "token-1")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("queue unavailable rolls back", func(t *testing.T) {
		f := newAPIFixture(t)
		f.queue.err = errors.New("redis down")
		key := storage.UploadKey(jobID, "notes.pdf")
		f.blobs.On("Put", mock.Anything, key, mock.Anything, mock.Anything).Return(storage.ObjectInfo{Key: key}, nil)
		f.blobs.On("Delete", mock.Anything, key).Return(nil)

		body, ct := pdfForm(t, jobID, "notes.pdf", "application/pdf", []byte("%PDF"))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze-pdf", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := f.do(t, req, "token-1")

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_, err := f.jobs.Get(ctx, jobID)
		assert.ErrorIs(t, err, ErrJobNotFound)
		f.blobs.AssertExpectations(t)
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-1"}))

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze-pdf-status/"+jobID, nil), "token-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Nil(t, body["result"])

	_, err := f.jobs.Finish(ctx, jobID, model.JobDone, json.RawMessage(`{"filename":"a.pdf","analysis":{"pages":1}}`), "")
	require.NoError(t, err)
	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze-pdf-status/"+jobID, nil), "token-1")
	assert.Equal(t, "done", body["status"])
	assert.Equal(t, "a.pdf", body["result"].(map[string]any)["filename"])

	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze-pdf-status/"+jobID, nil), "token-2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "other users cannot see the job")

	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze-pdf-status/"+otherJobID, nil), "token-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHalt(t *testing.T) {
	ctx := context.Background()

	t.Run("queued job is cancelled at once", func(t *testing.T) {
		f := newAPIFixture(t)
		f.queue.cancelOK = true
		require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-1"}))

		resp, body := f.do(t, jsonBody(http.MethodPost, "/api/halt_pdf_process", map[string]string{"uuid": jobID}), "token-1")
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "cancelled", body["status"])
		j, _ := f.jobs.Get(ctx, jobID)
		assert.Equal(t, model.JobCancelled, j.Status)
	})

	t.Run("running job gets the halt flag", func(t *testing.T) {
		f := newAPIFixture(t)
		require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-1"}))

		resp, body := f.do(t, jsonBody(http.MethodPost, "/api/halt_pdf_process", map[string]string{"uuid": jobID}), "token-1")
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "pending", body["status"])
		halted, err := f.jobs.Halted(ctx, jobID)
		require.NoError(t, err)
		assert.True(t, halted)
	})

	t.Run("finished job is left alone", func(t *testing.T) {
		f := newAPIFixture(t)
		require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-1"}))
		_, err := f.jobs.Finish(ctx, jobID, model.JobDone, nil, "")
		require.NoError(t, err)

		resp, body := f.do(t, jsonBody(http.MethodPost, "/api/halt_pdf_process", map[string]string{"uuid": jobID}), "token-1")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "done", body["status"])
		assert.Empty(t, f.queue.cancelled)
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newAPIFixture(t)
		resp, _ := f.do(t, jsonBody(http.MethodPost, "/api/halt_pdf_process", map[string]string{"uuid": jobID}), "token-1")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDeletePDF(t *testing.T) {
	ctx := context.Background()
	prefix := storage.UploadPrefix + jobID + "-"

	t.Run("removes blobs and job", func(t *testing.T) {
		f := newAPIFixture(t)
		require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-1"}))
		f.blobs.On("DeletePrefix", mock.Anything, prefix).Return(1, nil)

		resp, body := f.do(t, jsonBody(http.MethodDelete, "/api/delete-pdf", map[string]string{"uuid": jobID, "filename": "notes.pdf"}), "token-1")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["removed"])
		assert.Equal(t, []string{jobID}, f.queue.cancelled)
		_, err := f.jobs.Get(ctx, jobID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("forgotten job still removes blobs", func(t *testing.T) {
		f := newAPIFixture(t)
		f.blobs.On("DeletePrefix", mock.Anything, prefix).Return(0, nil)
		resp, _ := f.do(t, jsonBody(http.MethodDelete, "/api/delete-pdf", map[string]string{"uuid": jobID}), "token-1")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		f.blobs.AssertExpectations(t)
	})

	t.Run("other owner", func(t *testing.T) {
		f := newAPIFixture(t)
		require.NoError(t, f.jobs.Create(ctx, &Job{ID: jobID, Owner: "user-2"}))
		resp, _ := f.do(t, jsonBody(http.MethodDelete, "/api/delete-pdf", map[string]string{"uuid": jobID}), "token-1")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		f.blobs.AssertNotCalled(t, "DeletePrefix", mock.Anything, mock.Anything)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		f := newAPIFixture(t)
		resp, _ := f.do(t, jsonBody(http.MethodDelete, "/api/delete-pdf", map[string]string{"uuid": "../../"}), "token-1")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
