package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pdflearn/internal/analysis"
	"pdflearn/internal/analyzer/pipeline"
	"pdflearn/internal/model"
	"pdflearn/internal/storage"
	"pdflearn/internal/storage/mocks"
)

type fakeRunner struct {
	calls int
	run   func(ctx context.Context, halted pipeline.HaltFunc) (*pipeline.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, filename string, data []byte, halted pipeline.HaltFunc) (*pipeline.Result, error) {
	f.calls++
	return f.run(ctx, halted)
}

func okResult(ctx context.Context, _ pipeline.HaltFunc) (*pipeline.Result, error) {
	return &pipeline.Result{
		Filename: "notes.pdf",
		Analysis: pipeline.Analysis{
			Pages:  2,
			Topics: []analysis.Topic{{Name: "Gradient descent"}},
			Resources: pipeline.Resources{
				Articles: []pipeline.Resource{{ID: "https://a", Title: "A", URL: "https://a", Score: 0.7}},
				Videos:   []pipeline.Resource{},
				Courses:  []pipeline.Resource{},
				Topics:   []string{"Gradient descent"},
			},
		},
	}, nil
}

type workerFixture struct {
	jobs    *JobStore
	blobs   *mocks.MockStorage
	runner  *fakeRunner
	metrics *Metrics
	worker  *Worker
}

func newWorkerFixture(t *testing.T, run func(context.Context, pipeline.HaltFunc) (*pipeline.Result, error)) *workerFixture {
	t.Helper()
	jobs, _, _ := newJobStore(t)
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	f := &workerFixture{
		jobs:    jobs,
		blobs:   new(mocks.MockStorage),
		runner:  &fakeRunner{run: run},
		metrics: m,
	}
	f.worker = NewWorker(WorkerOptions{Jobs: jobs, Blobs: f.blobs, Runner: f.runner, Metrics: m})
	return f
}

func (f *workerFixture) seed(t *testing.T, id string) AnalyzePayload {
	t.Helper()
	key := storage.UploadKey(id, "notes.pdf")
	require.NoError(t, f.jobs.Create(context.Background(), &Job{ID: id, Owner: "user-1", Filename: "notes.pdf", StorageKey: key}))
	return AnalyzePayload{JobID: id, StorageKey: key, Filename: "notes.pdf"}
}

func (f *workerFixture) serveBlob(key string) {
	f.blobs.On("Get", mock.Anything, key).
		Return(io.NopCloser(bytes.NewReader([]byte("%PDF-1.4"))), storage.ObjectInfo{Key: key}, nil)
}

func task(t *testing.T, p AnalyzePayload) *asynq.Task {
	t.Helper()
	tk, err := NewAnalyzeTask(p)
	require.NoError(t, err)
	return tk
}

func TestWorkerProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("done", func(t *testing.T) {
		f := newWorkerFixture(t, okResult)
		p := f.seed(t, "job-1")
		f.serveBlob(p.StorageKey)

		require.NoError(t, f.worker.ProcessTask(ctx, task(t, p)))
		j, err := f.jobs.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobDone, j.Status)

		body, _ := json.Marshal(map[string]any{"status": j.Status, "result": j.Result})
		report, err := analysis.DecodeStatus(body)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Pages)
		require.Len(t, report.Resources, 1)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.finished.WithLabelValues("done")))
	})

	t.Run("halted between stages", func(t *testing.T) {
		f := newWorkerFixture(t, func(ctx context.Context, halted pipeline.HaltFunc) (*pipeline.Result, error) {
			if stop, _ := halted(ctx); stop {
				return nil, pipeline.ErrHalted
			}
			return okResult(ctx, halted)
		})
		p := f.seed(t, "job-2")
		f.serveBlob(p.StorageKey)
		require.NoError(t, f.jobs.RequestHalt(ctx, "job-2"))

		require.NoError(t, f.worker.ProcessTask(ctx, task(t, p)))
		j, _ := f.jobs.Get(ctx, "job-2")
		assert.Equal(t, model.JobCancelled, j.Status)
	})

	t.Run("stage failure is recorded", func(t *testing.T) {
		f := newWorkerFixture(t, func(context.Context, pipeline.HaltFunc) (*pipeline.Result, error) {
			return nil, fmt.Errorf("extract text: %w", pipeline.ErrNoText)
		})
		p := f.seed(t, "job-3")
		f.serveBlob(p.StorageKey)

		require.NoError(t, f.worker.ProcessTask(ctx, task(t, p)))
		j, _ := f.jobs.Get(ctx, "job-3")
		assert.Equal(t, model.JobFailed, j.Status)
		assert.Equal(t, "The PDF contains no extractable text", j.Error)
	})

	t.Run("missing blob fails the job", func(t *testing.T) {
		f := newWorkerFixture(t, okResult)
		p := f.seed(t, "job-4")
		f.blobs.On("Get", mock.Anything, p.StorageKey).Return(nil, storage.ObjectInfo{}, storage.ErrNotFound)

		require.NoError(t, f.worker.ProcessTask(ctx, task(t, p)))
		j, _ := f.jobs.Get(ctx, "job-4")
		assert.Equal(t, model.JobFailed, j.Status)
		assert.Equal(t, 0, f.runner.calls)
	})

	t.Run("forgotten job is skipped", func(t *testing.T) {
		f := newWorkerFixture(t, okResult)
		require.NoError(t, f.worker.ProcessTask(ctx, task(t, AnalyzePayload{JobID: "gone"})))
		assert.Equal(t, 0, f.runner.calls)
	})

	t.Run("finished job is not rerun", func(t *testing.T) {
		f := newWorkerFixture(t, okResult)
		p := f.seed(t, "job-5")
		_, err := f.jobs.Finish(ctx, "job-5", model.JobCancelled, nil, "")
		require.NoError(t, err)

		require.NoError(t, f.worker.ProcessTask(ctx, task(t, p)))
		assert.Equal(t, 0, f.runner.calls)
	})

	t.Run("job deleted while running", func(t *testing.T) {
		var f *workerFixture
		f = newWorkerFixture(t, func(ctx context.Context, halted pipeline.HaltFunc) (*pipeline.Result, error) {
			require.NoError(t, f.jobs.Delete(ctx, "job-6"))
			return okResult(ctx, halted)
		})
		p := f.seed(t, "job-6")
		f.serveBlob(p.StorageKey)

		require.NoError(t, f.worker.ProcessTask(ctx, task(t, p)))
		_, err := f.jobs.Get(ctx, "job-6")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("interrupted run is retried", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		f := newWorkerFixture(t, func(context.Context, pipeline.HaltFunc) (*pipeline.Result, error) {
			cancel()
			return nil, context.Canceled
		})
		p := f.seed(t, "job-7")
		f.serveBlob(p.StorageKey)

		err := f.worker.ProcessTask(cctx, task(t, p))
		assert.ErrorIs(t, err, context.Canceled)
		j, _ := f.jobs.Get(ctx, "job-7")
		assert.Equal(t, model.JobPending, j.Status)
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		f := newWorkerFixture(t, okResult)
		err := f.worker.ProcessTask(ctx, asynq.NewTask(TypeAnalyzePDF, []byte("{")))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}

func TestNewMux(t *testing.T) {
	f := newWorkerFixture(t, okResult)
	p := f.seed(t, "job-8")
	f.serveBlob(p.StorageKey)

	mux := NewMux(f.worker)
	require.NoError(t, mux.ProcessTask(context.Background(), task(t, p)))
	j, _ := f.jobs.Get(context.Background(), "job-8")
	assert.Equal(t, model.JobDone, j.Status)
}
