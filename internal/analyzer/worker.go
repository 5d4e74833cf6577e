package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"pdflearn/internal/analyzer/pipeline"
	"pdflearn/internal/model"
	"pdflearn/internal/storage"
)

// Runner analyses one downloaded PDF.
type Runner interface {
	Run(ctx context.Context, filename string, data []byte, halted pipeline.HaltFunc) (*pipeline.Result, error)
}

// Worker executes analysis tasks.
type Worker struct {
	jobs     *JobStore
	blobs    storage.Storage
	runner   Runner
	maxBytes int64
	metrics  *Metrics
	logger   *slog.Logger
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Jobs    *JobStore
	Blobs   storage.Storage
	Runner  Runner
	Metrics *Metrics
	// MaxBytes bounds the size of a downloaded PDF.
	MaxBytes int64
	Logger   *slog.Logger
}

// NewWorker builds a worker.
func NewWorker(opts WorkerOptions) *Worker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	return &Worker{
		jobs:     opts.Jobs,
		blobs:    opts.Blobs,
		runner:   opts.Runner,
		maxBytes: opts.MaxBytes,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "analysis_worker"),
	}
}

// ProcessTask runs one analysis and records its outcome on the job.
// Failures are recorded on the job and not retried; only interruptions are returned to asynq.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AnalyzePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := w.logger.With("job_id", p.JobID)

	job, err := w.jobs.Get(ctx, p.JobID)
	if errors.Is(err, ErrJobNotFound) {
		logger.InfoContext(ctx, "analysis_job_gone")
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	halted := func(ctx context.Context) (bool, error) { return w.jobs.Halted(ctx, p.JobID) }
	start := time.Now()
	logger.InfoContext(ctx, "analysis_started", "filename", job.Filename)

	data, err := w.download(ctx, job.StorageKey)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.finish(ctx, logger, job.ID, model.JobFailed, nil, "Error reading uploaded PDF")
	}

	res, err := w.runner.Run(ctx, job.Filename, data, halted)
	switch {
	case errors.Is(err, pipeline.ErrHalted):
		return w.finish(ctx, logger, job.ID, model.JobCancelled, nil, "")
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		logger.WarnContext(ctx, "analysis_failed", "error", err.Error())
		return w.finish(ctx, logger, job.ID, model.JobFailed, nil, failureMessage(err))
	}

	body, err := json.Marshal(res)
	if err != nil {
		return w.finish(ctx, logger, job.ID, model.JobFailed, nil, "Error processing PDF")
	}
	logger.InfoContext(ctx, "analysis_finished",
		"pages", res.Analysis.Pages,
		"topics", len(res.Analysis.Topics),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return w.finish(ctx, logger, job.ID, model.JobDone, body, "")
}

func (w *Worker) download(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := w.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, w.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(data)) > w.maxBytes {
		return nil, fmt.Errorf("read %s: larger than %d bytes", key, w.maxBytes)
	}
	return data, nil
}

func (w *Worker) finish(ctx context.Context, logger *slog.Logger, id string, status model.JobStatus, result json.RawMessage, msg string) error {
	_, err := w.jobs.Finish(ctx, id, status, result, msg)
	switch {
	case errors.Is(err, ErrJobFinished), errors.Is(err, ErrJobNotFound):
		logger.InfoContext(ctx, "analysis_outcome_discarded", "status", string(status), "reason", err.Error())
		return nil
	case err != nil:
		return err
	}
	w.metrics.finish(status)
	return nil
}

func failureMessage(err error) string {
	if errors.Is(err, pipeline.ErrNoText) {
		return "The PDF contains no extractable text"
	}
	return "Error processing PDF"
}
