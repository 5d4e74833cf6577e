package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"pdflearn/internal/config"
)

const (
	// TypeAnalyzePDF is the task type of one PDF analysis.
	TypeAnalyzePDF = "pdf:analyze"
	// QueueName is the queue analysis tasks are published to.
	QueueName = "analysis"

	taskRetries = 2
	taskTimeout = 10 * time.Minute
)

// AnalyzePayload identifies the job a task runs.
type AnalyzePayload struct {
	JobID      string `json:"job_id"`
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
}

// Queue publishes analysis tasks.
type Queue interface {
	Enqueue(ctx context.Context, p AnalyzePayload) error
	// Cancel drops a task that no worker has started. It reports whether the task was dropped.
	Cancel(jobID string) bool
}

// RedisOpt is the asynq connection for a Redis section.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsynqQueue is the Queue backed by asynq.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

var _ Queue = (*AsynqQueue)(nil)

// NewQueue connects a publisher to Redis.
func NewQueue(cfg config.RedisConfig) *AsynqQueue {
	opt := RedisOpt(cfg)
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// Close releases both Redis connections.
func (q *AsynqQueue) Close() error {
	ierr := q.inspector.Close()
	if err := q.client.Close(); err != nil {
		return err
	}
	return ierr
}

// Enqueue publishes the task under the job id so a job is queued at most once.
func (q *AsynqQueue) Enqueue(ctx context.Context, p AnalyzePayload) error {
	task, err := NewAnalyzeTask(p)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(p.JobID),
		asynq.Queue(QueueName),
		asynq.MaxRetry(taskRetries),
		asynq.Timeout(taskTimeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeAnalyzePDF, err)
	}
	return nil
}

// Cancel deletes the task while it is still waiting in the queue.
func (q *AsynqQueue) Cancel(jobID string) bool {
	return q.inspector.DeleteTask(QueueName, jobID) == nil
}

// NewAnalyzeTask encodes p as an asynq task.
func NewAnalyzeTask(p AnalyzePayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeAnalyzePDF, data), nil
}

// NewMux routes analysis tasks to w.
func NewMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeAnalyzePDF, asynq.HandlerFunc(w.ProcessTask))
	return mux
}
