// Package analyzer serves the analysis API and runs queued analysis jobs.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pdflearn/internal/model"
)

const (
	jobKeyPrefix   = "analyzer:job:"
	haltKeyPrefix  = "analyzer:halt:"
	defaultJobTTL  = 24 * time.Hour
	maxFinishTries = 5
)

var (
	// ErrJobNotFound is returned for unknown or expired jobs.
	ErrJobNotFound = errors.New("analysis job not found")
	// ErrJobExists is returned when a correlation id is reused.
	ErrJobExists = errors.New("analysis job already exists")
	// ErrJobFinished is returned when a terminal job is asked to change status.
	ErrJobFinished = errors.New("analysis job already finished")
)

// Job is the stored state of one analysis.
type Job struct {
	ID         string          `json:"id"`
	Owner      string          `json:"owner"`
	Filename   string          `json:"filename"`
	StorageKey string          `json:"storage_key"`
	Status     model.JobStatus `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobStore keeps jobs and their halt flags in Redis.
type JobStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

// NewJobStore returns a store whose jobs expire ttl after their last change.
func NewJobStore(rdb redis.UniversalClient, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &JobStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func jobKey(id string) string  { return jobKeyPrefix + id }
func haltKey(id string) string { return haltKeyPrefix + id }

// Create stores a new pending job.
func (s *JobStore) Create(ctx context.Context, j *Job) error {
	now := s.now().UTC()
	j.Status = model.JobPending
	j.CreatedAt, j.UpdatedAt = now, now
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(j.ID), b, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readJob(ctx context.Context, c getter, id string) (*Job, error) {
	b, err := c.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

// Get returns the job with the given id.
func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	return readJob(ctx, s.rdb, id)
}

// Finish moves a pending job to a terminal status. Terminal jobs never change again.
func (s *JobStore) Finish(ctx context.Context, id string, status model.JobStatus, result json.RawMessage, msg string) (*Job, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("finish job: %q is not terminal", status)
	}
	key := jobKey(id)
	var out *Job

	txf := func(tx *redis.Tx) error {
		j, err := readJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.Status.Terminal() {
			out = j
			return ErrJobFinished
		}
		j.Status = status
		j.Result = result
		j.Error = msg
		j.UpdatedAt = s.now().UTC()
		b, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.ttl)
			return nil
		})
		out = j
		return err
	}

	for i := 0; i < maxFinishTries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return nil, fmt.Errorf("finish job %s: too many concurrent writers", id)
}

// RequestHalt raises the job's halt flag.
func (s *JobStore) RequestHalt(ctx context.Context, id string) error {
	if err := s.rdb.Set(ctx, haltKey(id), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("request halt: %w", err)
	}
	return nil
}

// Halted reports whether a halt was requested or the job no longer exists.
func (s *JobStore) Halted(ctx context.Context, id string) (bool, error) {
	pipe := s.rdb.Pipeline()
	flag := pipe.Exists(ctx, haltKey(id))
	job := pipe.Exists(ctx, jobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("check halt: %w", err)
	}
	return flag.Val() > 0 || job.Val() == 0, nil
}

// Delete forgets the job and its halt flag.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, jobKey(id), haltKey(id)).Err(); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}
