package workflow

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
	stateKeyPrefix  = "workflow:upload:"
	defaultStateTTL = 24 * time.Hour
	maxUpdateTries  = 5
)

// ErrConflict is returned when an update keeps racing with concurrent writers.
var ErrConflict = errors.New("upload state changed concurrently")

// StateStore keeps the recoverable upload state of each session in Redis.
type StateStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

// NewStateStore returns a store whose entries expire after ttl of inactivity.
func NewStateStore(rdb redis.UniversalClient, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func stateKey(sessionID string) string { return stateKeyPrefix + sessionID }

func idle(sessionID string) *model.Upload {
	return &model.Upload{SessionID: sessionID, Phase: model.PhaseIdle}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func read(ctx context.Context, c getter, sessionID string) (*model.Upload, error) {
	b, err := c.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return idle(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read upload state: %w", err)
	}
	var u model.Upload
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("decode upload state: %w", err)
	}
	return &u, nil
}

// Load returns the session's upload, or an idle one when none is stored.
func (s *StateStore) Load(ctx context.Context, sessionID string) (*model.Upload, error) {
	return read(ctx, s.rdb, sessionID)
}

// Save overwrites the session's upload.
func (s *StateStore) Save(ctx context.Context, u *model.Upload) error {
	u.UpdatedAt = s.now().UTC()
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode upload state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(u.SessionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("write upload state: %w", err)
	}
	return nil
}

// Update applies fn to the current upload and writes the result atomically.
// When fn returns an error nothing is written and that error is returned.
func (s *StateStore) Update(ctx context.Context, sessionID string, fn func(u *model.Upload) error) (*model.Upload, error) {
	key := stateKey(sessionID)
	var out *model.Upload

	txf := func(tx *redis.Tx) error {
		u, err := read(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.SessionID = sessionID
		u.UpdatedAt = s.now().UTC()
		b, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode upload state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.ttl)
			return nil
		})
		out = u
		return err
	}

	for i := 0; i < maxUpdateTries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

// Clear forgets the session's upload.
func (s *StateStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, stateKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear upload state: %w", err)
	}
	return nil
}
