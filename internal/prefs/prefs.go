// Package prefs persists small per-user JSON preference values.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/redis/go-redis/v9"
)

// MaxValueBytes bounds one stored value.
const MaxValueBytes = 16 << 10

var (
	ErrInvalidKey   = errors.New("preference key must be 1-64 characters of letters, digits, '.', '_' or '-'")
	ErrInvalidValue = errors.New("preference value must be valid JSON of at most 16 KiB")
	ErrNotFound     = errors.New("preference not found")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Store keeps one Redis hash per user.
type Store struct {
	rdb redis.Cmdable
}

func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

func hashKey(owner string) string { return "prefs:" + owner }

// ValidKey reports whether key may be stored.
func ValidKey(key string) bool { return keyPattern.MatchString(key) }

// Get returns the stored value.
func (s *Store) Get(ctx context.Context, owner, key string) (json.RawMessage, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	v, err := s.rdb.HGet(ctx, hashKey(owner), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read preference: %w", err)
	}
	return json.RawMessage(v), nil
}

// All returns every stored value of the user.
func (s *Store) All(ctx context.Context, owner string) (map[string]json.RawMessage, error) {
	m, err := s.rdb.HGetAll(ctx, hashKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, owner, key string, value json.RawMessage) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if len(value) == 0 || len(value) > MaxValueBytes || !json.Valid(value) {
		return ErrInvalidValue
	}
	if err := s.rdb.HSet(ctx, hashKey(owner), key, []byte(value)).Err(); err != nil {
		return fmt.Errorf("write preference: %w", err)
	}
	return nil
}

// Delete removes key. Removing a missing key is not an error.
func (s *Store) Delete(ctx context.Context, owner, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if err := s.rdb.HDel(ctx, hashKey(owner), key).Err(); err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return nil
}
