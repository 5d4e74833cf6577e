package prefs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb)
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "u-1", "sidebar.collapsed")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "u-1", "sidebar.collapsed", json.RawMessage(`true`)))
	require.NoError(t, s.Set(ctx, "u-1", "saved.filter", json.RawMessage(`{"q":"go"}`)))

	v, err := s.Get(ctx, "u-1", "sidebar.collapsed")
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(v))

	_, err = s.Get(ctx, "u-2", "sidebar.collapsed")
	assert.ErrorIs(t, err, ErrNotFound, "values are per user")

	all, err := s.All(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, "u-1", "sidebar.collapsed"))
	require.NoError(t, s.Delete(ctx, "u-1", "sidebar.collapsed"))
	_, err = s.Get(ctx, "u-1", "sidebar.collapsed")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.ErrorIs(t, s.Set(ctx, "u-1", "bad key", json.RawMessage(`1`)), ErrInvalidKey)
	assert.ErrorIs(t, s.Set(ctx, "u-1", strings.Repeat("k", 65), json.RawMessage(`1`)), ErrInvalidKey)
	assert.ErrorIs(t, s.Set(ctx, "u-1", "ok", json.RawMessage(`{broken`)), ErrInvalidValue)
	assert.ErrorIs(t, s.Set(ctx, "u-1", "ok", nil), ErrInvalidValue)
	big := json.RawMessage(`"` + strings.Repeat("x", MaxValueBytes) + `"`)
	assert.ErrorIs(t, s.Set(ctx, "u-1", "ok", big), ErrInvalidValue)
	_, err := s.Get(ctx, "u-1", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
