package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix  = "workflow:lock:"
	defaultLockTTL = time.Minute
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// locker serializes mutating operations of one session.
type locker struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// acquire takes the session lock or fails with ErrBusy. The returned release is safe to defer.
func (l *locker) acquire(ctx context.Context, sessionID string) (func(), error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}
	token := hex.EncodeToString(b)
	key := lockKeyPrefix + sessionID

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire upload lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("upload_lock_release_failed", "session_id", sessionID, "error", err.Error())
		}
	}, nil
}
