package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// unlockLua deletes the lock only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	lockRetryMin = 10 * time.Millisecond
	lockRetryMax = 250 * time.Millisecond
)

// LockManager implements domain.LockManager using SET NX with a TTL and a
// token-checked unlock script.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c, unlockSc: redis.NewScript(unlockLua)}
}

// TryAcquire makes a single attempt. It returns domain.ErrLockHeld when
// another holder owns key.
func (lm *LockManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.c.Key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// Acquire retries TryAcquire with growing backoff until it succeeds or ctx is
// done.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	wait := lockRetryMin
	for {
		unlock, err := lm.TryAcquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if err != domain.ErrLockHeld {
			return nil, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
		case <-timer.C:
		}
		wait = min(wait*2, lockRetryMax)
	}
}

var _ domain.LockManager = (*LockManager)(nil)
