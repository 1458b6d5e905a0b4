package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes a lock key only if it still holds the caller's token,
// so an expired holder cannot release its successor's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker implements Locker with Redis SET NX and a token-checked Lua
// unlock. Acquisition is retried every RetryInterval until ctx is done.
type RedisLocker struct {
	rdb           *redis.Client
	unlock        *redis.Script
	ttl           time.Duration
	RetryInterval time.Duration
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed
// holder can keep a market locked. The lock is not renewed: an operation
// that outlives ttl silently loses exclusivity, so ttl must exceed the
// slowest mutating operation.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		rdb:           rdb,
		unlock:        redis.NewScript(unlockLua),
		ttl:           ttl,
		RetryInterval: 20 * time.Millisecond,
	}
}

func lockKey(key string) string {
	return "lock:market:" + key
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ticker := time.NewTicker(r.RetryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, lk, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockHeld, key, ctx.Err())
		case <-ticker.C:
		}
	}

	return releaseOnce(func() {
		// Background context: release must succeed even if the caller's
		// context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.unlock.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
	}), nil
}

var _ Locker = (*RedisLocker)(nil)
