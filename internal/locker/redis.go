// Package locker serializes settlement operations per escrow account. Two
// concurrent releases against the same account must never interleave, so the
// orchestrator holds the account lock for the whole read-modify-write.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paypledge/settlement/internal/models"
)

const (
	keyPrefix    = "escrow_lock:"
	acquireTries = 20
	retryDelay   = 50 * time.Millisecond
)

// RedisLocker implements per-account mutual exclusion with SET NX and a TTL
// so a crashed holder cannot wedge the account forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := keyPrefix + key
	for attempt := 0; attempt < acquireTries; attempt++ {
		ok, err := l.client.SetNX(ctx, lockKey, "1", l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: lock %s: %v", models.ErrPersistence, key, err)
		}
		if ok {
			return func() { l.client.Del(context.Background(), lockKey) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("%w: account %s is locked by another settlement", models.ErrConcurrencyConflict, key)
}
