package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "lock:expiration_sweeper:tick"

// RedisTickLock lets exactly one replica run a sweep tick. The lock is
// never released; it expires after ttl, which should be shorter than the
// sweep interval.
type RedisTickLock struct {
	client redis.Cmdable
	key    string
	owner  string
	ttl    time.Duration
}

func NewRedisTickLock(client redis.Cmdable, ttl time.Duration) *RedisTickLock {
	return &RedisTickLock{
		client: client,
		key:    sweepLockKey,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisTickLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	return ok, nil
}
