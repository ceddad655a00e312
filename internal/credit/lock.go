package credit

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ReleaseFunc releases a previously obtained lock.
type ReleaseFunc func(context.Context) error

// Locker serialises payments on a credit across instances. Implementations
// return ErrCreditBusy when the key is held elsewhere.
type Locker interface {
	Obtain(ctx context.Context, key string) (ReleaseFunc, error)
}

// RedisLocker is a Locker backed by bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker builds a RedisLocker. Obtain retries a few times with linear
// backoff before giving up.
func NewRedisLocker(rdb redis.Scripter, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 8),
	}
}

// Obtain takes the lock for key.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (ReleaseFunc, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrCreditBusy
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
