package lock

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
)

const (
	redisKeyPrefix = "foodtrace:lock:"
	retryInterval  = 50 * time.Millisecond
)

// RedisLocker serializes callers across processes sharing one Redis.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

var _ ports.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
	}
}

// Lock retries until the key is obtained or ctx is done. Without a deadline
// on ctx, redislock bounds the wait by the lock ttl.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is required")
	}

	obtained, err := l.client.Obtain(ctx, redisKeyPrefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, errs.Wrapf(err, "obtain lock %q", key)
	}
	if err != nil {
		return nil, errs.Wrapf(err, "redis lock %q", key)
	}

	return func() {
		// The caller's ctx may already be cancelled once the work is done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := obtained.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logging.Warn(
				logging.WithAttrs(ctx, slog.String("component", "infrastructure.lock")),
				"release redis lock failed",
				slog.String("key", key),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}, nil
}
