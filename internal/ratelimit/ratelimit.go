// Package ratelimit implements the sliding-window rate limiter from
// spec.md §4.8, backed by the shared fast key-value store so every
// process in the deployment sees the same counters (spec.md §5,
// Shared-resource policy). It keeps the Allow(key)-bool shape of the
// teacher's in-process internal/middleware.RateLimiter, but the window
// itself lives in Redis as a sorted set of per-request timestamps
// rather than an in-process map, because spec.md requires the limit
// to hold across the whole deployment, not per process.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// kvStore is the narrow slice of fastkv.Client this limiter needs,
// kept as an interface so tests can supply an in-memory fake instead
// of a live Redis connection.
type kvStore interface {
	ZRemRangeByScore(ctx context.Context, key, min, max string) error
	ZCount(ctx context.Context, key, min, max string) (int64, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	PExpire(ctx context.Context, key string, ttl time.Duration) error
}

// Limiter enforces "at most max calls per window per key".
type Limiter struct {
	kv         kvStore
	window     time.Duration
	max        int
	name       string
	failClosed bool
}

// New builds a named limiter. failClosed controls behavior when the
// backing store is unavailable: true denies all requests (required
// for security-critical paths like magic-link issuance per spec.md
// §4.8), false allows them through.
func New(kv kvStore, name string, window time.Duration, max int, failClosed bool) *Limiter {
	return &Limiter{kv: kv, window: window, max: max, name: name, failClosed: failClosed}
}

// Allow reports whether one more call under key is permitted right
// now, recording the call if so.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.name, key)
	now := time.Now()
	windowStart := now.Add(-l.window)

	if err := l.kv.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", windowStart.UnixNano())); err != nil {
		return !l.failClosed, err
	}
	count, err := l.kv.ZCount(ctx, redisKey, fmt.Sprintf("%d", windowStart.UnixNano()), "+inf")
	if err != nil {
		return !l.failClosed, err
	}
	if count >= int64(l.max) {
		return false, nil
	}
	member := fmt.Sprintf("%d-%d", now.UnixNano(), count)
	if err := l.kv.ZAdd(ctx, redisKey, float64(now.UnixNano()), member); err != nil {
		return !l.failClosed, err
	}
	_ = l.kv.PExpire(ctx, redisKey, l.window)
	return true, nil
}
