// Package fastkv wraps go-redis/v9 the same way the teacher's
// internal/infra.GoRedisAdapter wraps it for its event-bus/hub stores:
// a thin adapter over a *redis.Client exposing only the operations the
// rate limiter, RAG answer cache, and webhook idempotency guard need.
package fastkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("fastkv: key not found")

// Client is the shared fast key-value store every rate-limit key,
// cache entry, and webhook idempotency key lives in (spec.md §5,
// Shared-resource policy).
type Client struct {
	rdb *redis.Client
}

func New(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("fastkv: ping %s failed: %w", addr, err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Set writes value under key with the given TTL (0 means no expiry).
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get reads the value at key, returning ErrNotFound if absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

// SetNX atomically sets key to value with ttl only if it does not
// already exist, returning whether the set happened. This is the
// primitive the webhook idempotency guard builds on.
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Incr increments the integer at key by 1, creating it at 1 if absent,
// and returns the new value. Used by the brute-force attempt counter
// in internal/identity.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

// Expire sets a TTL on an existing key (no-op if the key is absent).
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// ZAdd adds one sliding-window timestamp entry to a sorted set whose
// score is the timestamp itself, for the rate limiter.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRemRangeByScore removes sorted-set entries with score in [min,max],
// used to evict rate-limit entries that have aged out of the window.
func (c *Client) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	return c.rdb.ZRemRangeByScore(ctx, key, min, max).Err()
}

// ZCount counts sorted-set entries with score in [min,max].
func (c *Client) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	return c.rdb.ZCount(ctx, key, min, max).Result()
}

func (c *Client) PExpire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.PExpire(ctx, key, ttl).Err()
}
