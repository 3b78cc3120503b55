package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV is an in-memory sorted-set store satisfying kvStore, enough
// to exercise the sliding-window logic without a live Redis instance.
type fakeKV struct {
	sets map[string]map[string]float64
}

func newFakeKV() *fakeKV { return &fakeKV{sets: map[string]map[string]float64{}} }

func (f *fakeKV) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if f.sets[key] == nil {
		f.sets[key] = map[string]float64{}
	}
	f.sets[key][member] = score
	return nil
}

func (f *fakeKV) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	lo := parseBound(min, -1<<62)
	for member, score := range f.sets[key] {
		if score >= lo && score <= parseBound(max, 1<<62) {
			delete(f.sets[key], member)
		}
	}
	return nil
}

func (f *fakeKV) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	lo, hi := parseBound(min, -1<<62), parseBound(max, 1<<62)
	var n int64
	for _, score := range f.sets[key] {
		if score >= lo && score <= hi {
			n++
		}
	}
	return n, nil
}

func (f *fakeKV) PExpire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func parseBound(s string, fallback float64) float64 {
	if s == "-inf" {
		return -1 << 62
	}
	if s == "+inf" {
		return 1 << 62
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func TestAllowWithinLimit(t *testing.T) {
	kv := newFakeKV()
	l := New(kv, "test", time.Minute, 3, false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowPerKeyIsolated(t *testing.T) {
	kv := newFakeKV()
	l := New(kv, "test", time.Minute, 1, false)
	ctx := context.Background()
	ok1, err := l.Allow(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, ok1)
	ok2, err := l.Allow(ctx, "user2")
	require.NoError(t, err)
	assert.True(t, ok2)
}
