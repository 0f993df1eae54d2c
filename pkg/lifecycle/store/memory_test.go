package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_ScalarExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	clock.Advance(time.Minute + time.Second)

	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_ExpiryPerType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"f": "v"}))
	require.NoError(t, s.SAdd(ctx, "s", "m"))
	require.NoError(t, s.ZAdd(ctx, "z", "m", 1))
	for _, key := range []string{"h", "s", "z"} {
		ok, err := s.Expire(ctx, key, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	clock.Advance(2 * time.Minute)

	_, err := s.HGet(ctx, "h", "f")
	assert.ErrorIs(t, err, ErrNotFound)

	members, err := s.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, members)

	n, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_TTLCountdown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", "v", time.Hour))

	clock.Advance(20 * time.Minute)

	d, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Minute, d)
}

func TestMemoryStore_SetResetsExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, s.Set(ctx, "k", "v2", time.Minute))
	clock.Advance(50 * time.Second)

	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", val, "rewrite should restart the TTL window")
}

func TestMemoryStore_ExpiredKeysInvisibleToScan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "session:live", "v", time.Hour))
	require.NoError(t, s.Set(ctx, "session:dead", "v", time.Minute))

	clock.Advance(10 * time.Minute)

	keys, cursor, err := s.Scan(ctx, 0, "session:*", 100)
	require.NoError(t, err)
	assert.Zero(t, cursor)
	assert.Equal(t, []string{"session:live"}, keys)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Set(ctx, "k", "v", 0)
				_, _ = s.Get(ctx, "k")
				_, _ = s.HIncrBy(ctx, "stats", "count", 1)
			}
		}()
	}
	wg.Wait()

	n, err := s.HIncrBy(ctx, "stats", "count", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(20*50), n)
}
