package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Recipe-Web-App/session-database-sub000/pkg/errors"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
)

func newTestCleaner(t *testing.T, cfg *Config) (*Cleaner, *Manager, *store.MemoryStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	ks := store.NewMemoryStore(store.WithClock(clock.Now))
	m := NewManager(ks, cfg, WithManagerClock(clock.Now))
	c := NewCleaner(ks, cfg, WithCleanerClock(clock.Now))
	return c, m, ks, clock
}

func TestCleaner_CleansDueRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, m, ks, clock := newTestCleaner(t, nil)

	record, err := m.Create(ctx, ClassSession, "user-1", nil, 0)
	require.NoError(t, err)
	live, err := m.Create(ctx, ClassSession, "user-1", nil, 2*DefaultSessionTTL)
	require.NoError(t, err)

	// The record is due but still physically present (simulated TTL lag:
	// the cutoff is in the future, the store clock has not moved).
	result := c.Run(ctx, CleanupOptions{Cutoff: clock.Now().Add(DefaultSessionTTL)})

	cr := result.Classes[ClassSession]
	assert.Empty(t, cr.Error)
	assert.Equal(t, 1, cr.Cleaned)
	assert.Zero(t, cr.Pruned)

	// Record, index entry, and queue entry are gone; the live one remains.
	exists, err := ks.Exists(ctx, recordKey(ClassSession, record.ID))
	require.NoError(t, err)
	assert.False(t, exists)

	members, err := ks.SMembers(ctx, indexKey(ClassSession, "user-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{live.ID}, members)

	n, err := c.sched.Count(ctx, ClassSession)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	snapshot, err := c.stats.Snapshot(ctx, ClassSession)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.Expired)
	assert.Equal(t, int64(1), snapshot.Active)
	assert.Equal(t, int64(1), snapshot.CleanupRuns)
}

func TestCleaner_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, m, _, clock := newTestCleaner(t, nil)

	_, err := m.Create(ctx, ClassSession, "user-1", nil, 0)
	require.NoError(t, err)

	cutoff := clock.Now().Add(2 * DefaultSessionTTL)
	first := c.Run(ctx, CleanupOptions{Cutoff: cutoff})
	second := c.Run(ctx, CleanupOptions{Cutoff: cutoff})

	assert.Equal(t, 1, first.Classes[ClassSession].Cleaned)
	assert.Zero(t, second.Classes[ClassSession].Cleaned, "a second pass has nothing left to do")
	assert.Zero(t, second.Classes[ClassSession].Pruned)

	// Both passes are stamped
	snapshot, err := c.stats.Snapshot(ctx, ClassSession)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snapshot.CleanupRuns)
}

func TestCleaner_PrunesAlreadyGoneRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, m, ks, clock := newTestCleaner(t, nil)

	record, err := m.Create(ctx, ClassSession, "user-1", nil, 0)
	require.NoError(t, err)

	// Concurrent revoke or store-side TTL eviction: the record vanishes but
	// its queue entry survives.
	_, err = ks.Del(ctx, recordKey(ClassSession, record.ID))
	require.NoError(t, err)

	result := c.Run(ctx, CleanupOptions{Cutoff: clock.Now().Add(2 * DefaultSessionTTL)})

	cr := result.Classes[ClassSession]
	assert.Empty(t, cr.Error)
	assert.Zero(t, cr.Cleaned)
	assert.Equal(t, 1, cr.Pruned)

	n, err := c.sched.Count(ctx, ClassSession)
	require.NoError(t, err)
	assert.Zero(t, n, "the dangling queue entry was dropped")

	snapshot, err := c.stats.Snapshot(ctx, ClassSession)
	require.NoError(t, err)
	assert.Zero(t, snapshot.Expired, "pruned references do not count as expirations")
}

func TestCleaner_BatchBounding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, m, _, clock := newTestCleaner(t, nil)

	// Five records with staggered expiries
	var ids []string
	for i := 0; i < 5; i++ {
		record, err := m.Create(ctx, ClassSession, "user-1", nil, time.Duration(i+1)*time.Minute)
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	cutoff := clock.Now().Add(time.Hour)
	result := c.Run(ctx, CleanupOptions{BatchSize: 2, Cutoff: cutoff})
	assert.Equal(t, 2, result.Classes[ClassSession].Cleaned)

	// The two earliest-expiring records went first
	for _, id := range ids[:2] {
		scheduled, err := c.sched.Scheduled(ctx, ClassSession, id)
		require.NoError(t, err)
		assert.False(t, scheduled)
	}
	n, err := c.sched.Count(ctx, ClassSession)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "records beyond the batch stay queued for the next pass")

	// The next pass drains the rest
	result = c.Run(ctx, CleanupOptions{BatchSize: 10, Cutoff: cutoff})
	assert.Equal(t, 3, result.Classes[ClassSession].Cleaned)
}

func TestCleaner_PrunesCorruptRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, ks, clock := newTestCleaner(t, nil)

	id := uuid.NewString()
	require.NoError(t, ks.Set(ctx, recordKey(ClassSession, id), "corrupt{{{", 0))
	require.NoError(t, c.sched.Schedule(ctx, ClassSession, id, clock.Now()))

	result := c.Run(ctx, CleanupOptions{Cutoff: clock.Now().Add(time.Minute)})

	cr := result.Classes[ClassSession]
	assert.Empty(t, cr.Error)
	assert.Equal(t, 1, cr.Pruned, "an undecodable record is pruned, not counted as expired")

	exists, err := ks.Exists(ctx, recordKey(ClassSession, id))
	require.NoError(t, err)
	assert.False(t, exists)

	scheduled, err := c.sched.Scheduled(ctx, ClassSession, id)
	require.NoError(t, err)
	assert.False(t, scheduled)
}

func TestCleaner_MarksRunEvenWhenIdle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _, clock := newTestCleaner(t, nil)

	result := c.Run(ctx, CleanupOptions{Cutoff: clock.Now()})

	for _, class := range Classes {
		cr, ok := result.Classes[class]
		require.True(t, ok)
		assert.Empty(t, cr.Error)
		assert.Zero(t, cr.Cleaned)

		snapshot, err := c.stats.Snapshot(ctx, class)
		require.NoError(t, err)
		assert.Equal(t, int64(1), snapshot.CleanupRuns, "idle passes still stamp the run")
		assert.Equal(t, clock.Now(), snapshot.LastCleanup)
	}
	assert.Empty(t, result.Failed())
}

// failingStore wraps a KeyStore and fails queue listings for one key,
// simulating a partially unavailable backend.
type failingStore struct {
	store.KeyStore
	failKey string
}

func (f *failingStore) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	if key == f.failKey {
		return nil, store.ErrUnavailable
	}
	return f.KeyStore.ZRangeByScore(ctx, key, min, max, limit)
}

func TestCleaner_ClassFailureIsIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newTestClock()
	inner := store.NewMemoryStore(store.WithClock(clock.Now))
	ks := &failingStore{KeyStore: inner, failKey: queueKey(ClassSession)}
	m := NewManager(inner, nil, WithManagerClock(clock.Now))
	c := NewCleaner(ks, nil, WithCleanerClock(clock.Now))

	_, err := m.Create(ctx, ClassSession, "user-1", nil, 0)
	require.NoError(t, err)
	_, err = m.Create(ctx, ClassAccessToken, "user-1", nil, 0)
	require.NoError(t, err)

	result := c.Run(ctx, CleanupOptions{Cutoff: clock.Now().Add(30 * 24 * time.Hour)})

	assert.NotEmpty(t, result.Classes[ClassSession].Error)
	assert.Equal(t, []Class{ClassSession}, result.Failed())

	// The failing class did not stop the others
	assert.Empty(t, result.Classes[ClassAccessToken].Error)
	assert.Equal(t, 1, result.Classes[ClassAccessToken].Cleaned)

	// A failed listing still counts as an attempted run.
	snapshot, err := c.stats.Snapshot(ctx, ClassSession)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.CleanupRuns)
	assert.False(t, snapshot.LastCleanup.IsZero())
}

func TestCleaner_ConcurrentRevokeDuringCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, m, ks, clock := newTestCleaner(t, nil)

	const n = 24
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		record, err := m.Create(ctx, ClassSession, "user-1", nil, 0)
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	// All records are due but still physically present, so the cleanup pass
	// and the revokes fight over live records.
	cutoff := clock.Now().Add(2 * DefaultSessionTTL)

	var wg sync.WaitGroup
	var revoked atomic.Int64
	results := make(chan Result, 1)
	revokeErrs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- c.Run(ctx, CleanupOptions{BatchSize: n, Cutoff: cutoff})
	}()
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			ok, err := m.Revoke(ctx, ClassSession, id)
			revokeErrs[i] = err
			if ok {
				revoked.Add(1)
			}
		}(i, id)
	}
	wg.Wait()
	result := <-results

	for _, err := range revokeErrs {
		require.NoError(t, err)
	}
	assert.Empty(t, result.Failed())

	// Each record was deleted exactly once, by either the revoke or the
	// cleanup pass, never both.
	assert.Equal(t, n, result.Classes[ClassSession].Cleaned+int(revoked.Load()))

	for _, id := range ids {
		_, err := ks.Get(ctx, recordKey(ClassSession, id))
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
	count, err := c.sched.Count(ctx, ClassSession)
	require.NoError(t, err)
	assert.Zero(t, count)
	records, err := m.ListOwnerRecords(ctx, ClassSession, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	snapshot, err := c.stats.Snapshot(ctx, ClassSession)
	require.NoError(t, err)
	assert.Equal(t, int64(n), snapshot.Expired+snapshot.Revoked)
	assert.Zero(t, snapshot.Active)
}

func TestCleaner_Reconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, m, ks, clock := newTestCleaner(t, nil)

	// A scheduled record: reconcile must leave it alone.
	scheduled, err := m.Create(ctx, ClassSession, "user-1", nil, 0)
	require.NoError(t, err)

	// An orphan: record written, schedule write lost (crash in between).
	orphan := &Record{
		ID:        uuid.NewString(),
		Class:     ClassSession,
		OwnerID:   "user-1",
		CreatedAt: clock.Now(),
		ExpiresAt: clock.Now().Add(time.Hour),
	}
	raw, err := encodeRecord(orphan)
	require.NoError(t, err)
	require.NoError(t, ks.Set(ctx, recordKey(ClassSession, orphan.ID), raw, time.Hour))

	n, err := c.Reconcile(ctx, ClassSession, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	isScheduled, err := c.sched.Scheduled(ctx, ClassSession, orphan.ID)
	require.NoError(t, err)
	assert.True(t, isScheduled)

	score, err := ks.ZScore(ctx, queueKey(ClassSession), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(orphan.ExpiresAt.Unix()), score, "the queue entry carries the record's own expiry")

	isScheduled, err = c.sched.Scheduled(ctx, ClassSession, scheduled.ID)
	require.NoError(t, err)
	assert.True(t, isScheduled)

	// A second reconcile finds nothing to do
	n, err = c.Reconcile(ctx, ClassSession, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleaner_ReconcileSkipsUnboundedRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, ks, clock := newTestCleaner(t, nil)

	unbounded := &Record{
		ID:        uuid.NewString(),
		Class:     ClassCacheEntry,
		CreatedAt: clock.Now(),
	}
	raw, err := encodeRecord(unbounded)
	require.NoError(t, err)
	require.NoError(t, ks.Set(ctx, recordKey(ClassCacheEntry, unbounded.ID), raw, 0))

	n, err := c.Reconcile(ctx, ClassCacheEntry, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "records without a TTL are not queue-tracked")
}

func TestCleaner_ReconcileDropsCorruptRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, ks, _ := newTestCleaner(t, nil)

	id := uuid.NewString()
	require.NoError(t, ks.Set(ctx, recordKey(ClassSession, id), "corrupt{{{", 0))

	n, err := c.Reconcile(ctx, ClassSession, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	exists, err := ks.Exists(ctx, recordKey(ClassSession, id))
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestCleaner_SessionExpiryEndToEnd drives the full lifecycle against a real
// Redis protocol implementation: create at t=0, readable until the TTL
// elapses, gone at t=3601, with cleanup converging index and queue.
func TestCleaner_SessionExpiryEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ks := store.NewRedisStoreWithClient(client, "")
	t.Cleanup(func() { _ = ks.Close() })

	m := NewManager(ks, nil)
	c := NewCleaner(ks, nil)

	// t=0: create a session with the default 3600s TTL
	record, err := m.Create(ctx, ClassSession, "user-1", map[string]string{"ip": "192.0.2.1"}, 0)
	require.NoError(t, err)

	got, err := m.Get(ctx, ClassSession, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	// t=3601: the store's own TTL has fired
	mr.FastForward(3601 * time.Second)

	_, err = m.Get(ctx, ClassSession, record.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	// Cleanup prunes the leftover queue entry and heals the index
	result := c.Run(ctx, CleanupOptions{Cutoff: record.ExpiresAt.Add(time.Second)})
	cr := result.Classes[ClassSession]
	assert.Empty(t, cr.Error)
	assert.Equal(t, 1, cr.Cleaned+cr.Pruned)

	n, err := c.sched.Count(ctx, ClassSession)
	require.NoError(t, err)
	assert.Zero(t, n)

	active, err := c.index.ListActiveMembers(ctx, ClassSession, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}
