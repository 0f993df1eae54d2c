package lifecycle

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
)

// ExpiryScheduler maintains the per-class expiry queue: a sorted set of
// (record ID, expiry unix timestamp) pairs used to find records due for
// cleanup without scanning the whole keyspace.
//
// The scheduler never removes due entries itself; removal is the cleanup
// engine's responsibility after the record is actually gone, so a failed
// deletion never loses track of a record.
type ExpiryScheduler struct {
	store store.KeyStore
}

// NewExpiryScheduler creates an ExpiryScheduler on the given store.
func NewExpiryScheduler(ks store.KeyStore) *ExpiryScheduler {
	return &ExpiryScheduler{store: ks}
}

// Schedule upserts a record into the class's expiry queue.
func (s *ExpiryScheduler) Schedule(ctx context.Context, class Class, recordID string, expiresAt time.Time) error {
	return s.store.ZAdd(ctx, queueKey(class), recordID, float64(expiresAt.Unix()))
}

// Unschedule removes a record from the class's expiry queue. Idempotent:
// removing an absent entry is a no-op.
func (s *ExpiryScheduler) Unschedule(ctx context.Context, class Class, recordID string) error {
	return s.store.ZRem(ctx, queueKey(class), recordID)
}

// DueBefore returns up to limit record IDs with expiry <= cutoff, ordered by
// expiry ascending. The earliest-expiring-first order bounds worst-case
// staleness when batches are capped.
func (s *ExpiryScheduler) DueBefore(ctx context.Context, class Class, cutoff time.Time, limit int) ([]string, error) {
	return s.store.ZRangeByScore(ctx, queueKey(class), math.Inf(-1), float64(cutoff.Unix()), int64(limit))
}

// Scheduled reports whether a record has an expiry queue entry.
func (s *ExpiryScheduler) Scheduled(ctx context.Context, class Class, recordID string) (bool, error) {
	_, err := s.store.ZScore(ctx, queueKey(class), recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Count returns the total number of scheduled records for a class.
func (s *ExpiryScheduler) Count(ctx context.Context, class Class) (int64, error) {
	return s.store.ZCard(ctx, queueKey(class))
}

// CountDueAfter counts scheduled records expiring strictly after t, i.e.
// the records still considered live by the queue.
func (s *ExpiryScheduler) CountDueAfter(ctx context.Context, class Class, t time.Time) (int64, error) {
	return s.store.ZCount(ctx, queueKey(class), float64(t.Unix()+1), math.Inf(1))
}
