package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/logger"
)

// scanPageSize is the SCAN page size used by the reconciliation pass.
const scanPageSize = 100

// Cleaner drives expiry for each record class in bounded batches. It is
// invoked on an external schedule; every sub-step is idempotent, so an
// invocation may be cancelled at any point and safely re-driven by the next
// one. Cleanup is safe under concurrent revocation: a record deleted by a
// racing revoke is treated as already handled, not as an error.
type Cleaner struct {
	store store.KeyStore
	index *IndexManager
	sched *ExpiryScheduler
	stats *StatsAggregator
	cfg   *Config

	now func() time.Time
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanerClock sets a custom time source. Intended for tests.
func WithCleanerClock(now func() time.Time) CleanerOption {
	return func(c *Cleaner) {
		c.now = now
	}
}

// NewCleaner creates a Cleaner on the given store.
func NewCleaner(ks store.KeyStore, cfg *Config, opts ...CleanerOption) *Cleaner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Cleaner{
		store: ks,
		index: NewIndexManager(ks),
		sched: NewExpiryScheduler(ks),
		stats: NewStatsAggregator(ks),
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CleanupOptions parameterizes a single cleanup invocation.
type CleanupOptions struct {
	// BatchSize caps how many due records are processed per class.
	// Zero uses the per-class configured default.
	BatchSize int

	// Cutoff is the "now" the invocation cleans up to. Zero uses the
	// current time.
	Cutoff time.Time
}

// ClassResult reports one class's share of a cleanup invocation.
type ClassResult struct {
	// Cleaned counts records that were live and got expired.
	Cleaned int `json:"expired_cleaned"`

	// Pruned counts queue entries whose record was already gone
	// (revoked concurrently or undecodable) and were dropped as
	// idempotent no-ops.
	Pruned int `json:"pruned"`

	// DurationMS is how long the class's batch took.
	DurationMS int64 `json:"duration_ms"`

	// Error is set when the class's batch was aborted by a store error.
	Error string `json:"error,omitempty"`
}

// Result is the structured outcome of one cleanup invocation, keyed by
// record class for logging and alerting.
type Result struct {
	Classes map[Class]ClassResult `json:"classes"`
}

// Failed returns the classes whose batch was aborted by an error.
func (r Result) Failed() []Class {
	var failed []Class
	for _, class := range Classes {
		if cr, ok := r.Classes[class]; ok && cr.Error != "" {
			failed = append(failed, class)
		}
	}
	return failed
}

// TotalCleaned sums cleaned records across classes.
func (r Result) TotalCleaned() int {
	total := 0
	for _, cr := range r.Classes {
		total += cr.Cleaned
	}
	return total
}

// Run executes one cleanup pass across all record classes. A store error
// aborts the failing class's batch only; remaining classes are still
// attempted (partial-failure isolation). Context cancellation stops the
// invocation; partial progress is safe to abandon.
func (c *Cleaner) Run(ctx context.Context, opts CleanupOptions) Result {
	cutoff := opts.Cutoff
	if cutoff.IsZero() {
		cutoff = c.now().UTC()
	}

	result := Result{Classes: make(map[Class]ClassResult)}
	for _, class := range Classes {
		if ctx.Err() != nil {
			break
		}
		result.Classes[class] = c.runClass(ctx, class, cutoff, opts.BatchSize)
	}
	return result
}

// runClass drains one bounded batch of due records for a class.
func (c *Cleaner) runClass(ctx context.Context, class Class, cutoff time.Time, batchSize int) ClassResult {
	start := c.now()
	if batchSize <= 0 {
		batchSize = c.cfg.BatchSizeFor(class)
	}

	var res ClassResult
	due, err := c.sched.DueBefore(ctx, class, cutoff, batchSize)
	if err != nil {
		res.Error = err.Error()
		logger.Errorw("cleanup batch failed to list due records", "class", class, "error", err)
	}

	for _, id := range due {
		if ctx.Err() != nil {
			res.Error = ctx.Err().Error()
			break
		}
		cleaned, err := c.cleanupRecord(ctx, class, id)
		if err != nil {
			// Abort this class's batch; the next invocation retries.
			res.Error = err.Error()
			logger.Errorw("cleanup batch aborted", "class", class, "id", id, "error", err)
			break
		}
		if cleaned {
			res.Cleaned++
		} else {
			res.Pruned++
		}
	}

	// Mark the invocation unconditionally, failed batches included; the
	// stamp records that a run was attempted, not that it succeeded. It is
	// best effort and must not convert a clean pass into a failed one.
	if err := c.stats.MarkCleanup(ctx, class, cutoff); err != nil {
		logger.Warnw("failed to mark cleanup run", "class", class, "error", err)
	}

	res.DurationMS = c.now().Sub(start).Milliseconds()
	if res.Cleaned > 0 || res.Pruned > 0 {
		logger.Infow("cleanup batch finished",
			"class", class, "cleaned", res.Cleaned, "pruned", res.Pruned, "duration_ms", res.DurationMS)
	}
	return res
}

// cleanupRecord removes one due record and its references. It reports
// whether a live record was deleted (as opposed to pruning a reference that
// pointed at nothing).
func (c *Cleaner) cleanupRecord(ctx context.Context, class Class, id string) (bool, error) {
	key := recordKey(class, id)

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already gone: the store's own TTL fired or an explicit revoke
			// raced us. Dropping the queue entry is all that's left.
			return false, c.sched.Unschedule(ctx, class, id)
		}
		return false, err
	}

	ownerID := ""
	record, decodeErr := decodeRecord(raw)
	if decodeErr != nil {
		logger.Warnw("cleaning up undecodable record", "class", class, "id", id, "error", decodeErr)
	} else {
		ownerID = record.OwnerID
	}

	deleted, err := c.store.Del(ctx, key)
	if err != nil {
		return false, err
	}
	if ownerID != "" {
		if err := c.index.RemoveMember(ctx, class, ownerID, id); err != nil {
			return false, err
		}
	}
	if err := c.sched.Unschedule(ctx, class, id); err != nil {
		return false, err
	}

	if deleted == 0 || decodeErr != nil {
		return false, nil
	}

	if err := c.stats.Add(ctx, class, statExpired, 1); err != nil {
		logger.Debugw("failed to update statistics", "class", class, "error", err)
	}
	if err := c.stats.Add(ctx, class, statActive, -1); err != nil {
		logger.Debugw("failed to update statistics", "class", class, "error", err)
	}
	return true, nil
}

// Reconcile re-schedules TTL-bound records of a class that are missing from
// the expiry queue — the leftover of a crash between the record write and
// the schedule write. Each one is logged as an anomaly. At most limit
// records are re-scheduled per call; zero means no limit. Returns how many
// records were re-scheduled.
func (c *Cleaner) Reconcile(ctx context.Context, class Class, limit int) (int, error) {
	rescheduled := 0
	var cursor uint64
	for {
		keys, next, err := c.store.Scan(ctx, cursor, recordKeyPattern(class), scanPageSize)
		if err != nil {
			return rescheduled, err
		}

		for _, key := range keys {
			if ctx.Err() != nil {
				return rescheduled, ctx.Err()
			}
			id := recordIDFromKey(class, key)

			scheduled, err := c.sched.Scheduled(ctx, class, id)
			if err != nil {
				return rescheduled, err
			}
			if scheduled {
				continue
			}

			raw, err := c.store.Get(ctx, key)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return rescheduled, err
			}
			record, err := decodeRecord(raw)
			if err != nil {
				logger.Warnw("pruning undecodable record during reconciliation",
					"class", class, "id", id, "error", err)
				_, _ = c.store.Del(ctx, key)
				continue
			}
			if !record.HasTTL() {
				continue
			}

			logger.Warnw("re-scheduling record missing from expiry queue",
				"class", class, "id", id, "expires_at", record.ExpiresAt)
			if err := c.sched.Schedule(ctx, class, id, record.ExpiresAt); err != nil {
				return rescheduled, err
			}
			rescheduled++
			if limit > 0 && rescheduled >= limit {
				return rescheduled, nil
			}
		}

		if next == 0 {
			break
		}
		cursor = next
	}
	return rescheduled, nil
}
