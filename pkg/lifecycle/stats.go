package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
)

// Statistics hash fields.
const (
	statTotalCreated = "total_created"
	statActive       = "active"
	statExpired      = "expired"
	statRevoked      = "revoked"
	statCleanupRuns  = "cleanup_runs"
	statLastCleanup  = "last_cleanup"
)

// Statistics is a point-in-time snapshot of a class's counters. All counters
// are monotonically increasing except Active, which is a best-effort gauge.
type Statistics struct {
	Class        Class     `json:"class"`
	TotalCreated int64     `json:"total_created"`
	Active       int64     `json:"active"`
	Expired      int64     `json:"expired"`
	Revoked      int64     `json:"revoked"`
	CleanupRuns  int64     `json:"cleanup_runs"`
	LastCleanup  time.Time `json:"last_cleanup,omitzero"`
}

// StatsAggregator maintains the per-class "{class}_stats" counter hashes.
// Pure bookkeeping for observability: missing counters read as zero and no
// correctness-critical logic depends on these values.
type StatsAggregator struct {
	store store.KeyStore
}

// NewStatsAggregator creates a StatsAggregator on the given store.
func NewStatsAggregator(ks store.KeyStore) *StatsAggregator {
	return &StatsAggregator{store: ks}
}

// Increment adds one to a counter field, creating it at zero.
func (a *StatsAggregator) Increment(ctx context.Context, class Class, field string) error {
	_, err := a.store.HIncrBy(ctx, statsKey(class), field, 1)
	return err
}

// Add adds delta to a counter field, creating it at zero.
func (a *StatsAggregator) Add(ctx context.Context, class Class, field string, delta int64) error {
	_, err := a.store.HIncrBy(ctx, statsKey(class), field, delta)
	return err
}

// SetGauge overwrites a gauge field.
func (a *StatsAggregator) SetGauge(ctx context.Context, class Class, field string, value int64) error {
	return a.store.HSet(ctx, statsKey(class), map[string]string{field: strconv.FormatInt(value, 10)})
}

// MarkCleanup records a completed cleanup invocation for a class: bumps
// cleanup_runs and stamps last_cleanup. Called once per class per invocation
// regardless of how many records were processed.
func (a *StatsAggregator) MarkCleanup(ctx context.Context, class Class, at time.Time) error {
	if _, err := a.store.HIncrBy(ctx, statsKey(class), statCleanupRuns, 1); err != nil {
		return err
	}
	return a.store.HSet(ctx, statsKey(class), map[string]string{
		statLastCleanup: strconv.FormatInt(at.Unix(), 10),
	})
}

// Snapshot reads the class's statistics. Fields never written read as zero.
func (a *StatsAggregator) Snapshot(ctx context.Context, class Class) (Statistics, error) {
	fields, err := a.store.HGetAll(ctx, statsKey(class))
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		Class:        class,
		TotalCreated: counter(fields, statTotalCreated),
		Active:       counter(fields, statActive),
		Expired:      counter(fields, statExpired),
		Revoked:      counter(fields, statRevoked),
		CleanupRuns:  counter(fields, statCleanupRuns),
	}
	// The active gauge is best-effort; racing decrements can briefly drive
	// it negative, which reads better clamped.
	if stats.Active < 0 {
		stats.Active = 0
	}
	if unix := counter(fields, statLastCleanup); unix > 0 {
		stats.LastCleanup = time.Unix(unix, 0).UTC()
	}
	return stats, nil
}

func counter(fields map[string]string, name string) int64 {
	raw, ok := fields[name]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
