package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Recipe-Web-App/session-database-sub000/pkg/errors"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/logger"
)

// Manager is the caller-facing surface of the lifecycle manager. It is safe
// for concurrent use by multiple independent callers; authoritative state
// lives in the backing store and every operation is individually idempotent.
type Manager struct {
	store store.KeyStore
	index *IndexManager
	sched *ExpiryScheduler
	stats *StatsAggregator
	cfg   *Config

	// now is injectable so tests can control the clock.
	now func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock sets a custom time source. Intended for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager on the given store. The configuration must
// already be validated.
func NewManager(ks store.KeyStore, cfg *Config, opts ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{
		store: ks,
		index: NewIndexManager(ks),
		sched: NewExpiryScheduler(ks),
		stats: NewStatsAggregator(ks),
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Index exposes the index manager, e.g. for callers that only need member
// listings.
func (m *Manager) Index() *IndexManager {
	return m.index
}

// Scheduler exposes the expiry scheduler.
func (m *Manager) Scheduler() *ExpiryScheduler {
	return m.sched
}

// Stats exposes the statistics aggregator.
func (m *Manager) Stats() *StatsAggregator {
	return m.stats
}

// Create stores a new record of the given class. A zero ttl uses the class's
// configured default. ownerID may be empty for ownerless records (cache
// entries); otherwise it is validated and the record is added to the owner's
// index.
//
// The writes are ordered record -> index -> expiry queue with compensating
// deletes on failure, so a partial failure only ever leaves references
// pointing at nothing (safe to prune lazily), never a live record that
// cleanup cannot find.
func (m *Manager) Create(
	ctx context.Context, class Class, ownerID string, fields map[string]string, ttl time.Duration,
) (*Record, error) {
	if !class.Valid() {
		return nil, apperrors.NewInvalidArgumentError("unknown record class "+string(class), nil)
	}
	if ownerID != "" {
		if err := validateOwnerID(ownerID); err != nil {
			return nil, err
		}
	}
	for _, warning := range fieldWarnings(fields) {
		logger.Warnw(warning, "class", class, "owner_id", ownerID)
	}
	if ttl <= 0 {
		ttl = m.cfg.TTLFor(class)
	}

	if ownerID != "" && m.cfg.MaxRecordsPerOwner > 0 {
		if err := m.evictOverCap(ctx, class, ownerID); err != nil {
			return nil, err
		}
	}

	now := m.now().UTC()
	record := &Record{
		ID:           uuid.NewString(),
		Class:        class,
		OwnerID:      ownerID,
		Fields:       fields,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
	}

	value, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}

	key := recordKey(class, record.ID)
	if err := m.store.Set(ctx, key, value, ttl); err != nil {
		return nil, translateStoreErr(err)
	}

	if ownerID != "" {
		if err := m.index.AddMember(ctx, class, ownerID, record.ID, ttl); err != nil {
			// Compensating delete: don't leave a live record the index
			// doesn't know about.
			_, _ = m.store.Del(ctx, key)
			return nil, translateStoreErr(err)
		}
	}

	if err := m.sched.Schedule(ctx, class, record.ID, record.ExpiresAt); err != nil {
		_, _ = m.store.Del(ctx, key)
		if ownerID != "" {
			_ = m.index.RemoveMember(ctx, class, ownerID, record.ID)
		}
		return nil, translateStoreErr(err)
	}

	// Stats are observability only; failures here must not fail the create.
	m.bump(ctx, class, statTotalCreated, 1)
	m.bump(ctx, class, statActive, 1)

	return record, nil
}

// Get retrieves a record by ID. A miss returns a not-found error, which is a
// valid empty result for callers, not a failure. A corrupt stored value is
// pruned and reported as not found.
func (m *Manager) Get(ctx context.Context, class Class, id string) (*Record, error) {
	if err := validateRecordID(id); err != nil {
		return nil, err
	}

	key := recordKey(class, id)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	record, err := decodeRecord(raw)
	if err != nil {
		// Corrupt value: treat the record as absent and prune eagerly so
		// the next caller doesn't trip over it again.
		logger.Warnw("pruning undecodable record", "class", class, "id", id, "error", err)
		_, _ = m.store.Del(ctx, key)
		_ = m.sched.Unschedule(ctx, class, id)
		return nil, apperrors.NewNotFoundError("record not found", err)
	}

	if record.IsExpired(m.now()) {
		// The store's TTL has lagged; the cleanup engine will collect it.
		return nil, apperrors.NewNotFoundError("record expired", nil)
	}

	return record, nil
}

// Touch refreshes a record's last-activity timestamp, preserving the
// remaining TTL.
func (m *Manager) Touch(ctx context.Context, class Class, id string) error {
	if err := validateRecordID(id); err != nil {
		return err
	}

	key := recordKey(class, id)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		return translateStoreErr(err)
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return err
	}

	remaining, err := m.store.TTL(ctx, key)
	if err != nil {
		return translateStoreErr(err)
	}

	record.LastActivity = m.now().UTC()
	value, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return translateStoreErr(m.store.Set(ctx, key, value, remaining))
}

// Revoke deletes a record and its index and expiry queue references. It
// reports whether a live record was actually deleted; revoking an absent
// record is an idempotent no-op that still clears any leftover queue entry.
func (m *Manager) Revoke(ctx context.Context, class Class, id string) (bool, error) {
	if err := validateRecordID(id); err != nil {
		return false, err
	}

	key := recordKey(class, id)

	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already gone (expired or a concurrent revoke); make sure the
			// queue entry doesn't linger.
			if err := m.sched.Unschedule(ctx, class, id); err != nil {
				return false, translateStoreErr(err)
			}
			return false, nil
		}
		return false, translateStoreErr(err)
	}

	ownerID := ""
	if record, decodeErr := decodeRecord(raw); decodeErr == nil {
		ownerID = record.OwnerID
	} else {
		logger.Warnw("revoking undecodable record", "class", class, "id", id, "error", decodeErr)
	}

	deleted, err := m.store.Del(ctx, key)
	if err != nil {
		return false, translateStoreErr(err)
	}

	if ownerID != "" {
		if err := m.index.RemoveMember(ctx, class, ownerID, id); err != nil {
			return false, translateStoreErr(err)
		}
	}
	if err := m.sched.Unschedule(ctx, class, id); err != nil {
		return false, translateStoreErr(err)
	}

	if deleted == 0 {
		// Lost the race with cleanup or another revoke; nothing counted.
		return false, nil
	}

	m.bump(ctx, class, statRevoked, 1)
	m.bump(ctx, class, statActive, -1)
	return true, nil
}

// RevokeOwner deletes all of an owner's live records of a class and drops
// the index set. It returns how many records were deleted.
func (m *Manager) RevokeOwner(ctx context.Context, class Class, ownerID string) (int, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return 0, err
	}

	members, err := m.store.SMembers(ctx, indexKey(class, ownerID))
	if err != nil {
		return 0, translateStoreErr(err)
	}

	revoked := 0
	for _, id := range members {
		ok, err := m.Revoke(ctx, class, id)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}

	if _, err := m.store.Del(ctx, indexKey(class, ownerID)); err != nil {
		return revoked, translateStoreErr(err)
	}
	return revoked, nil
}

// ListOwnerRecords returns all of an owner's live records of a class,
// pruning dangling index entries along the way.
func (m *Manager) ListOwnerRecords(ctx context.Context, class Class, ownerID string) ([]*Record, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return nil, err
	}

	ids, err := m.index.ListActiveMembers(ctx, class, ownerID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		record, err := m.Get(ctx, class, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// Deleted between the listing and the read; skip.
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Rotate atomically replaces a record with a fresh one for the same owner:
// the old record is revoked and a new record (new ID, new TTL window) is
// created. Used for refresh-token rotation. When fields is nil the old
// record's fields carry over.
func (m *Manager) Rotate(
	ctx context.Context, class Class, id string, fields map[string]string, ttl time.Duration,
) (*Record, error) {
	old, err := m.Get(ctx, class, id)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = old.Fields
	}

	if _, err := m.Revoke(ctx, class, id); err != nil {
		return nil, err
	}
	return m.Create(ctx, class, old.OwnerID, fields, ttl)
}

// evictOverCap enforces the per-owner record cap by revoking the owner's
// oldest live records until one slot is free.
func (m *Manager) evictOverCap(ctx context.Context, class Class, ownerID string) error {
	ids, err := m.index.ListActiveMembers(ctx, class, ownerID)
	if err != nil {
		return translateStoreErr(err)
	}
	if len(ids) < m.cfg.MaxRecordsPerOwner {
		return nil
	}

	// Over (or at) the cap: find and revoke the oldest records.
	type aged struct {
		id        string
		createdAt time.Time
	}
	records := make([]aged, 0, len(ids))
	for _, id := range ids {
		record, err := m.Get(ctx, class, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return err
		}
		records = append(records, aged{id: record.ID, createdAt: record.CreatedAt})
	}

	for len(records) >= m.cfg.MaxRecordsPerOwner {
		oldest := 0
		for i := 1; i < len(records); i++ {
			if records[i].createdAt.Before(records[oldest].createdAt) {
				oldest = i
			}
		}
		logger.Infow("evicting oldest record over per-owner cap",
			"class", class, "owner_id", ownerID, "id", records[oldest].id)
		if _, err := m.Revoke(ctx, class, records[oldest].id); err != nil {
			return err
		}
		records = append(records[:oldest], records[oldest+1:]...)
	}
	return nil
}

// bump adjusts a statistics counter, logging instead of failing: statistics
// are observability only.
func (m *Manager) bump(ctx context.Context, class Class, field string, delta int64) {
	if err := m.stats.Add(ctx, class, field, delta); err != nil {
		logger.Debugw("failed to update statistics", "class", class, "field", field, "error", err)
	}
}

// translateStoreErr maps store sentinels onto the application error types.
func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError("record not found", err)
	case errors.Is(err, store.ErrUnavailable):
		return apperrors.NewStoreUnavailableError("backing store unavailable", err)
	default:
		return err
	}
}
