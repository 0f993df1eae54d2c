package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
)

// IndexManager maintains the secondary mapping from an owner to the set of
// record IDs it owns, kept lazily consistent with record existence: stale
// members are tolerated and pruned on the next ListActiveMembers call.
//
// It performs no retries; store errors pass through to the caller.
type IndexManager struct {
	store store.KeyStore
}

// NewIndexManager creates an IndexManager on the given store.
func NewIndexManager(ks store.KeyStore) *IndexManager {
	return &IndexManager{store: ks}
}

// AddMember adds a record ID to the owner's set. Idempotent: adding an
// existing member is a no-op. When ttl is positive the index key's expiry is
// refreshed so an abandoned index cannot outlive its longest-lived member
// by more than one TTL.
func (m *IndexManager) AddMember(ctx context.Context, class Class, ownerID, recordID string, ttl time.Duration) error {
	key := indexKey(class, ownerID)
	if err := m.store.SAdd(ctx, key, recordID); err != nil {
		return err
	}
	if ttl > 0 {
		// Refresh only if the new member lives longer than the set.
		remaining, err := m.store.TTL(ctx, key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if remaining < ttl {
			if _, err := m.store.Expire(ctx, key, ttl); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveMember removes a record ID from the owner's set. Idempotent:
// removing an absent member is a no-op.
func (m *IndexManager) RemoveMember(ctx context.Context, class Class, ownerID, recordID string) error {
	return m.store.SRem(ctx, indexKey(class, ownerID), recordID)
}

// ListActiveMembers returns the owner's record IDs filtered to those whose
// record still exists. Dangling IDs found along the way are pruned from the
// set (lazy reconciliation). The call is freely re-invocable; every call
// re-validates freshness.
func (m *IndexManager) ListActiveMembers(ctx context.Context, class Class, ownerID string) ([]string, error) {
	key := indexKey(class, ownerID)
	members, err := m.store.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}

	var active []string
	for _, id := range members {
		exists, err := m.store.Exists(ctx, recordKey(class, id))
		if err != nil {
			return nil, err
		}
		if !exists {
			// Record was deleted out-of-band; self-heal the index.
			if err := m.store.SRem(ctx, key, id); err != nil {
				return nil, err
			}
			continue
		}
		active = append(active, id)
	}
	return active, nil
}
