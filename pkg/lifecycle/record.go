package lifecycle

import (
	"encoding/json"
	"time"

	apperrors "github.com/Recipe-Web-App/session-database-sub000/pkg/errors"
)

// Record is a single TTL-bound logical entity: a session, a token, or a
// cache entry. Records are immutable once stored except for LastActivity,
// which Touch refreshes.
type Record struct {
	// ID uniquely identifies the record within its class.
	ID string

	// Class is the record class.
	Class Class

	// OwnerID is the user or client the record belongs to; empty for
	// ownerless records such as cache entries.
	OwnerID string

	// Fields carries the caller's payload.
	Fields map[string]string

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// ExpiresAt is when the record expires; the zero value means the
	// record never expires and is not tracked by the expiry queue.
	ExpiresAt time.Time

	// LastActivity is refreshed by Touch and on creation.
	LastActivity time.Time
}

// IsExpired reports whether the record has expired at the given time.
// Records without an expiry never expire.
func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// HasTTL reports whether the record is TTL-bound.
func (r *Record) HasTTL() bool {
	return !r.ExpiresAt.IsZero()
}

// storedRecord is the serializable wrapper for Record. Timestamps are unix
// seconds to keep the stored form stable across clients.
type storedRecord struct {
	ID           string            `json:"id"`
	Class        string            `json:"class"`
	OwnerID      string            `json:"owner_id,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	CreatedAt    int64             `json:"created_at"`
	ExpiresAt    int64             `json:"expires_at,omitempty"`
	LastActivity int64             `json:"last_activity,omitempty"`
}

// encodeRecord serializes a record to its backing-store value.
func encodeRecord(r *Record) (string, error) {
	stored := storedRecord{
		ID:           r.ID,
		Class:        string(r.Class),
		OwnerID:      r.OwnerID,
		Fields:       r.Fields,
		CreatedAt:    r.CreatedAt.Unix(),
		LastActivity: r.LastActivity.Unix(),
	}
	if !r.ExpiresAt.IsZero() {
		stored.ExpiresAt = r.ExpiresAt.Unix()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", apperrors.NewDecodeError("failed to marshal record", err)
	}
	return string(data), nil
}

// decodeRecord deserializes a backing-store value into a Record.
//
// Malformed data (partial writes from a crashed process, manual edits)
// returns a decode error; callers treat the record as absent and eligible
// for pruning, never as a hard failure.
func decodeRecord(raw string) (*Record, error) {
	var stored storedRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, apperrors.NewDecodeError("failed to unmarshal record", err)
	}

	if stored.ID == "" {
		return nil, apperrors.NewDecodeError("stored record has no id", nil)
	}
	class := Class(stored.Class)
	if !class.Valid() {
		return nil, apperrors.NewDecodeError("stored record has unknown class "+stored.Class, nil)
	}

	r := &Record{
		ID:        stored.ID,
		Class:     class,
		OwnerID:   stored.OwnerID,
		Fields:    stored.Fields,
		CreatedAt: time.Unix(stored.CreatedAt, 0).UTC(),
	}
	if stored.ExpiresAt != 0 {
		r.ExpiresAt = time.Unix(stored.ExpiresAt, 0).UTC()
	}
	if stored.LastActivity != 0 {
		r.LastActivity = time.Unix(stored.LastActivity, 0).UTC()
	}
	return r, nil
}
