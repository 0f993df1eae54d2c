// Package store abstracts the TTL-capable key-value backing store used by the
// session database. The lifecycle manager only ever talks to the KeyStore
// interface; Redis is the production implementation and MemoryStore backs
// tests and development.
package store

import (
	"context"
	"time"
)

// Default timeouts for store operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// KeyStore is the minimal capability set the lifecycle manager consumes from
// the backing store: scalars with TTL, hashes, sets, and sorted sets.
//
// Every operation has a bounded timeout supplied by the implementation's
// configuration; a timeout or connection failure surfaces as ErrUnavailable
// and a lookup miss as ErrNotFound. No implementation retries internally;
// retry policy belongs to the caller.
type KeyStore interface {
	// Get returns the scalar value stored at key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a scalar value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores a scalar value only if the key does not exist.
	// It reports whether the value was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes the given keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Exists reports whether the key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining time to live of a key. It returns
	// ErrNotFound for a missing key and zero for a key without expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Expire sets a key's TTL. It reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// HSet writes the given hash fields.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGet reads one hash field. Missing key or field is ErrNotFound.
	HGet(ctx context.Context, key, field string) (string, error)

	// HGetAll reads all hash fields. A missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HDel removes hash fields.
	HDel(ctx context.Context, key string, fields ...string) error

	// HIncrBy atomically adds delta to a hash field, creating it at zero.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// SAdd adds members to a set. Adding an existing member is a no-op.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from a set. Removing an absent member is a no-op.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of a set; empty for a missing key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// ZAdd upserts a member with the given score into a sorted set.
	ZAdd(ctx context.Context, key, member string, score float64) error

	// ZRem removes members from a sorted set.
	ZRem(ctx context.Context, key string, members ...string) error

	// ZRangeByScore returns up to limit members with min <= score <= max,
	// ordered by score ascending. limit <= 0 means no limit.
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)

	// ZScore returns the score of a member; ErrNotFound if absent.
	ZScore(ctx context.Context, key, member string) (float64, error)

	// ZCard returns the cardinality of a sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZCount counts members with min <= score <= max.
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)

	// Scan iterates keys matching a glob pattern. It returns a page of keys
	// and the next cursor; iteration is complete when the cursor is zero.
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}
