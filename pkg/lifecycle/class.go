// Package lifecycle implements the session/token/cache record lifecycle
// manager: TTL-bound records keyed by class, per-owner secondary indices,
// an expiry queue per class, batched idempotent cleanup, and usage
// statistics. The backing store is abstracted behind store.KeyStore.
package lifecycle

import (
	"fmt"
	"time"
)

// Class identifies a record class. Each class has its own key prefix,
// owner index, expiry queue, statistics hash, and default TTL.
type Class string

// Record classes.
const (
	ClassSession       Class = "session"
	ClassAccessToken   Class = "access_token"
	ClassRefreshToken  Class = "refresh_token"
	ClassAuthCode      Class = "auth_code"
	ClassDeletionToken Class = "deletion_token"
	ClassCacheEntry    Class = "cache"
)

// Classes lists all record classes in a stable order. Cleanup iterates this.
var Classes = []Class{
	ClassSession,
	ClassAccessToken,
	ClassRefreshToken,
	ClassAuthCode,
	ClassDeletionToken,
	ClassCacheEntry,
}

// Default TTLs per record class. These are the contract surface other
// services depend on; override per class via Config.
const (
	DefaultSessionTTL       = 1 * time.Hour
	DefaultAccessTokenTTL   = 15 * time.Minute
	DefaultRefreshTokenTTL  = 7 * 24 * time.Hour
	DefaultAuthCodeTTL      = 10 * time.Minute
	DefaultDeletionTokenTTL = 24 * time.Hour
	DefaultCacheEntryTTL    = 24 * time.Hour
)

// defaultTTLs maps each class to its default TTL.
var defaultTTLs = map[Class]time.Duration{
	ClassSession:       DefaultSessionTTL,
	ClassAccessToken:   DefaultAccessTokenTTL,
	ClassRefreshToken:  DefaultRefreshTokenTTL,
	ClassAuthCode:      DefaultAuthCodeTTL,
	ClassDeletionToken: DefaultDeletionTokenTTL,
	ClassCacheEntry:    DefaultCacheEntryTTL,
}

// Default cleanup batch sizes per class, capping per-invocation work so a
// single pass cannot block indefinitely on a backlog.
var defaultBatchSizes = map[Class]int{
	ClassSession:       500,
	ClassAccessToken:   250,
	ClassRefreshToken:  100,
	ClassAuthCode:      100,
	ClassDeletionToken: 100,
	ClassCacheEntry:    500,
}

// Valid reports whether c is a known record class.
func (c Class) Valid() bool {
	_, ok := defaultTTLs[c]
	return ok
}

// DefaultTTL returns the class's default TTL.
func (c Class) DefaultTTL() time.Duration {
	return defaultTTLs[c]
}

// String returns the class name.
func (c Class) String() string {
	return string(c)
}

// ParseClass converts a class name into a Class.
func ParseClass(s string) (Class, error) {
	c := Class(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown record class %q", s)
	}
	return c, nil
}

// Key naming convention shared by every component. Components never build
// keys themselves; drift between two hand-built prefixes is exactly the
// failure mode this module exists to remove.

// recordKey is the primary record key: "{class}:{id}".
func recordKey(class Class, id string) string {
	return string(class) + ":" + id
}

// recordKeyPattern matches every record key of a class.
func recordKeyPattern(class Class) string {
	return string(class) + ":*"
}

// recordIDFromKey extracts the record ID from a record key.
func recordIDFromKey(class Class, key string) string {
	return key[len(class)+1:]
}

// indexKey is the owner index key: "{class}_index:{owner_id}".
func indexKey(class Class, ownerID string) string {
	return string(class) + "_index:" + ownerID
}

// queueKey is the expiry queue sorted set: "{class}_cleanup".
func queueKey(class Class) string {
	return string(class) + "_cleanup"
}

// statsKey is the statistics hash: "{class}_stats".
func statsKey(class Class) string {
	return string(class) + "_stats"
}
