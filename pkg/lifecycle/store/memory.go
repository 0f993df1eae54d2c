package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements KeyStore with in-memory maps. It is thread-safe and
// mirrors Redis semantics closely enough for tests and development: per-key
// expiry on scalars, hashes, sets and sorted sets, evicted lazily on access.
// For production use the Redis implementation.
type MemoryStore struct {
	mu sync.RWMutex

	scalars map[string]*scalarEntry
	hashes  map[string]*hashEntry
	sets    map[string]*setEntry
	zsets   map[string]*zsetEntry

	// now is injectable so tests can control the clock.
	now func() time.Time
}

type scalarEntry struct {
	value     string
	expiresAt time.Time
}

type hashEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

type setEntry struct {
	members   map[string]struct{}
	expiresAt time.Time
}

type zsetEntry struct {
	scores    map[string]float64
	expiresAt time.Time
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithClock sets a custom time source. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new MemoryStore with initialized maps.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		scalars: make(map[string]*scalarEntry),
		hashes:  make(map[string]*hashEntry),
		sets:    make(map[string]*setEntry),
		zsets:   make(map[string]*zsetEntry),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// expired reports whether a deadline has passed. The zero time means no expiry.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt)
}

func deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// scalar returns the live scalar entry for key, evicting it if expired.
// Callers must hold the write lock.
func (s *MemoryStore) scalar(key string) *scalarEntry {
	e, ok := s.scalars[key]
	if !ok {
		return nil
	}
	if expired(e.expiresAt, s.now()) {
		delete(s.scalars, key)
		return nil
	}
	return e
}

func (s *MemoryStore) hash(key string) *hashEntry {
	e, ok := s.hashes[key]
	if !ok {
		return nil
	}
	if expired(e.expiresAt, s.now()) {
		delete(s.hashes, key)
		return nil
	}
	return e
}

func (s *MemoryStore) set(key string) *setEntry {
	e, ok := s.sets[key]
	if !ok {
		return nil
	}
	if expired(e.expiresAt, s.now()) {
		delete(s.sets, key)
		return nil
	}
	return e
}

func (s *MemoryStore) zset(key string) *zsetEntry {
	e, ok := s.zsets[key]
	if !ok {
		return nil
	}
	if expired(e.expiresAt, s.now()) {
		delete(s.zsets, key)
		return nil
	}
	return e
}

// Get returns the scalar value stored at key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.scalar(key)
	if e == nil {
		return "", fmt.Errorf("get: %w", ErrNotFound)
	}
	return e.value, nil
}

// Set stores a scalar value. A zero ttl means no expiry.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scalars[key] = &scalarEntry{value: value, expiresAt: deadline(s.now(), ttl)}
	return nil
}

// SetNX stores a scalar value only if the key does not exist.
func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scalar(key) != nil {
		return false, nil
	}
	s.scalars[key] = &scalarEntry{value: value, expiresAt: deadline(s.now(), ttl)}
	return true, nil
}

// Del removes the given keys and returns how many existed.
func (s *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range keys {
		if s.scalar(key) != nil {
			delete(s.scalars, key)
			n++
		}
		if s.hash(key) != nil {
			delete(s.hashes, key)
			n++
		}
		if s.set(key) != nil {
			delete(s.sets, key)
			n++
		}
		if s.zset(key) != nil {
			delete(s.zsets, key)
			n++
		}
	}
	return n, nil
}

// Exists reports whether the key exists.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scalar(key) != nil || s.hash(key) != nil || s.set(key) != nil || s.zset(key) != nil, nil
}

// TTL returns the remaining time to live of a key.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.anyExpiry(key)
	if !ok {
		return 0, fmt.Errorf("ttl: %w", ErrNotFound)
	}
	if expiresAt.IsZero() {
		return 0, nil
	}
	return expiresAt.Sub(s.now()), nil
}

// anyExpiry returns the expiry of the live entry stored at key under any type.
func (s *MemoryStore) anyExpiry(key string) (time.Time, bool) {
	if e := s.scalar(key); e != nil {
		return e.expiresAt, true
	}
	if e := s.hash(key); e != nil {
		return e.expiresAt, true
	}
	if e := s.set(key); e != nil {
		return e.expiresAt, true
	}
	if e := s.zset(key); e != nil {
		return e.expiresAt, true
	}
	return time.Time{}, false
}

// Expire sets a key's TTL. It reports whether the key existed.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := deadline(s.now(), ttl)
	found := false
	if e := s.scalar(key); e != nil {
		e.expiresAt = d
		found = true
	}
	if e := s.hash(key); e != nil {
		e.expiresAt = d
		found = true
	}
	if e := s.set(key); e != nil {
		e.expiresAt = d
		found = true
	}
	if e := s.zset(key); e != nil {
		e.expiresAt = d
		found = true
	}
	return found, nil
}

// HSet writes the given hash fields.
func (s *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.hash(key)
	if e == nil {
		e = &hashEntry{fields: make(map[string]string)}
		s.hashes[key] = e
	}
	for f, v := range fields {
		e.fields[f] = v
	}
	return nil
}

// HGet reads one hash field.
func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.hash(key)
	if e == nil {
		return "", fmt.Errorf("hget: %w", ErrNotFound)
	}
	v, ok := e.fields[field]
	if !ok {
		return "", fmt.Errorf("hget: %w", ErrNotFound)
	}
	return v, nil
}

// HGetAll reads all hash fields. A missing key yields an empty map.
func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	if e := s.hash(key); e != nil {
		for f, v := range e.fields {
			out[f] = v
		}
	}
	return out, nil
}

// HDel removes hash fields.
func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.hash(key)
	if e == nil {
		return nil
	}
	for _, f := range fields {
		delete(e.fields, f)
	}
	if len(e.fields) == 0 {
		delete(s.hashes, key)
	}
	return nil
}

// HIncrBy atomically adds delta to a hash field, creating it at zero.
func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.hash(key)
	if e == nil {
		e = &hashEntry{fields: make(map[string]string)}
		s.hashes[key] = e
	}
	var cur int64
	if raw, ok := e.fields[field]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("hincrby: value is not an integer")
		}
		cur = parsed
	}
	cur += delta
	e.fields[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// SAdd adds members to a set.
func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.set(key)
	if e == nil {
		e = &setEntry{members: make(map[string]struct{})}
		s.sets[key] = e
	}
	for _, m := range members {
		e.members[m] = struct{}{}
	}
	return nil
}

// SRem removes members from a set.
func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.set(key)
	if e == nil {
		return nil
	}
	for _, m := range members {
		delete(e.members, m)
	}
	if len(e.members) == 0 {
		delete(s.sets, key)
	}
	return nil
}

// SMembers returns all members of a set; empty for a missing key.
func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.set(key)
	if e == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.members))
	for m := range e.members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// ZAdd upserts a member with the given score into a sorted set.
func (s *MemoryStore) ZAdd(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.zset(key)
	if e == nil {
		e = &zsetEntry{scores: make(map[string]float64)}
		s.zsets[key] = e
	}
	e.scores[member] = score
	return nil
}

// ZRem removes members from a sorted set.
func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.zset(key)
	if e == nil {
		return nil
	}
	for _, m := range members {
		delete(e.scores, m)
	}
	if len(e.scores) == 0 {
		delete(s.zsets, key)
	}
	return nil
}

// ZRangeByScore returns up to limit members with min <= score <= max,
// ordered by score ascending, ties broken lexicographically as Redis does.
func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.zset(key)
	if e == nil {
		return nil, nil
	}

	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	for m, sc := range e.scores {
		if sc >= min && sc <= max {
			pairs = append(pairs, pair{member: m, score: sc})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})

	if limit > 0 && int64(len(pairs)) > limit {
		pairs = pairs[:limit]
	}
	members := make([]string, len(pairs))
	for i, p := range pairs {
		members[i] = p.member
	}
	return members, nil
}

// ZScore returns the score of a member.
func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.zset(key)
	if e == nil {
		return 0, fmt.Errorf("zscore: %w", ErrNotFound)
	}
	score, ok := e.scores[member]
	if !ok {
		return 0, fmt.Errorf("zscore: %w", ErrNotFound)
	}
	return score, nil
}

// ZCard returns the cardinality of a sorted set.
func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.zset(key)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.scores)), nil
}

// ZCount counts members with min <= score <= max.
func (s *MemoryStore) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.zset(key)
	if e == nil {
		return 0, nil
	}
	var n int64
	for _, sc := range e.scores {
		if sc >= min && sc <= max {
			n++
		}
	}
	return n, nil
}

// Scan returns all keys matching the glob pattern in a single page.
// The cursor semantics exist only for interface parity; the returned
// cursor is always zero.
func (s *MemoryStore) Scan(_ context.Context, _ uint64, pattern string, _ int64) ([]string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		if matched, _ := path.Match(pattern, k); matched {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range s.scalars {
		if s.scalar(k) != nil {
			add(k)
		}
	}
	for k := range s.hashes {
		if s.hash(k) != nil {
			add(k)
		}
	}
	for k := range s.sets {
		if s.set(k) != nil {
			add(k)
		}
	}
	for k := range s.zsets {
		if s.zset(k) != nil {
			add(k)
		}
	}
	sort.Strings(keys)
	return keys, 0, nil
}

// Ping is a no-op for in-memory storage since it is always available.
func (*MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage.
func (*MemoryStore) Close() error {
	return nil
}

// Compile-time interface compliance check
var _ KeyStore = (*MemoryStore)(nil)
