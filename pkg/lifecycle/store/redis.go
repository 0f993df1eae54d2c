package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
//
// Exactly one of Addr or Sentinel must be set: Addr for a standalone
// deployment, Sentinel for a Sentinel-managed HA deployment.
type RedisConfig struct {
	// Addr is the host:port of a standalone Redis instance.
	Addr string

	// Sentinel configures Sentinel failover; nil for standalone.
	Sentinel *SentinelConfig

	// ACLUser is optional ACL user authentication.
	ACLUser *ACLUserConfig

	// DB is the logical database number.
	DB int

	// KeyPrefix is prepended to every key for multi-tenancy,
	// e.g. "sessiondb:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SentinelConfig contains Redis Sentinel configuration.
type SentinelConfig struct {
	MasterName    string
	SentinelAddrs []string
}

// ACLUserConfig contains Redis ACL user authentication configuration.
type ACLUserConfig struct {
	Username string
	Password string
}

// RedisStore implements KeyStore on Redis, either standalone or with
// Sentinel failover for HA deployments.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis per the given configuration and verifies
// connectivity before returning.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if err := validateRedisConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	// Apply defaults
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	var username, password string
	if cfg.ACLUser != nil {
		username = cfg.ACLUser.Username
		password = cfg.ACLUser.Password
	}

	var client redis.UniversalClient
	if cfg.Sentinel != nil {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.Sentinel.MasterName,
			SentinelAddrs: cfg.Sentinel.SentinelAddrs,
			DB:            cfg.DB,
			Username:      username,
			Password:      password,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			DB:           cfg.DB,
			Username:     username,
			Password:     password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w: %w", ErrUnavailable, err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func validateRedisConfig(cfg *RedisConfig) error {
	if cfg.Addr == "" && cfg.Sentinel == nil {
		return errors.New("either a standalone address or sentinel configuration is required")
	}
	if cfg.Addr != "" && cfg.Sentinel != nil {
		return errors.New("standalone address and sentinel configuration are mutually exclusive")
	}
	if cfg.Sentinel != nil {
		if cfg.Sentinel.MasterName == "" {
			return errors.New("sentinel master name is required")
		}
		if len(cfg.Sentinel.SentinelAddrs) == 0 {
			return errors.New("at least one sentinel address is required")
		}
	}
	return nil
}

// key applies the configured prefix.
func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

func (s *RedisStore) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = s.key(k)
	}
	return out
}

// mapErr translates go-redis errors into the store sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Get returns the scalar value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		return "", mapErr("get", err)
	}
	return val, nil
}

// Set stores a scalar value. A zero ttl means no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return mapErr("set", s.client.Set(ctx, s.key(key), value, ttl).Err())
}

// SetNX stores a scalar value only if the key does not exist.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, mapErr("setnx", err)
	}
	return ok, nil
}

// Del removes the given keys and returns how many existed.
func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, s.keys(keys)...).Result()
	if err != nil {
		return 0, mapErr("del", err)
	}
	return n, nil
}

// Exists reports whether the key exists.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, mapErr("exists", err)
	}
	return n > 0, nil
}

// TTL returns the remaining time to live of a key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, mapErr("ttl", err)
	}
	// go-redis passes through the raw protocol values -2 (missing key)
	// and -1 (no expiry) without unit conversion.
	switch d {
	case -2:
		return 0, fmt.Errorf("ttl: %w", ErrNotFound)
	case -1:
		return 0, nil
	}
	return d, nil
}

// Expire sets a key's TTL. It reports whether the key existed.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, s.key(key), ttl).Result()
	if err != nil {
		return false, mapErr("expire", err)
	}
	return ok, nil
}

// HSet writes the given hash fields.
func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	return mapErr("hset", s.client.HSet(ctx, s.key(key), args...).Err())
}

// HGet reads one hash field.
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, s.key(key), field).Result()
	if err != nil {
		return "", mapErr("hget", err)
	}
	return val, nil
}

// HGetAll reads all hash fields. A missing key yields an empty map.
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, mapErr("hgetall", err)
	}
	return fields, nil
}

// HDel removes hash fields.
func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	return mapErr("hdel", s.client.HDel(ctx, s.key(key), fields...).Err())
}

// HIncrBy atomically adds delta to a hash field, creating it at zero.
func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, s.key(key), field, delta).Result()
	if err != nil {
		return 0, mapErr("hincrby", err)
	}
	return n, nil
}

// SAdd adds members to a set.
func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return mapErr("sadd", s.client.SAdd(ctx, s.key(key), args...).Err())
}

// SRem removes members from a set.
func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return mapErr("srem", s.client.SRem(ctx, s.key(key), args...).Err())
}

// SMembers returns all members of a set; empty for a missing key.
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key(key)).Result()
	if err != nil {
		return nil, mapErr("smembers", err)
	}
	return members, nil
}

// ZAdd upserts a member with the given score into a sorted set.
func (s *RedisStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return mapErr("zadd", s.client.ZAdd(ctx, s.key(key), redis.Z{Score: score, Member: member}).Err())
}

// ZRem removes members from a sorted set.
func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return mapErr("zrem", s.client.ZRem(ctx, s.key(key), args...).Err())
}

// ZRangeByScore returns up to limit members with min <= score <= max,
// ordered by score ascending.
func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}
	if limit > 0 {
		opt.Count = limit
	}
	members, err := s.client.ZRangeByScore(ctx, s.key(key), opt).Result()
	if err != nil {
		return nil, mapErr("zrangebyscore", err)
	}
	return members, nil
}

// ZScore returns the score of a member.
func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := s.client.ZScore(ctx, s.key(key), member).Result()
	if err != nil {
		return 0, mapErr("zscore", err)
	}
	return score, nil
}

// ZCard returns the cardinality of a sorted set.
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key(key)).Result()
	if err != nil {
		return 0, mapErr("zcard", err)
	}
	return n, nil
}

// ZCount counts members with min <= score <= max.
func (s *RedisStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	n, err := s.client.ZCount(ctx, s.key(key), formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, mapErr("zcount", err)
	}
	return n, nil
}

// Scan iterates keys matching a glob pattern. The configured key prefix is
// applied to the pattern and stripped from the results.
func (s *RedisStore) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, s.key(pattern), count).Result()
	if err != nil {
		return nil, 0, mapErr("scan", err)
	}
	if s.keyPrefix != "" {
		for i, k := range keys {
			keys[i] = strings.TrimPrefix(k, s.keyPrefix)
		}
	}
	return keys, next, nil
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return mapErr("ping", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Compile-time interface compliance check
var _ KeyStore = (*RedisStore)(nil)
