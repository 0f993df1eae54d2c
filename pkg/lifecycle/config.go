package lifecycle

import (
	"fmt"
	"time"

	apperrors "github.com/Recipe-Web-App/session-database-sub000/pkg/errors"
)

// DefaultCleanupInterval is how often the periodic cleanup runs.
const DefaultCleanupInterval = 5 * time.Minute

// DefaultMaxExecutionTime bounds a single cleanup invocation.
const DefaultMaxExecutionTime = 10 * time.Minute

// Config holds the lifecycle manager configuration. It is read-only at
// runtime: loaded once at process start and validated before any request
// is served.
type Config struct {
	// TTLs overrides the default TTL per record class.
	TTLs map[Class]time.Duration

	// BatchSizes overrides the default cleanup batch size per class.
	BatchSizes map[Class]int

	// CleanupInterval is how often the periodic cleanup job runs.
	CleanupInterval time.Duration

	// MaxExecutionTime bounds a single cleanup invocation.
	MaxExecutionTime time.Duration

	// MaxRecordsPerOwner caps how many live records one owner may hold per
	// class; creating past the cap evicts the owner's oldest record first.
	// Zero disables the cap.
	MaxRecordsPerOwner int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:  DefaultCleanupInterval,
		MaxExecutionTime: DefaultMaxExecutionTime,
	}
}

// Validate fails fast on invalid values so a misconfigured process never
// serves requests.
func (c *Config) Validate() error {
	for class, ttl := range c.TTLs {
		if !class.Valid() {
			return apperrors.NewConfigurationError(fmt.Sprintf("unknown record class %q in TTL overrides", class), nil)
		}
		if ttl <= 0 {
			return apperrors.NewConfigurationError(fmt.Sprintf("TTL for class %q must be positive", class), nil)
		}
	}
	for class, size := range c.BatchSizes {
		if !class.Valid() {
			return apperrors.NewConfigurationError(fmt.Sprintf("unknown record class %q in batch size overrides", class), nil)
		}
		if size <= 0 {
			return apperrors.NewConfigurationError(fmt.Sprintf("batch size for class %q must be positive", class), nil)
		}
	}
	if c.CleanupInterval <= 0 {
		return apperrors.NewConfigurationError("cleanup interval must be positive", nil)
	}
	if c.MaxExecutionTime <= 0 {
		return apperrors.NewConfigurationError("max execution time must be positive", nil)
	}
	if c.MaxRecordsPerOwner < 0 {
		return apperrors.NewConfigurationError("max records per owner cannot be negative", nil)
	}
	return nil
}

// TTLFor returns the configured TTL for a class, falling back to the
// class default.
func (c *Config) TTLFor(class Class) time.Duration {
	if ttl, ok := c.TTLs[class]; ok {
		return ttl
	}
	return class.DefaultTTL()
}

// BatchSizeFor returns the configured cleanup batch size for a class,
// falling back to the class default.
func (c *Config) BatchSizeFor(class Class) int {
	if size, ok := c.BatchSizes[class]; ok {
		return size
	}
	return defaultBatchSizes[class]
}
