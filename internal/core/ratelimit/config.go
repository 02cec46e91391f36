// Package ratelimit implements per-client token-bucket admission control.
//
// Buckets refill lazily: every consume first credits the tokens earned since
// the previous access, so no goroutine runs per bucket. The Registry maps
// client keys to buckets and evicts entries that have been idle long enough
// to be full again. RedisLimiter offers the same semantics shared across
// replicas.
package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Config describes the shape of every bucket.
type Config struct {
	// Capacity is the maximum number of tokens a bucket holds.
	Capacity int64
	// RefillTokens is the number of tokens credited per RefillInterval.
	RefillTokens int64
	// RefillInterval is the period over which RefillTokens accrue.
	RefillInterval time.Duration
}

// DefaultConfig allows ten requests per minute, refilled smoothly.
func DefaultConfig() Config {
	return Config{
		Capacity:       10,
		RefillTokens:   10,
		RefillInterval: time.Minute,
	}
}

// Validate checks the bucket parameters.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("ratelimit capacity must be >= 1, got %d", c.Capacity)
	}
	if c.RefillTokens < 1 {
		return fmt.Errorf("ratelimit refill tokens must be >= 1, got %d", c.RefillTokens)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("ratelimit refill interval must be positive, got %s", c.RefillInterval)
	}
	return nil
}

// tokensFor returns the tokens earned over elapsed.
func (c Config) tokensFor(elapsed time.Duration) float64 {
	return float64(elapsed) * float64(c.RefillTokens) / float64(c.RefillInterval)
}

// durationFor returns the time needed to earn tokens.
func (c Config) durationFor(tokens float64) time.Duration {
	return time.Duration(math.Ceil(tokens * float64(c.RefillInterval) / float64(c.RefillTokens)))
}

// FullRefill is the time an empty bucket needs to become full again.
func (c Config) FullRefill() time.Duration {
	if c.RefillTokens <= 0 {
		return c.RefillInterval
	}
	return c.durationFor(float64(c.Capacity))
}

// Clock returns the current time. Tests substitute a manual clock.
type Clock func() time.Time
