package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the result of a consume attempt.
type Decision struct {
	Allowed bool
	// Limit is the bucket capacity.
	Limit int64
	// Remaining is the number of whole tokens left after the attempt.
	Remaining int64
	// RetryAfter is how long until the attempt would succeed. Zero when allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum one,
// for use in the Retry-After header.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 1
	}
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Bucket is a single token bucket. It is safe for concurrent use.
type Bucket struct {
	cfg   Config
	clock Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewBucket returns a full bucket whose refill clock starts now.
func NewBucket(cfg Config, clock Clock) *Bucket {
	if clock == nil {
		clock = time.Now
	}
	return &Bucket{
		cfg:        cfg,
		clock:      clock,
		tokens:     float64(cfg.Capacity),
		lastRefill: clock(),
	}
}

// TryConsume removes n tokens if available.
func (b *Bucket) TryConsume(n int64) bool {
	return b.Take(n).Allowed
}

// Take refills the bucket and attempts to remove n tokens. A failed attempt
// leaves the token count unchanged.
func (b *Bucket) Take(n int64) Decision {
	if n < 1 {
		n = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	cost := float64(n)
	if b.tokens >= cost {
		b.tokens -= cost
		return Decision{
			Allowed:   true,
			Limit:     b.cfg.Capacity,
			Remaining: int64(math.Floor(b.tokens)),
		}
	}

	return Decision{
		Allowed:    false,
		Limit:      b.cfg.Capacity,
		Remaining:  int64(math.Floor(b.tokens)),
		RetryAfter: b.waitLocked(cost),
	}
}

// Tokens returns the current token count after refill. It does not consume.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *Bucket) refillLocked() {
	now := b.clock()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		// Clock went backwards or no time passed; keep the earlier stamp.
		return
	}

	b.tokens += b.cfg.tokensFor(elapsed)
	if capacity := float64(b.cfg.Capacity); b.tokens > capacity {
		b.tokens = capacity
	}
	b.lastRefill = now
}

func (b *Bucket) waitLocked(cost float64) time.Duration {
	deficit := cost - b.tokens
	if deficit <= 0 {
		return 0
	}
	return b.cfg.durationFor(deficit)
}
