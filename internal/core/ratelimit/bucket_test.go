package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	assert.Error(t, Config{Capacity: 0, RefillTokens: 1, RefillInterval: time.Second}.Validate())
	assert.Error(t, Config{Capacity: 1, RefillTokens: 0, RefillInterval: time.Second}.Validate())
	assert.Error(t, Config{Capacity: 1, RefillTokens: 1}.Validate())
}

func TestConfig_FullRefill(t *testing.T) {
	assert.Equal(t, time.Minute, DefaultConfig().FullRefill())
	assert.Equal(t, 2*time.Minute, Config{Capacity: 10, RefillTokens: 5, RefillInterval: time.Minute}.FullRefill())
}

func TestBucket_FreshBucketAllowsCapacity(t *testing.T) {
	clock := newManualClock()
	b := NewBucket(Config{Capacity: 5, RefillTokens: 5, RefillInterval: time.Minute}, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, b.TryConsume(1), "consume %d", i+1)
	}
	assert.False(t, b.TryConsume(1), "capacity+1 must fail")
}

func TestBucket_FailedConsumeLeavesTokens(t *testing.T) {
	clock := newManualClock()
	b := NewBucket(Config{Capacity: 3, RefillTokens: 3, RefillInterval: time.Minute}, clock.Now)

	require.True(t, b.TryConsume(2))
	assert.False(t, b.TryConsume(2))
	assert.InDelta(t, 1.0, b.Tokens(), 1e-9)
}

func TestBucket_RefillsToCapacityNeverAbove(t *testing.T) {
	clock := newManualClock()
	cfg := Config{Capacity: 10, RefillTokens: 10, RefillInterval: time.Minute}
	b := NewBucket(cfg, clock.Now)

	for b.TryConsume(1) {
	}
	assert.InDelta(t, 0.0, b.Tokens(), 1e-9)

	clock.Advance(time.Minute)
	assert.InDelta(t, 10.0, b.Tokens(), 1e-9)

	clock.Advance(10 * time.Minute)
	assert.InDelta(t, 10.0, b.Tokens(), 1e-9)
}

func TestBucket_FractionalRefill(t *testing.T) {
	clock := newManualClock()
	b := NewBucket(Config{Capacity: 10, RefillTokens: 10, RefillInterval: time.Minute}, clock.Now)
	for b.TryConsume(1) {
	}

	// 9 seconds earns 1.5 tokens: one whole unit is spendable.
	clock.Advance(9 * time.Second)
	assert.True(t, b.TryConsume(1))
	assert.False(t, b.TryConsume(1))
	assert.InDelta(t, 0.5, b.Tokens(), 1e-9)
}

func TestBucket_TakeReportsRetryAfter(t *testing.T) {
	clock := newManualClock()
	b := NewBucket(Config{Capacity: 10, RefillTokens: 10, RefillInterval: time.Minute}, clock.Now)
	for b.TryConsume(1) {
	}

	d := b.Take(1)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(10), d.Limit)
	assert.Equal(t, 6*time.Second, d.RetryAfter)
	assert.Equal(t, int64(6), d.RetryAfterSeconds())
	assert.Equal(t, int64(0), d.Remaining)

	clock.Advance(6 * time.Second)
	d = b.Take(1)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Zero(t, d.RetryAfter)
}

func TestBucket_ClockGoingBackwards(t *testing.T) {
	clock := newManualClock()
	b := NewBucket(Config{Capacity: 2, RefillTokens: 2, RefillInterval: time.Minute}, clock.Now)
	require.True(t, b.TryConsume(2))

	clock.Advance(-time.Hour)
	assert.False(t, b.TryConsume(1))
	assert.InDelta(t, 0.0, b.Tokens(), 1e-9)
}

func TestBucket_ConcurrentConsumersBoundedByCapacity(t *testing.T) {
	clock := newManualClock()
	b := NewBucket(Config{Capacity: 25, RefillTokens: 25, RefillInterval: time.Hour}, clock.Now)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryConsume(1) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), allowed.Load())
}

func TestDecision_RetryAfterSecondsMinimumOne(t *testing.T) {
	assert.Equal(t, int64(1), Decision{}.RetryAfterSeconds())
	assert.Equal(t, int64(1), Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, int64(3), Decision{RetryAfter: 2100 * time.Millisecond}.RetryAfterSeconds())
}
