package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightontime/flightontime/internal/core"
)

func newTestRegistry(t *testing.T, clock *manualClock, opts ...RegistryOption) *Registry {
	t.Helper()
	opts = append([]RegistryOption{WithClock(clock.Now)}, opts...)
	reg, err := NewRegistry(DefaultConfig(), opts...)
	require.NoError(t, err)
	return reg
}

func TestNewRegistry_RejectsInvalidConfig(t *testing.T) {
	_, err := NewRegistry(Config{})
	assert.Error(t, err)
}

func TestRegistry_GetOrCreateReturnsSameBucket(t *testing.T) {
	reg := newTestRegistry(t, newManualClock())

	a := reg.GetOrCreate("10.0.0.1")
	b := reg.GetOrCreate("10.0.0.1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ConcurrentFirstAccessCreatesOneBucket(t *testing.T) {
	reg := newTestRegistry(t, newManualClock())

	const workers = 64
	buckets := make([]*Bucket, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			buckets[i] = reg.GetOrCreate("203.0.113.9")
		}(i)
	}
	close(start)
	wg.Wait()

	for _, b := range buckets {
		assert.Same(t, buckets[0], b)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_KeysAreIndependent(t *testing.T) {
	reg := newTestRegistry(t, newManualClock())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := reg.Allow(ctx, "A")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, _ := reg.Allow(ctx, "A")
	assert.False(t, d.Allowed)

	d, _ = reg.Allow(ctx, "B")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)
}

func TestRegistry_ConcurrentConsumersOnOneKey(t *testing.T) {
	reg := newTestRegistry(t, newManualClock())
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := reg.Allow(ctx, "shared"); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, allowed.Load(), int64(10))
	assert.Equal(t, int64(10), allowed.Load())
}

func TestRegistry_LookupRacingCleanupNeverOverAdmits(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		clock := newManualClock()
		reg := newTestRegistry(t, clock)

		for i := 0; i < 10; i++ {
			_, _ = reg.Allow(ctx, "A")
		}
		// Idle past the TTL: the bucket is full again and eligible for eviction.
		clock.Advance(reg.IdleTTL() + time.Second)

		var (
			allowed atomic.Int64
			wg      sync.WaitGroup
			start   = make(chan struct{})
		)
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if d, _ := reg.Allow(ctx, "A"); d.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 5; i++ {
				reg.Cleanup()
			}
		}()
		close(start)
		wg.Wait()

		require.Equal(t, int64(10), allowed.Load(), "round %d", round)
		require.Equal(t, 1, reg.Len(), "round %d", round)
	}
}

func TestRegistry_IdleTTLClampedToFullRefill(t *testing.T) {
	reg := newTestRegistry(t, newManualClock(), WithIdleTTL(time.Second))
	assert.Equal(t, time.Minute, reg.IdleTTL())

	reg = newTestRegistry(t, newManualClock(), WithIdleTTL(time.Hour))
	assert.Equal(t, time.Hour, reg.IdleTTL())
}

func TestRegistry_CleanupEvictsOnlyIdleBuckets(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(t, clock, WithIdleTTL(2*time.Minute))

	reg.GetOrCreate("idle")
	clock.Advance(90 * time.Second)
	reg.GetOrCreate("active")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, reg.Cleanup())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []core.ClientKey{"active"}, reg.Keys())
}

func TestRegistry_EvictedBucketBehavesLikeFresh(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(t, clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = reg.Allow(ctx, "A")
	}
	clock.Advance(reg.IdleTTL() + time.Second)
	require.Equal(t, 1, reg.Cleanup())

	d, err := reg.Allow(ctx, "A")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)
}

func TestRegistry_ManyClientsThenCleanup(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(t, clock)

	for i := 0; i < 500; i++ {
		reg.GetOrCreate(core.ClientKey(fmt.Sprintf("198.51.100.%d", i)))
	}
	assert.Equal(t, 500, reg.Len())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 500, reg.Cleanup())
	assert.Zero(t, reg.Len())
}

func TestRegistry_StartJanitorStopsWithContext(t *testing.T) {
	reg, err := NewRegistry(Config{Capacity: 1, RefillTokens: 1, RefillInterval: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reg.GetOrCreate("x")
	reg.StartJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
