package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/metrics"
	"github.com/flightontime/flightontime/internal/observability"
)

type entry struct {
	bucket   *Bucket
	lastSeen atomic.Int64
}

func (e *entry) touch(now time.Time) {
	e.lastSeen.Store(now.UnixNano())
}

// Registry maps client keys to buckets. Every key gets exactly one bucket
// for as long as it is tracked.
type Registry struct {
	cfg     Config
	clock   Clock
	idleTTL time.Duration

	mu      sync.RWMutex
	buckets map[core.ClientKey]*entry
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source for the registry and its buckets.
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithIdleTTL sets how long a bucket may stay untouched before Cleanup
// removes it. Values below the full refill time are raised to it, so an
// evicted bucket was already full and recreating it changes nothing.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idleTTL = ttl
	}
}

// NewRegistry builds an empty registry. It returns an error if cfg is invalid.
func NewRegistry(cfg Config, opts ...RegistryOption) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:     cfg,
		clock:   time.Now,
		buckets: make(map[core.ClientKey]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if minTTL := cfg.FullRefill(); r.idleTTL < minTTL {
		r.idleTTL = minTTL
	}
	return r, nil
}

// Config returns the bucket configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// IdleTTL returns the effective eviction threshold.
func (r *Registry) IdleTTL() time.Duration {
	return r.idleTTL
}

// GetOrCreate returns the bucket for key, creating a full one on first use.
func (r *Registry) GetOrCreate(key core.ClientKey) *Bucket {
	return r.lookup(key).bucket
}

func (r *Registry) lookup(key core.ClientKey) *entry {
	now := r.clock()

	// Touch under the read lock so Cleanup never sees a stale lastSeen on an
	// entry a caller is about to consume from.
	r.mu.RLock()
	e, ok := r.buckets[key]
	if ok {
		e.touch(now)
	}
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok = r.buckets[key]; ok {
		e.touch(now)
		return e
	}

	e = &entry{bucket: NewBucket(r.cfg, r.clock)}
	e.touch(now)
	r.buckets[key] = e
	return e
}

// Allow consumes one unit from the key's bucket. It never returns an error.
func (r *Registry) Allow(_ context.Context, key core.ClientKey) (Decision, error) {
	return r.GetOrCreate(key).Take(1), nil
}

// Len returns the number of tracked clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

// Keys returns a snapshot of the tracked client keys.
func (r *Registry) Keys() []core.ClientKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]core.ClientKey, 0, len(r.buckets))
	for key := range r.buckets {
		keys = append(keys, key)
	}
	return keys
}

// Cleanup removes buckets idle for longer than the idle TTL and returns how
// many were evicted.
func (r *Registry) Cleanup() int {
	cutoff := r.clock().Add(-r.idleTTL).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, e := range r.buckets {
		if e.lastSeen.Load() < cutoff {
			delete(r.buckets, key)
			evicted++
		}
	}
	return evicted
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = r.idleTTL
	}

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := r.Cleanup()
				tracked := r.Len()
				metrics.RecordEvictions(evicted)
				metrics.SetTrackedClients(tracked)
				if evicted > 0 && observability.ServerLogger != nil {
					observability.ServerLogger.Debug("Evicted idle rate limit buckets",
						zap.Int("evicted", evicted),
						zap.Int("tracked", tracked))
				}
			}
		}
	}()
}
