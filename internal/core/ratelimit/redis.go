package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flightontime/flightontime/internal/core"
)

//go:embed token_bucket.lua
var tokenBucketSource string

var tokenBucketScript = redis.NewScript(tokenBucketSource)

// ErrLimiterUnavailable wraps failures of the shared limiter backend.
var ErrLimiterUnavailable = errors.New("rate limiter backend unavailable")

// DefaultRedisPrefix namespaces bucket keys in a shared Redis.
const DefaultRedisPrefix = "flightontime:ratelimit:"

// RedisLimiter keeps buckets in Redis so several replicas share one budget
// per client. The refill arithmetic runs atomically in a Lua script; the
// timestamp comes from the caller's clock.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	clock  Clock
	ttl    time.Duration
}

// RedisOption customizes a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) {
		if strings.TrimSpace(prefix) != "" {
			l.prefix = prefix
		}
	}
}

// WithRedisClock overrides the time source.
func WithRedisClock(clock Clock) RedisOption {
	return func(l *RedisLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewRedisLimiter validates cfg and returns a limiter bound to client.
// Keys expire after one full refill of inactivity.
func NewRedisLimiter(client redis.UniversalClient, cfg Config, opts ...RedisOption) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefillInterval < time.Millisecond {
		return nil, fmt.Errorf("redis limiter needs a refill interval of at least 1ms, got %s", cfg.RefillInterval)
	}

	l := &RedisLimiter{
		client: client,
		cfg:    cfg,
		prefix: DefaultRedisPrefix,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.ttl = cfg.FullRefill()
	if l.ttl < time.Second {
		l.ttl = time.Second
	}
	return l, nil
}

// Ping checks connectivity and preloads the script.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if err := tokenBucketScript.Load(ctx, l.client).Err(); err != nil {
		return fmt.Errorf("%w: load script: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

// Allow consumes one unit for key.
func (l *RedisLimiter) Allow(ctx context.Context, key core.ClientKey) (Decision, error) {
	now := l.clock().UnixMilli()

	result, err := tokenBucketScript.Run(ctx, l.client,
		[]string{l.prefix + string(key)},
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		now,
		1,
		l.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrLimiterUnavailable, result)
	}

	return Decision{
		Allowed:    result[0] == 1,
		Limit:      l.cfg.Capacity,
		Remaining:  result[1],
		RetryAfter: time.Duration(result[2]) * time.Millisecond,
	}, nil
}

// Reset drops the stored bucket for key.
func (l *RedisLimiter) Reset(ctx context.Context, key core.ClientKey) error {
	if err := l.client.Del(ctx, l.prefix+string(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}
