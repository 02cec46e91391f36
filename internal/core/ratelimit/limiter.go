package ratelimit

import (
	"context"

	"github.com/flightontime/flightontime/internal/core"
)

// Limiter decides whether a client may consume one request unit.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key core.ClientKey) (Decision, error)
}

// LimiterFunc adapts a function to the Limiter interface.
type LimiterFunc func(ctx context.Context, key core.ClientKey) (Decision, error)

// Allow calls f.
func (f LimiterFunc) Allow(ctx context.Context, key core.ClientKey) (Decision, error) {
	return f(ctx, key)
}
