package auth

import (
	"context"

	"github.com/flightontime/flightontime/internal/core"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by the auth stage, if any.
func PrincipalFrom(ctx context.Context) (core.Principal, bool) {
	if ctx == nil {
		return core.Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(core.Principal)
	return p, ok
}
