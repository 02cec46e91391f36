package middleware

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/flightontime/flightontime/internal/core"
)

// RequestIDHeader carries the correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied IDs. They end up in logs, error
// envelopes and admission events.
const maxRequestIDLength = 128

// RequestID gives every request a correlation ID. A caller-supplied
// X-Request-ID is kept when it is short and made of token characters;
// otherwise a UUID replaces it. The ID is echoed in the response header and
// stored in the context for core (admission events) and chi (GetReqID).
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := acceptRequestID(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)

		ctx := core.WithRequestID(r.Context(), id)
		ctx = context.WithValue(ctx, chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation ID for ctx, falling back to one set
// by chi's own RequestID middleware.
func GetRequestID(ctx context.Context) string {
	if id := core.RequestIDFrom(ctx); id != "" {
		return id
	}
	if ctx == nil {
		return ""
	}
	return chimw.GetReqID(ctx)
}

func acceptRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return ""
		}
	}
	return id
}
