package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/flightontime/flightontime/internal/core"
)

// UnknownClient is used when a request carries no usable address at all.
const UnknownClient core.ClientKey = "unknown"

// ResolveClientKey derives the rate limiting identity of a request.
//
// With trustForwardedFor set, the first comma-separated X-Forwarded-For
// entry wins. Otherwise, or when the header is empty, the peer host from
// RemoteAddr is used, falling back to the raw RemoteAddr when it has no
// port. The value is never validated as an IP address.
func ResolveClientKey(r *http.Request, trustForwardedFor bool) core.ClientKey {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return core.ClientKey(first)
			}
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return core.ClientKey(host)
	}
	return core.ClientKey(remote)
}
