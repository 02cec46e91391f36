package pipeline

import (
	"path"
	"strings"
)

// BypassList holds path prefixes that skip every admission stage.
//
// A prefix matches the path itself and anything below it on a segment
// boundary, so "/api/auth" covers "/api/auth/login" but not "/api/authz".
type BypassList []string

// DefaultBypass lists the authentication, health check and documentation
// endpoints exempt from admission control.
func DefaultBypass() BypassList {
	return BypassList{
		"/api/auth",
		"/api/health",
		"/health",
		"/version",
		"/metrics",
		"/swagger-ui",
		"/swagger-ui.html",
		"/v3/api-docs",
	}
}

// NewBypassList normalizes the given prefixes, dropping empty entries.
func NewBypassList(prefixes ...string) BypassList {
	list := make(BypassList, 0, len(prefixes))
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		if len(prefix) > 1 {
			prefix = strings.TrimSuffix(prefix, "/")
		}
		list = append(list, prefix)
	}
	return list
}

// Matches reports whether the request path falls under a bypass prefix.
// Paths are cleaned first so dot segments cannot smuggle a protected route
// under a bypassed one.
func (b BypassList) Matches(requestPath string) bool {
	if len(b) == 0 {
		return false
	}

	cleaned := cleanPath(requestPath)
	for _, prefix := range b {
		if prefix == "/" {
			return true
		}
		if cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/") {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
