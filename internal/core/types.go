package core

import (
	"strings"
	"time"
)

// ClientKey identifies the client a request is attributed to for rate limiting.
// It is derived from the request's originating address and used only as a map key.
type ClientKey string

// Principal is the verified identity carried by a valid bearer token.
// It lives in a request context for the duration of one request and is never persisted.
type Principal struct {
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HasRole reports whether the principal carries one of the given roles (case-insensitive).
func (p Principal) HasRole(roles ...string) bool {
	for _, role := range roles {
		if strings.EqualFold(strings.TrimSpace(role), p.Role) {
			return true
		}
	}
	return false
}

// Roles understood by the downstream authorization middleware.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
