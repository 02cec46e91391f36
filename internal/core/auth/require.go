package auth

import (
	"net/http"
	"strings"

	apperrors "github.com/flightontime/flightontime/internal/errors"
)

// RequireAuthenticated rejects requests without a principal with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="flightontime"`)
			apperrors.RespondWithEnvelope(w, r, apperrors.NewUnauthorizedError("Authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose principal holds none of roles with 403,
// and anonymous requests with 401.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := append([]string(nil), roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="flightontime"`)
				apperrors.RespondWithEnvelope(w, r, apperrors.NewUnauthorizedError("Authentication required"))
				return
			}
			if !p.HasRole(allowed...) {
				env := apperrors.NewForbiddenError("Insufficient role")
				env = env.WithDetails(map[string]interface{}{
					"required_roles": strings.Join(allowed, ","),
				})
				apperrors.RespondWithEnvelope(w, r, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
