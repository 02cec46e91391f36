package server

import (
	"net/http"

	apperrors "github.com/flightontime/flightontime/internal/errors"
)

// HandleError writes err as the standard JSON error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// notFound answers unrouted paths. Admission stages have already run by the
// time chi falls through to it, so an unknown path still costs a token.
func notFound(w http.ResponseWriter, r *http.Request) {
	env := apperrors.NewNotFoundError("The requested resource was not found")
	HandleError(w, r, env.WithDetails(map[string]interface{}{
		"path": r.URL.Path,
	}))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	env := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
	HandleError(w, r, env.WithDetails(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	}))
}
