// Package auth attaches verified bearer-token identities to requests and
// provides the route guards that act on them.
//
// The pipeline stage never rejects a request. It only decides whether a
// principal is present; protected routes enforce that with
// RequireAuthenticated and RequireRole.
package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/core/pipeline"
	"github.com/flightontime/flightontime/internal/core/token"
	"github.com/flightontime/flightontime/internal/metrics"
	"github.com/flightontime/flightontime/internal/observability"
)

// StageName identifies the auth stage in metrics and logs.
const StageName = "auth"

const bearerScheme = "bearer"

// Stage validates the bearer token of each request.
type Stage struct {
	validator token.Validator
}

// NewStage builds the stage around a token validator.
func NewStage(validator token.Validator) *Stage {
	return &Stage{validator: validator}
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string {
	return StageName
}

// Process implements pipeline.Stage. It always forwards.
func (s *Stage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
	raw, ok := BearerToken(r)
	if !ok {
		metrics.RecordAuthValidation("absent")
		metrics.RecordAdmissionDecision(StageName, "anonymous")
		return r, pipeline.Forward
	}

	result := s.validator.Validate(raw)
	metrics.RecordAuthValidation(result.Label())

	principal, valid := result.Principal()
	if !valid {
		metrics.RecordAdmissionDecision(StageName, "anonymous")
		if observability.ServerLogger != nil {
			observability.ServerLogger.Debug("Ignoring invalid bearer token",
				zap.String("reason", result.Reason().String()),
				zap.String("path", r.URL.Path))
		}
		return r, pipeline.Forward
	}

	metrics.RecordAdmissionDecision(StageName, "authenticated")
	return r.WithContext(WithPrincipal(r.Context(), principal)), pipeline.Forward
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
