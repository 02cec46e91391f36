package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeTooManyRequests:    http.StatusTooManyRequests,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeNotFound:           http.StatusNotFound,
		CodeInternal:           http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestRespondWithEnvelope_RateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/flights", nil)

	RespondWithEnvelope(rec, req, NewRateLimitedError("slow down", 6))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeTooManyRequests, body.Error.Code)
	assert.EqualValues(t, 6, body.Error.Details["retry_after_seconds"])
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestRespondWithError_HidesWrappedError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/flights", nil)

	env := WrapServiceUnavailable(req.Context(), stderrors.New("dial tcp: refused"), "rate limiter unavailable")
	RespondWithError(rec, req, env)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(stderrors.New("boom"))
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "boom", env.Context["wrapped_error"])

	original := NewForbiddenError("nope")
	assert.Same(t, original, EnsureEnvelope(original))

	assert.Equal(t, CodeInternal, EnsureEnvelope(nil).Code)
}
