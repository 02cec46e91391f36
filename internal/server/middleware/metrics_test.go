package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightontime/flightontime/internal/core/pipeline"
	"github.com/flightontime/flightontime/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	originalTelemetry := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = originalTelemetry
	})

	return collector
}

// statusStage short-circuits with a fixed status.
type statusStage struct {
	name   string
	status int
}

func (s statusStage) Name() string { return s.name }

func (s statusStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
	w.WriteHeader(s.status)
	return r, pipeline.ShortCircuit
}

func admitted(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("admitted"))
}

func TestRequestMetrics_ForwardedRequest(t *testing.T) {
	collector := setupTelemetry(t)

	var label string
	p := pipeline.New(pipeline.DefaultBypass())
	handler := RequestMetrics(p.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label = pipeline.TraceFrom(r.Context()).Label()
		admitted(w, r)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admitted", rec.Body.String())
	assert.Equal(t, pipeline.LabelForwarded, label)
	assert.Greater(t, collector.CountMetricsByName("http_requests_total"), 0)
	assert.Greater(t, collector.CountMetricsByName("http_request_duration_ms"), 0)
	assert.Greater(t, collector.CountMetricsByName("http_request_size_bytes"), 0)
	assert.Greater(t, collector.CountMetricsByName("http_response_size_bytes"), 0)
	assert.Zero(t, collector.CountMetricsByName("http_errors_total"))
}

func TestRequestMetrics_RejectedRequestCountsAsError(t *testing.T) {
	collector := setupTelemetry(t)

	p := pipeline.New(nil, statusStage{name: "ratelimit", status: http.StatusTooManyRequests})
	handler := RequestMetrics(p.Handler(http.HandlerFunc(admitted)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Greater(t, collector.CountMetricsByName("http_requests_total"), 0)
	assert.Greater(t, collector.CountMetricsByName("http_errors_total"), 0)
}

func TestRequestMetrics_WithTelemetryDisabled(t *testing.T) {
	originalTelemetry := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.TelemetrySystem = originalTelemetry
	})

	handler := RequestMetrics(http.HandlerFunc(admitted))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestObservation_ErrorType(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		admission string
		want      string
	}{
		{"ok", http.StatusOK, pipeline.LabelForwarded, ""},
		{"rate limited", http.StatusTooManyRequests, "ratelimit", "rate_limited"},
		{"limiter backend down", http.StatusServiceUnavailable, "ratelimit", "admission_unavailable"},
		{"metrics exporter down", http.StatusServiceUnavailable, pipeline.LabelBypass, "server_error"},
		{"handler 503", http.StatusServiceUnavailable, pipeline.LabelForwarded, "server_error"},
		{"panic", http.StatusInternalServerError, pipeline.LabelAborted, "server_error"},
		{"unauthorized", http.StatusUnauthorized, pipeline.LabelForwarded, "client_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := requestObservation{status: tc.status, admission: tc.admission}
			assert.Equal(t, tc.want, obs.errorType())
		})
	}
}

func TestRequestObservation_Labels(t *testing.T) {
	obs := requestObservation{method: http.MethodGet, endpoint: "/api/me", status: 429, admission: "ratelimit"}
	assert.Equal(t, map[string]string{
		"method":    "GET",
		"endpoint":  "/api/me",
		"status":    "429",
		"admission": "ratelimit",
	}, obs.labels())
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = rec.Write([]byte("abc"))
	rec.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rec.status)
	assert.Equal(t, int64(3), rec.written)
	assert.NotNil(t, rec.Unwrap())
}

func TestEndpointPattern_UnroutedPaths(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/api/health", "/api/health"},
		{"/api/me", "/api/me"},
		{"/api/admin/ratelimit", "/api/admin/*"},
		{"/api/flights/123", "/unknown"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, EndpointPattern(httptest.NewRequest(http.MethodGet, tt.path, nil)))
		})
	}
}

func TestRequestMetrics_DurationMeasurement(t *testing.T) {
	collector := setupTelemetry(t)

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
	}))

	start := time.Now()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/flights", nil))

	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Greater(t, collector.CountMetricsByName("http_request_duration_ms"), 0)
}
