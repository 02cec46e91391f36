package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/core/pipeline"
	"github.com/flightontime/flightontime/internal/observability"
)

// statusRecorder captures what the handlers below wrote.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// EndpointPattern returns the chi route pattern for r, or a coarse bucket for
// unrouted paths so metric labels stay low-cardinality.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	switch path := r.URL.Path; path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/api/health", "/api/me", "/version", "/metrics", "/":
		return path
	default:
		if strings.HasPrefix(path, "/api/admin/") {
			return "/api/admin/*"
		}
		return "/unknown"
	}
}

// requestObservation is one finished request as seen by RequestMetrics.
type requestObservation struct {
	method        string
	path          string
	endpoint      string
	status        int
	admission     string
	duration      time.Duration
	requestBytes  int64
	responseBytes int64
	requestID     string
}

func (o requestObservation) labels() map[string]string {
	return map[string]string{
		"method":    o.method,
		"endpoint":  o.endpoint,
		"status":    strconv.Itoa(o.status),
		"admission": o.admission,
	}
}

// errorType classifies non-2xx responses. Admission rejections get their own
// bucket so they are not mistaken for client bugs.
func (o requestObservation) errorType() string {
	switch {
	case o.status == http.StatusTooManyRequests:
		return "rate_limited"
	case o.status == http.StatusServiceUnavailable && o.shortCircuited():
		return "admission_unavailable"
	case o.status >= 500:
		return "server_error"
	case o.status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// shortCircuited reports whether an admission stage answered the request.
func (o requestObservation) shortCircuited() bool {
	switch o.admission {
	case pipeline.LabelNone, pipeline.LabelBypass, pipeline.LabelForwarded, pipeline.LabelAborted:
		return false
	default:
		return true
	}
}

func (o requestObservation) emit() {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	labels := o.labels()
	_ = sys.Counter("http_requests_total", 1, labels)
	_ = sys.Histogram("http_request_duration_ms", o.duration, labels)

	sizeLabels := map[string]string{"method": o.method, "endpoint": o.endpoint}
	_ = sys.Gauge("http_request_size_bytes", float64(o.requestBytes), sizeLabels)
	_ = sys.Gauge("http_response_size_bytes", float64(o.responseBytes), sizeLabels)

	if kind := o.errorType(); kind != "" {
		errLabels := o.labels()
		errLabels["error_type"] = kind
		_ = sys.Counter("http_errors_total", 1, errLabels)
	}
}

func (o requestObservation) log() {
	if observability.ServerLogger == nil {
		return
	}
	observability.ServerLogger.Info("HTTP request completed",
		zap.String("method", o.method),
		zap.String("path", o.path),
		zap.String("endpoint", o.endpoint),
		zap.Int("status", o.status),
		zap.String("admission", o.admission),
		zap.Duration("duration", o.duration),
		zap.Int64("request_size", o.requestBytes),
		zap.Int64("response_size", o.responseBytes),
		zap.String("request_id", o.requestID))
}

// RequestMetrics records one counter, histogram and log line per request,
// labelled with what the admission pipeline did to it. It must wrap the
// pipeline so the trace it installs is filled in.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, trace := pipeline.WithTrace(r.Context())
		r = r.WithContext(ctx)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)

		obs := requestObservation{
			method:        r.Method,
			path:          r.URL.Path,
			endpoint:      EndpointPattern(r),
			status:        rec.status,
			admission:     trace.Label(),
			duration:      time.Since(start),
			requestBytes:  max(r.ContentLength, 0),
			responseBytes: rec.written,
			requestID:     GetRequestID(ctx),
		}
		obs.emit()
		obs.log()
	})
}
