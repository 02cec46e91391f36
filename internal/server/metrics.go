package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/flightontime/flightontime/internal/errors"
	"github.com/flightontime/flightontime/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// Hop-by-hop headers are not forwarded; net/http handles them.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// metricsHandler proxies the Prometheus exporter so callers can scrape
// /metrics on the main HTTP port. configuredPort is used until the
// exporter reports the port it actually bound.
func metricsHandler(configuredPort int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if observability.PrometheusExporter == nil {
			HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
			return
		}

		port := observability.GetMetricsPort()
		if port == 0 {
			port = configuredPort
		}
		metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
		if err != nil {
			HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
			return
		}
		if accept := r.Header.Get("Accept"); accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := metricsProxyClient.Do(req)
		if err != nil {
			HandleError(w, r, apperrors.WrapServiceUnavailable(r.Context(), err, "Prometheus exporter unavailable"))
			return
		}
		defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

		for key, values := range resp.Header {
			if hopByHopHeaders[http.CanonicalHeaderKey(key)] {
				continue
			}
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		if resp.Header.Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		}

		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
		}
	}
}
