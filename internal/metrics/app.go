package metrics

import (
	"time"

	"github.com/flightontime/flightontime/internal/observability"
)

// Server-level metric names.
const (
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
	ConfigReloadsTotal  = "app_config_reloads_total"
)

// RecordHealthCheck records one health checker execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(t time.Time) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(t.Unix()), nil)
	}
}

// RecordConfigReload counts SIGHUP reload attempts.
func RecordConfigReload(success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(ConfigReloadsTotal, 1, map[string]string{"status": status})
}
