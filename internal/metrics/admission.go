package metrics

import (
	"github.com/flightontime/flightontime/internal/observability"
)

// Admission pipeline metric names
const (
	AdmissionDecisionsTotal = "admission_decisions_total"
	AuthValidationsTotal    = "auth_validations_total"
	TrackedClients          = "ratelimit_tracked_clients"
	EvictionsTotal          = "ratelimit_evictions_total"
	AdmissionLogDropped     = "admission_log_dropped_total"
	AdmissionLogFlushes     = "admission_log_flushes_total"
)

// RecordAdmissionDecision counts a stage decision.
// Outcome is one of "allowed", "rejected" or "error".
func RecordAdmissionDecision(stage, outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		AdmissionDecisionsTotal,
		1,
		map[string]string{
			"stage":   stage,
			"outcome": outcome,
		},
	)
}

// RecordAuthValidation counts a bearer token validation by result
// (valid, malformed, signature_mismatch, expired, absent).
func RecordAuthValidation(result string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		AuthValidationsTotal,
		1,
		map[string]string{"result": result},
	)
}

// SetTrackedClients reports how many client buckets the registry holds.
func SetTrackedClients(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(TrackedClients, float64(count), nil)
}

// RecordEvictions counts idle buckets removed by cleanup.
func RecordEvictions(count int) {
	if observability.TelemetrySystem == nil || count <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(EvictionsTotal, float64(count), nil)
}

// RecordAdmissionLogDropped counts admission events discarded because the
// recorder buffer was full.
func RecordAdmissionLogDropped() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(AdmissionLogDropped, 1, nil)
}

// RecordAdmissionLogFlush counts a batch write to the admission log.
func RecordAdmissionLogFlush(success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(
		AdmissionLogFlushes,
		1,
		map[string]string{"status": status},
	)
}
