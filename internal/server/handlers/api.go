package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/core/auth"
	"github.com/flightontime/flightontime/internal/core/store"
	apperrors "github.com/flightontime/flightontime/internal/errors"
)

// APIStatusMessage is the body of GET /api/health.
const APIStatusMessage = "FlightOnTime API is ON!"

// APIHealthHandler is the plain-text liveness check used by API clients.
func APIHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(APIStatusMessage))
}

// MeHandler returns the authenticated principal. It must sit behind
// auth.RequireAuthenticated.
func MeHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		apperrors.RespondWithError(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ClientTracker reports how many client buckets are held in memory.
type ClientTracker interface {
	Len() int
}

// AdmissionLister reads persisted admission statistics.
type AdmissionLister interface {
	ListAdmissions(ctx context.Context, q store.AdmissionQuery) ([]core.AdmissionStats, error)
}

// LimitInfo describes the configured bucket shape.
type LimitInfo struct {
	Backend        string `json:"backend"`
	Capacity       int64  `json:"capacity"`
	RefillTokens   int64  `json:"refill_tokens"`
	RefillInterval string `json:"refill_interval"`
}

// AdmissionResponse is the body of GET /api/admin/ratelimit.
type AdmissionResponse struct {
	Limit          LimitInfo             `json:"limit"`
	TrackedClients *int                  `json:"tracked_clients,omitempty"`
	Stats          []core.AdmissionStats `json:"stats"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

// AdmissionHandler reports rate limiter state for operators.
type AdmissionHandler struct {
	Limit LimitInfo
	// Tracker is nil for the redis backend, where buckets live outside the process.
	Tracker ClientTracker
	// Stats is nil when the admission log is disabled.
	Stats AdmissionLister
}

func (h *AdmissionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := AdmissionResponse{
		Limit:       h.Limit,
		Stats:       []core.AdmissionStats{},
		GeneratedAt: time.Now().UTC(),
	}
	if h.Tracker != nil {
		n := h.Tracker.Len()
		resp.TrackedClients = &n
	}

	if h.Stats != nil {
		q := admissionQueryFrom(r)
		stats, err := h.Stats.ListAdmissions(r.Context(), q)
		if err != nil {
			apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "Failed to read admission statistics"))
			return
		}
		if stats != nil {
			resp.Stats = stats
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func admissionQueryFrom(r *http.Request) store.AdmissionQuery {
	values := r.URL.Query()
	if key := strings.TrimSpace(values.Get("key")); key != "" {
		return store.AdmissionQuery{Key: key}
	}
	if prefix := strings.TrimSpace(values.Get("prefix")); prefix != "" {
		return store.AdmissionQuery{Prefix: prefix}
	}
	return store.AdmissionQuery{All: true}
}
