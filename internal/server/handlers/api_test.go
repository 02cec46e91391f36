package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/core/auth"
	"github.com/flightontime/flightontime/internal/core/store"
)

type fakeTracker int

func (f fakeTracker) Len() int { return int(f) }

type fakeLister struct {
	got   store.AdmissionQuery
	stats []core.AdmissionStats
	err   error
}

func (f *fakeLister) ListAdmissions(_ context.Context, q store.AdmissionQuery) ([]core.AdmissionStats, error) {
	f.got = q
	return f.stats, f.err
}

func TestAPIHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	APIHealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, APIStatusMessage, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestMeHandler(t *testing.T) {
	t.Run("WithPrincipal", func(t *testing.T) {
		exp := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), core.Principal{
			Subject: "ana@example.com", Role: core.RoleUser, ExpiresAt: exp,
		}))

		rec := httptest.NewRecorder()
		MeHandler(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var p core.Principal
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
		assert.Equal(t, "ana@example.com", p.Subject)
		assert.True(t, exp.Equal(p.ExpiresAt))
	})

	t.Run("Anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		MeHandler(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAdmissionHandler(t *testing.T) {
	lister := &fakeLister{stats: []core.AdmissionStats{{Key: "10.0.0.1", Allowed: 10, Rejected: 1}}}
	handler := &AdmissionHandler{
		Limit:   LimitInfo{Backend: "memory", Capacity: 10, RefillTokens: 10, RefillInterval: "1m0s"},
		Tracker: fakeTracker(3),
		Stats:   lister,
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/ratelimit?prefix=10.0.", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AdmissionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.TrackedClients)
	assert.Equal(t, 3, *resp.TrackedClients)
	assert.Equal(t, int64(10), resp.Limit.Capacity)
	require.Len(t, resp.Stats, 1)
	assert.Equal(t, core.ClientKey("10.0.0.1"), resp.Stats[0].Key)
	assert.Equal(t, store.AdmissionQuery{Prefix: "10.0."}, lister.got)
}

func TestAdmissionHandlerWithoutOptionalSources(t *testing.T) {
	handler := &AdmissionHandler{Limit: LimitInfo{Backend: "redis"}}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/ratelimit", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AdmissionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.TrackedClients)
	assert.Empty(t, resp.Stats)
}

func TestAdmissionHandlerStoreFailure(t *testing.T) {
	handler := &AdmissionHandler{Stats: &fakeLister{err: errors.New("disk I/O error")}}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/ratelimit?key=10.0.0.1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk I/O error")
}
