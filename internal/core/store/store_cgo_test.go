//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/core"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	store := openMemoryStore(t)
	require.Equal(t, "libsql", store.Driver())
	// Migrations are idempotent.
	require.NoError(t, store.Migrate(context.Background()))
}

func TestOpenLocalStore_ConfiguresSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/flightontime.db",
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)
}

func TestRecordAdmissions_AccumulatesAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rejectedAt := t0.Add(30 * time.Second)

	require.NoError(t, store.RecordAdmissions(ctx, []core.AdmissionStats{
		{Key: "198.51.100.1", Allowed: 10, FirstSeen: t0, LastSeen: t0.Add(10 * time.Second)},
		{Key: "198.51.100.2", Allowed: 1, FirstSeen: t0, LastSeen: t0},
	}))
	require.NoError(t, store.RecordAdmissions(ctx, []core.AdmissionStats{
		{Key: "198.51.100.1", Rejected: 2, FirstSeen: t0.Add(20 * time.Second), LastSeen: rejectedAt, LastRejectedAt: &rejectedAt},
		{Key: "", Allowed: 99},
	}))

	stats, err := store.GetAdmission(ctx, "198.51.100.1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(10), stats.Allowed)
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Equal(t, t0, stats.FirstSeen)
	assert.Equal(t, rejectedAt, stats.LastSeen)
	require.NotNil(t, stats.LastRejectedAt)
	assert.Equal(t, rejectedAt, *stats.LastRejectedAt)

	missing, err := store.GetAdmission(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListCountResetAdmissions(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordAdmissions(ctx, []core.AdmissionStats{
		{Key: "10.0.0.1", Allowed: 1, FirstSeen: now, LastSeen: now},
		{Key: "10.0.0.2", Allowed: 1, FirstSeen: now, LastSeen: now},
		{Key: "192.0.2.1", Allowed: 1, FirstSeen: now, LastSeen: now},
	}))

	all, err := store.ListAdmissions(ctx, AdmissionQuery{All: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.ClientKey("10.0.0.1"), all[0].Key)

	count, err := store.CountAdmissions(ctx, AdmissionQuery{Prefix: "10.0."})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	removed, err := store.ResetAdmissions(ctx, AdmissionQuery{Prefix: "10.0."})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err = store.CountAdmissions(ctx, AdmissionQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.ResetAdmissions(ctx, AdmissionQuery{})
	assert.Error(t, err)
}
