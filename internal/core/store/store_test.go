package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightontime/flightontime/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLKeepsExistingToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?authToken=abc",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=abc", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.StoreConfig{Path: "file:" + dir + "/data/flightontime.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/data/flightontime.db", dsn)
		assert.DirExists(t, dir+"/data")
	})

	t.Run("BarePathGetsFilePrefix", func(t *testing.T) {
		dir := t.TempDir()
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: dir + "/stats.db"})
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/stats.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestAdmissionQuery(t *testing.T) {
	assert.Error(t, AdmissionQuery{}.Validate())
	assert.NoError(t, AdmissionQuery{All: true}.Validate())
	assert.NoError(t, AdmissionQuery{Key: "10.0.0.1"}.Validate())
	assert.NoError(t, AdmissionQuery{Prefix: "10.0."}.Validate())

	where, args, err := AdmissionQuery{Prefix: "10_0%"}.whereClause()
	require.NoError(t, err)
	assert.Contains(t, where, "LIKE")
	assert.Equal(t, []any{`10\_0\%%`}, args)

	where, args, err = AdmissionQuery{All: true, Key: "ignored"}.whereClause()
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestNilStore(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
	assert.Empty(t, s.Driver())
	assert.ErrorIs(t, s.Migrate(context.Background()), ErrNotInitialized)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrNotInitialized)
	_, err := s.ListAdmissions(context.Background(), AdmissionQuery{All: true})
	assert.ErrorIs(t, err, ErrNotInitialized)
}
