package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/core/token"
	"github.com/flightontime/flightontime/internal/output"
)

const testSecret = "cmd-test-secret-0123456789abcdefgh"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	v := viper.New()
	config.SetDefaults(v)
	v.Set("auth.secret", testSecret)
	v.Set("admission_log.enabled", false)
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestBuildAdmission_Memory(t *testing.T) {
	cfg := testConfig(t)

	adm, err := buildAdmission(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { adm.close(context.Background()) })

	assert.Equal(t, []string{"auth", "ratelimit"}, adm.pipeline.Stages())
	assert.NotNil(t, adm.report.Tracker)
	assert.Nil(t, adm.report.Stats)
	assert.Nil(t, adm.recorder)
	assert.Empty(t, adm.checkers)
	assert.Equal(t, int64(10), adm.report.Limit.Capacity)
	assert.True(t, adm.pipeline.Bypass().Matches("/api/auth/login"))
}

func TestBuildAdmission_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()

	adm, err := buildAdmission(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { adm.close(context.Background()) })

	assert.Nil(t, adm.report.Tracker, "redis buckets are not tracked in process")
	require.Contains(t, adm.checkers, "redis")
	assert.NoError(t, adm.checkers["redis"].CheckHealth(context.Background()))
}

func TestBuildAdmission_RejectsShortSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Secret = "short"

	_, err := buildAdmission(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRestartRequired(t *testing.T) {
	running := testConfig(t)
	next := *running
	assert.Empty(t, restartRequired(running, &next))

	next.RateLimit.Capacity = 20
	next.Pipeline.BypassPrefixes = append([]string{"/status"}, running.Pipeline.BypassPrefixes...)
	assert.Equal(t, []string{"ratelimit", "pipeline"}, restartRequired(running, &next))
}

func TestIssueToken(t *testing.T) {
	codec, err := token.NewCodec(token.Config{Secret: []byte(testSecret)})
	require.NoError(t, err)

	issued, err := issueToken(codec, " ops@example.com ", "admin", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", issued.Subject)
	assert.Equal(t, core.RoleAdmin, issued.Role)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), issued.ExpiresAt, 2*time.Second)

	result := codec.Validate(issued.Token)
	require.True(t, result.IsValid())

	_, err = issueToken(codec, "  ", "", time.Minute)
	assert.ErrorContains(t, err, "--subject")
}

func TestWriteIssuedToken(t *testing.T) {
	issued := issuedToken{Token: "a.b.c", Subject: "svc", ExpiresAt: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}

	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)

	require.NoError(t, writeIssuedToken(c, output.FormatTable, issued))
	assert.Equal(t, "a.b.c\n", buf.String())

	buf.Reset()
	require.NoError(t, writeIssuedToken(c, output.FormatJSON, issued))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "svc", decoded["subject"])
	assert.NotContains(t, decoded, "role")

	buf.Reset()
	require.NoError(t, writeIssuedToken(c, output.FormatYAML, issued))
	assert.Contains(t, buf.String(), "token: a.b.c")
}

func TestRedactedSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.Password = "hunter2"

	rendered, err := output.MarshalYAML(redactedSettings(cfg))
	require.NoError(t, err)
	assert.NotContains(t, rendered, testSecret)
	assert.NotContains(t, rendered, "hunter2")
	assert.Contains(t, rendered, redacted)
	assert.Contains(t, rendered, "backend: redis")
}

func TestSelfChecks(t *testing.T) {
	cfg := testConfig(t)
	assert.Len(t, selfChecks(cfg), 2)

	cfg.AdmissionLog.Enabled = true
	cfg.RateLimit.Backend = config.BackendRedis
	names := []string{}
	for _, c := range selfChecks(cfg) {
		names = append(names, c.name)
	}
	assert.Equal(t, []string{"auth secret", "bucket shape", "admission store", "redis backend"}, names)

	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()
	assert.NoError(t, checkRedis(context.Background(), cfg))
}

func TestAdmissionQueryFrom(t *testing.T) {
	c := &cobra.Command{}
	admissionQueryFlags(c, "List")
	require.NoError(t, c.Flags().Set("prefix", " 10.0. "))

	q := admissionQueryFrom(c)
	assert.Equal(t, "10.0.", q.Prefix)
	assert.False(t, q.All)
	assert.NoError(t, q.Validate())
}

func TestCommandSinkRejectsBothTargets(t *testing.T) {
	c := &cobra.Command{}
	addOutputFlags(c, "table|json")
	require.NoError(t, c.Flags().Set("out", "a.json"))
	require.NoError(t, c.Flags().Set("out-dir", t.TempDir()))

	_, err := commandSink(c, output.FormatJSON, "admission.list")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestCheckBucketReset(t *testing.T) {
	cfg := testConfig(t)
	assert.ErrorContains(t, checkBucketReset(cfg, "198.51.100.7"), "ratelimit.backend=redis")

	cfg.RateLimit.Backend = config.BackendRedis
	assert.ErrorContains(t, checkBucketReset(cfg, ""), "--key")
	assert.NoError(t, checkBucketReset(cfg, "198.51.100.7"))
}

func TestResetLiveBucket_RestoresCapacity(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	ctx := context.Background()

	client, limiter, err := newRedisLimiter(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	key := core.ClientKey("198.51.100.7")
	for i := int64(0); i < cfg.RateLimit.Capacity; i++ {
		d, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, resetLiveBucket(ctx, cfg, key))
	assert.False(t, mr.Exists(cfg.Redis.Prefix+string(key)))

	d, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, cfg.RateLimit.Capacity-1, d.Remaining)
}

func TestResetLiveBucket_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	mr.Close()

	assert.Error(t, resetLiveBucket(context.Background(), cfg, "198.51.100.7"))
}
