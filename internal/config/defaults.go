package config

import (
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"

	"github.com/flightontime/flightontime/internal/appid"
	"github.com/flightontime/flightontime/internal/core/pipeline"
)

// MinSecretLength mirrors the token codec requirement so configuration
// errors surface before any component is built.
const MinSecretLength = 32

// SetDefaults registers every known key on v. Keys must be registered for
// environment overrides to show up in AllSettings.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Metrics and health
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)

	// Token signing
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "1h")

	// Ten requests per minute per client
	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.capacity", 10)
	v.SetDefault("ratelimit.refill_tokens", 10)
	v.SetDefault("ratelimit.refill_interval", "1m")
	v.SetDefault("ratelimit.idle_ttl", "10m")
	v.SetDefault("ratelimit.cleanup_interval", "1m")
	v.SetDefault("ratelimit.trust_forwarded_for", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "flightontime:ratelimit:")

	v.SetDefault("pipeline.bypass_prefixes", []string(pipeline.DefaultBypass()))

	v.SetDefault("admission_log.enabled", true)
	v.SetDefault("admission_log.buffer", 4096)
	v.SetDefault("admission_log.flush_interval", "5s")
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.ConfigName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appid.BinaryName + ".db"
	}
	return filepath.Join(dataDir, appid.BinaryName+".db")
}

// BindEnv maps FLIGHTONTIME_SECTION_KEY environment variables onto
// section.key settings.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(strings.TrimSuffix(appid.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
