package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values come from, in increasing precedence: built-in defaults, the YAML
// config file, FLIGHTONTIME_* environment variables and command flags.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Health       HealthConfig       `mapstructure:"health"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	AdmissionLog AdmissionLogConfig `mapstructure:"admission_log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level (simple or structured)
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Port is the dedicated Prometheus exporter port. The main HTTP port
	// proxies it at /metrics.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig holds the token signing settings.
type AuthConfig struct {
	// Secret is the HMAC-SHA256 signing key, at least 32 bytes.
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// RateLimitConfig shapes the per-client token buckets.
type RateLimitConfig struct {
	// Backend is "memory" (per process) or "redis" (shared across replicas).
	Backend           string        `mapstructure:"backend"`
	Capacity          int64         `mapstructure:"capacity"`
	RefillTokens      int64         `mapstructure:"refill_tokens"`
	RefillInterval    time.Duration `mapstructure:"refill_interval"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
}

// RedisConfig is used when ratelimit.backend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// PipelineConfig lists paths exempt from admission control.
type PipelineConfig struct {
	BypassPrefixes []string `mapstructure:"bypass_prefixes"`
}

// AdmissionLogConfig controls the asynchronous admission statistics log.
type AdmissionLogConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Buffer        int           `mapstructure:"buffer"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)
