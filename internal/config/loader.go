// Package config loads the typed application configuration from viper.
//
// Defaults are registered with SetDefaults, the optional YAML file and
// FLIGHTONTIME_* environment variables are layered on top by viper, and Load
// decodes the merged settings with mapstructure and validates them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// Load decodes and validates the configuration held by v.
// It is safe to call multiple times, for example on SIGHUP reload.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a raw settings map into a Config without validating it.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))

	return cfg, nil
}

// Validate checks cross-field constraints. The signing secret is checked by
// ValidateAuth since not every command needs it.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	rl := c.RateLimit
	if rl.Capacity < 1 {
		errs = append(errs, fmt.Errorf("ratelimit.capacity must be >= 1, got %d", rl.Capacity))
	}
	if rl.RefillTokens < 1 {
		errs = append(errs, fmt.Errorf("ratelimit.refill_tokens must be >= 1, got %d", rl.RefillTokens))
	}
	if rl.RefillInterval <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.refill_interval must be positive, got %s", rl.RefillInterval))
	}

	switch rl.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr is required when ratelimit.backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend must be %q or %q, got %q", BackendMemory, BackendRedis, rl.Backend))
	}

	if c.AdmissionLog.Enabled && c.AdmissionLog.Buffer < 1 {
		errs = append(errs, fmt.Errorf("admission_log.buffer must be >= 1, got %d", c.AdmissionLog.Buffer))
	}

	return errors.Join(errs...)
}

// ValidateAuth checks the token signing settings.
func (c *Config) ValidateAuth() error {
	if len(c.Auth.Secret) < MinSecretLength {
		return fmt.Errorf("auth.secret must be at least %d bytes (set FLIGHTONTIME_AUTH_SECRET)", MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
