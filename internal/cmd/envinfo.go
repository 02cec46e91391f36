package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/output"
)

const redacted = "(set)"

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective configuration (secrets redacted) as YAML.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rendered, err := output.MarshalYAML(envInfo(cfg))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

type envInfoReport struct {
	Application map[string]string `yaml:"application"`
	Runtime     map[string]any    `yaml:"runtime"`
	ConfigFile  string            `yaml:"config_file"`
	Config      map[string]any    `yaml:"config"`
}

func envInfo(cfg *config.Config) envInfoReport {
	deps := crucible.GetVersion()
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(none; default " + config.DefaultConfigPath() + ")"
	}

	return envInfoReport{
		Application: map[string]string{
			"name":       GetAppIdentity().BinaryName,
			"version":    versionInfo.Version,
			"commit":     versionInfo.Commit,
			"build_date": versionInfo.BuildDate,
			"gofulmen":   deps.Gofulmen,
			"crucible":   deps.Crucible,
		},
		Runtime: map[string]any{
			"go":      runtime.Version(),
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
			"num_cpu": runtime.NumCPU(),
		},
		ConfigFile: configFile,
		Config:     redactedSettings(cfg),
	}
}

// redactedSettings renders cfg as a nested map with credentials masked.
func redactedSettings(cfg *config.Config) map[string]any {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return redacted
	}

	store := map[string]any{"driver": cfg.Store.Driver, "auth_token": mask(cfg.Store.AuthToken)}
	if cfg.Store.URL != "" {
		store["url"] = cfg.Store.URL
	} else {
		store["path"] = cfg.Store.Path
	}

	settings := map[string]any{
		"server": map[string]any{
			"host":          cfg.Server.Host,
			"port":          cfg.Server.Port,
			"read_timeout":  cfg.Server.ReadTimeout.String(),
			"write_timeout": cfg.Server.WriteTimeout.String(),
		},
		"logging": map[string]any{"level": cfg.Logging.Level, "profile": cfg.Logging.Profile},
		"metrics": map[string]any{"enabled": cfg.Metrics.Enabled, "port": cfg.Metrics.Port},
		"store":   store,
		"auth": map[string]any{
			"secret":    mask(cfg.Auth.Secret),
			"token_ttl": cfg.Auth.TokenTTL.String(),
		},
		"ratelimit": map[string]any{
			"backend":             cfg.RateLimit.Backend,
			"capacity":            cfg.RateLimit.Capacity,
			"refill_tokens":       cfg.RateLimit.RefillTokens,
			"refill_interval":     cfg.RateLimit.RefillInterval.String(),
			"idle_ttl":            cfg.RateLimit.IdleTTL.String(),
			"trust_forwarded_for": cfg.RateLimit.TrustForwardedFor,
		},
		"pipeline": map[string]any{"bypass_prefixes": cfg.Pipeline.BypassPrefixes},
		"admission_log": map[string]any{
			"enabled":        cfg.AdmissionLog.Enabled,
			"buffer":         cfg.AdmissionLog.Buffer,
			"flush_interval": cfg.AdmissionLog.FlushInterval.String(),
		},
	}
	if cfg.RateLimit.Backend == config.BackendRedis {
		settings["redis"] = map[string]any{
			"addr":     cfg.Redis.Addr,
			"db":       cfg.Redis.DB,
			"prefix":   cfg.Redis.Prefix,
			"password": mask(cfg.Redis.Password),
		}
	}
	return settings
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
