package cmd

import (
	"context"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/config"
	errwrap "github.com/flightontime/flightontime/internal/errors"
	"github.com/flightontime/flightontime/internal/metrics"
	"github.com/flightontime/flightontime/internal/observability"
	"github.com/flightontime/flightontime/internal/server"
	"github.com/flightontime/flightontime/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with the admission pipeline (bearer token
authentication and per-client rate limiting) in front of every route.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-validate configuration (admission settings apply on restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
		}
		if err := cfg.ValidateAuth(); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid auth configuration", err)
		}

		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(namespace, cfg.Metrics.Port); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now())
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("ratelimit_backend", cfg.RateLimit.Backend),
			zap.Int64("ratelimit_capacity", cfg.RateLimit.Capacity),
			zap.Duration("ratelimit_refill_interval", cfg.RateLimit.RefillInterval),
			zap.Bool("admission_log", cfg.AdmissionLog.Enabled))

		adm, err := buildAdmission(cmd.Context(), cfg)
		if err != nil {
			observability.ServerLogger.Error("Failed to build admission pipeline", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "admission pipeline initialization failed")
		}

		hm := handlers.NewHealthManager(versionInfo.Version)
		for name, checker := range adm.checkers {
			hm.RegisterChecker(name, checker)
		}
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			MetricsPort:  cfg.Metrics.Port,
			Pipeline:     adm.pipeline,
			Health:       hm,
			Admission:    adm.report,
			Build:        versionInfo,
			Identity:     identity,
			AdminToken:   os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN"),
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, then admission state, then logs.
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			observability.SyncLoggers()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			adm.close(closeCtx)
			observability.ServerLogger.Info("Admission state released")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadConfig(ctx, cfg)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
		hm.MarkStarted()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			adm.close(context.Background())
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// reloadConfig re-reads the config file and validates it. The running
// pipeline keeps its settings; changed admission settings are reported so
// operators know a restart is needed.
func reloadConfig(ctx context.Context, running *config.Config) error {
	logger := observability.ServerLogger
	logger.Info("Received SIGHUP: reloading configuration")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			metrics.RecordConfigReload(false)
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
	}

	next, err := loadConfig()
	if err == nil {
		err = next.ValidateAuth()
	}
	if err != nil {
		metrics.RecordConfigReload(false)
		logger.Error("Reloaded configuration is invalid; keeping current settings", zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	metrics.RecordConfigReload(true)
	if changed := restartRequired(running, next); len(changed) > 0 {
		logger.Warn("Configuration changed; restart to apply", zap.Strings("sections", changed))
	} else {
		logger.Info("Configuration reloaded; no admission changes")
	}
	return nil
}

// restartRequired lists config sections whose changes the running server
// cannot apply in place.
func restartRequired(running, next *config.Config) []string {
	var changed []string
	if running.Auth != next.Auth {
		changed = append(changed, "auth")
	}
	if running.RateLimit != next.RateLimit {
		changed = append(changed, "ratelimit")
	}
	if running.Redis != next.Redis {
		changed = append(changed, "redis")
	}
	if !slices.Equal(running.Pipeline.BypassPrefixes, next.Pipeline.BypassPrefixes) {
		changed = append(changed, "pipeline")
	}
	if running.AdmissionLog != next.AdmissionLog {
		changed = append(changed, "admission_log")
	}
	if running.Server != next.Server {
		changed = append(changed, "server")
	}
	return changed
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
