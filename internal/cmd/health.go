package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/core/ratelimit"
	"github.com/flightontime/flightontime/internal/core/store"
	"github.com/flightontime/flightontime/internal/observability"
)

// selfCheck is one step of `flightontime health`. A nil run skips the step.
type selfCheck struct {
	name string
	exit foundry.ExitCode
	run  func(ctx context.Context, cfg *config.Config) error
}

func selfChecks(cfg *config.Config) []selfCheck {
	checks := []selfCheck{
		{name: "auth secret", exit: foundry.ExitConfigInvalid, run: func(_ context.Context, cfg *config.Config) error {
			return cfg.ValidateAuth()
		}},
		{name: "bucket shape", exit: foundry.ExitConfigInvalid, run: func(_ context.Context, cfg *config.Config) error {
			return bucketConfig(cfg).Validate()
		}},
	}
	if cfg.AdmissionLog.Enabled {
		checks = append(checks, selfCheck{name: "admission store", exit: foundry.ExitFailure, run: checkStore})
	}
	if cfg.RateLimit.Backend == config.BackendRedis {
		checks = append(checks, selfCheck{name: "redis backend", exit: foundry.ExitExternalServiceUnavailable, run: checkRedis})
	}
	return checks
}

func checkStore(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup
	return db.Ping(ctx)
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close() // nolint:errcheck // best-effort cleanup

	limiter, err := ratelimit.NewRedisLimiter(client, bucketConfig(cfg), ratelimit.WithRedisPrefix(cfg.Redis.Prefix))
	if err != nil {
		return err
	}
	return limiter.Ping(ctx)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify configuration, signing secret and admission backends before starting the server.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
		}
		logger.Info("✅ Configuration loaded")

		for _, check := range selfChecks(cfg) {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			err := check.run(ctx, cfg)
			cancel()
			if err != nil {
				ExitWithCode(logger, check.exit, fmt.Sprintf("❌ FAIL: %s", check.name), err)
			}
			logger.Debug("Check passed", zap.String("check", check.name))
			logger.Info("✅ " + check.name)
		}

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
