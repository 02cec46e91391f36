package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/core/auth"
	"github.com/flightontime/flightontime/internal/core/pipeline"
	"github.com/flightontime/flightontime/internal/core/ratelimit"
	"github.com/flightontime/flightontime/internal/core/store"
	"github.com/flightontime/flightontime/internal/core/token"
	"github.com/flightontime/flightontime/internal/observability"
	"github.com/flightontime/flightontime/internal/server/handlers"
)

const backendPingTimeout = 3 * time.Second

// admission holds everything serve builds around the pipeline, so shutdown
// can release it in order.
type admission struct {
	pipeline  *pipeline.Pipeline
	report    *handlers.AdmissionHandler
	checkers  map[string]handlers.HealthChecker
	recorder  *ratelimit.Recorder
	store     *store.Store
	redis     *redis.Client
	stopAsync context.CancelFunc
}

func bucketConfig(cfg *config.Config) ratelimit.Config {
	return ratelimit.Config{
		Capacity:       cfg.RateLimit.Capacity,
		RefillTokens:   cfg.RateLimit.RefillTokens,
		RefillInterval: cfg.RateLimit.RefillInterval,
	}
}

// buildAdmission wires auth, rate limiting and the admission log from cfg.
// Background work (janitor, recorder) runs until close is called.
func buildAdmission(ctx context.Context, cfg *config.Config) (*admission, error) {
	codec, err := token.NewCodec(token.Config{Secret: []byte(cfg.Auth.Secret)})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	asyncCtx, stop := context.WithCancel(ctx)
	a := &admission{
		checkers:  map[string]handlers.HealthChecker{},
		stopAsync: stop,
		report: &handlers.AdmissionHandler{
			Limit: handlers.LimitInfo{
				Backend:        cfg.RateLimit.Backend,
				Capacity:       cfg.RateLimit.Capacity,
				RefillTokens:   cfg.RateLimit.RefillTokens,
				RefillInterval: cfg.RateLimit.RefillInterval.String(),
			},
		},
	}

	limiter, err := a.buildLimiter(asyncCtx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	stageOpts := []ratelimit.StageOption{
		ratelimit.WithTrustForwardedFor(cfg.RateLimit.TrustForwardedFor),
	}

	if cfg.AdmissionLog.Enabled {
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("open admission store: %w", err)
		}
		a.store = db
		if err := db.Migrate(ctx); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("migrate admission store: %w", err)
		}
		a.checkers["store"] = handlers.CheckerFunc(db.Ping)
		a.report.Stats = db

		a.recorder = ratelimit.NewRecorder(db, cfg.AdmissionLog.Buffer, cfg.AdmissionLog.FlushInterval)
		go a.recorder.Run(asyncCtx)
		stageOpts = append(stageOpts, ratelimit.WithObservers(a.recorder))
	}

	a.pipeline = pipeline.New(
		pipeline.NewBypassList(cfg.Pipeline.BypassPrefixes...),
		auth.NewStage(codec),
		ratelimit.NewStage(limiter, stageOpts...),
	)
	return a, nil
}

func (a *admission) buildLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, error) {
	bucket := bucketConfig(cfg)

	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		client, limiter, err := newRedisLimiter(cfg)
		if err != nil {
			return nil, err
		}
		a.redis = client

		pingCtx, cancel := context.WithTimeout(ctx, backendPingTimeout)
		defer cancel()
		if err := limiter.Ping(pingCtx); err != nil {
			// Requests fail closed with 503 until redis answers.
			observability.ServerLogger.Warn("Redis rate limit backend not reachable at startup",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		a.checkers["redis"] = handlers.CheckerFunc(limiter.Ping)
		return limiter, nil

	default:
		registry, err := ratelimit.NewRegistry(bucket, ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL))
		if err != nil {
			return nil, err
		}
		registry.StartJanitor(ctx, cfg.RateLimit.CleanupInterval)
		a.report.Tracker = registry
		return registry, nil
	}
}

// newRedisLimiter connects the shared bucket store described by cfg. The
// caller owns the returned client.
func newRedisLimiter(cfg *config.Config) (*redis.Client, *ratelimit.RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	limiter, err := ratelimit.NewRedisLimiter(client, bucketConfig(cfg), ratelimit.WithRedisPrefix(cfg.Redis.Prefix))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, limiter, nil
}

// close stops background work, drains the admission log and releases
// connections. It is safe on a partially built admission.
func (a *admission) close(ctx context.Context) {
	if a.stopAsync != nil {
		a.stopAsync()
	}
	if a.recorder != nil {
		select {
		case <-a.recorder.Done():
		case <-ctx.Done():
			observability.ServerLogger.Warn("Admission log did not drain before shutdown deadline")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			observability.ServerLogger.Warn("Failed to close admission store", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			observability.ServerLogger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}
