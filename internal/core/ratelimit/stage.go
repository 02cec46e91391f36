package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/core/pipeline"
	apperrors "github.com/flightontime/flightontime/internal/errors"
	"github.com/flightontime/flightontime/internal/metrics"
	"github.com/flightontime/flightontime/internal/observability"
)

// StageName identifies the rate limit stage in metrics and logs.
const StageName = "ratelimit"

// RejectionMessage is the plain-text body of a 429 response.
const RejectionMessage = "Too many requests. Try again later."

// Observer is notified of every admission decision. Implementations must
// not block.
type Observer interface {
	ObserveAdmission(ctx context.Context, event core.AdmissionEvent)
}

// Stage charges one token per request against the caller's bucket and
// rejects the request with 429 when the bucket is empty.
type Stage struct {
	limiter           Limiter
	trustForwardedFor bool
	observers         []Observer
	clock             Clock
	logSampler        *rate.Limiter
}

// StageOption customizes a Stage.
type StageOption func(*Stage)

// WithTrustForwardedFor controls whether X-Forwarded-For identifies clients.
func WithTrustForwardedFor(trust bool) StageOption {
	return func(s *Stage) {
		s.trustForwardedFor = trust
	}
}

// WithObservers registers decision observers.
func WithObservers(observers ...Observer) StageOption {
	return func(s *Stage) {
		for _, o := range observers {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
	}
}

// WithStageClock overrides the timestamp source for admission events.
func WithStageClock(clock Clock) StageOption {
	return func(s *Stage) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRejectionLogRate caps how many rejection warnings are logged.
func WithRejectionLogRate(every time.Duration, burst int) StageOption {
	return func(s *Stage) {
		if every <= 0 {
			s.logSampler = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.logSampler = rate.NewLimiter(rate.Every(every), burst)
	}
}

// NewStage builds the stage. X-Forwarded-For is trusted by default.
func NewStage(limiter Limiter, opts ...StageOption) *Stage {
	s := &Stage{
		limiter:           limiter,
		trustForwardedFor: true,
		clock:             time.Now,
		logSampler:        rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string {
	return StageName
}

// Process implements pipeline.Stage.
func (s *Stage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
	ctx := r.Context()
	key := ResolveClientKey(r, s.trustForwardedFor)
	requestID := core.RequestIDFrom(ctx)

	decision, err := s.limiter.Allow(ctx, key)
	if err != nil {
		metrics.RecordAdmissionDecision(StageName, "error")
		apperrors.RespondWithEnvelope(w, r,
			apperrors.WrapServiceUnavailable(ctx, err, "Rate limiter unavailable"))
		return r, pipeline.ShortCircuit
	}

	s.notify(ctx, core.AdmissionEvent{
		Key:       key,
		Allowed:   decision.Allowed,
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: requestID,
		At:        s.clock(),
	})

	header := w.Header()
	header.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
	header.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

	if decision.Allowed {
		metrics.RecordAdmissionDecision(StageName, "allowed")
		return r, pipeline.Forward
	}

	metrics.RecordAdmissionDecision(StageName, "rejected")
	retryAfter := decision.RetryAfterSeconds()
	header.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

	if observability.ServerLogger != nil && s.logSampler.Allow() {
		observability.ServerLogger.Warn("Rate limit exceeded",
			zap.String("client", string(key)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int64("retry_after_seconds", retryAfter),
			zap.String("request_id", requestID))
	}

	http.Error(w, RejectionMessage, http.StatusTooManyRequests)
	return r, pipeline.ShortCircuit
}

func (s *Stage) notify(ctx context.Context, event core.AdmissionEvent) {
	for _, o := range s.observers {
		o.ObserveAdmission(ctx, event)
	}
}
