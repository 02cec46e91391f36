package errors

import (
	"context"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/flightontime/flightontime/internal/server/middleware"
)

// Client errors (400-level)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

// NewUnauthorizedError is returned when a protected route sees no valid principal.
func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeUnauthorized, message)
	env, _ = env.WithSeverity(errors.SeverityMedium)
	return env
}

// NewForbiddenError is returned when the principal lacks the required role.
func NewForbiddenError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeForbidden, message)
	env, _ = env.WithSeverity(errors.SeverityMedium)
	return env
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// NewRateLimitedError carries the retry hint in the envelope details.
func NewRateLimitedError(message string, retryAfterSeconds int64) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeTooManyRequests, message)
	return env.WithDetails(map[string]interface{}{
		"retry_after_seconds": retryAfterSeconds,
	})
}

// Server errors (500-level)

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeServiceUnavailable, message)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// Wrap helpers attach correlation and trace IDs from the request context.

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

// WrapServiceUnavailable reports a failing backing service, such as the
// shared rate limit store.
func WrapServiceUnavailable(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	env := wrap(ctx, CodeServiceUnavailable, err, message)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// WrapConfigInvalid reports a configuration that failed to load or validate.
func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))
	return withWrappedError(envelope, err)
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// extractTraceID reuses the correlation ID until a tracing system is wired.
func extractTraceID(ctx context.Context) string {
	return extractCorrelationID(ctx)
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}
	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(correlationID)
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}
