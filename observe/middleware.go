package observe

import (
	"context"
	"time"
)

// Middleware instruments handlers with a segment and a completion log.
//
// Contract:
//   - Concurrency: functions returned by Instrument are safe for concurrent use
//     when the wrapped function is.
//   - Context: the wrapped function receives a context carrying its segment, so
//     its logs are correlated with the trace.
//   - Errors: errors and panics from the wrapped function propagate unchanged.
//   - Ownership: input and output values are passed through without
//     modification.
type Middleware struct {
	tracer *Tracer
	logger *Logger
}

// NewMiddleware creates a Middleware. Either component may be nil.
func NewMiddleware(tracer *Tracer, logger *Logger) *Middleware {
	return &Middleware{
		tracer: tracer,
		logger: logger,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) *Middleware {
	return NewMiddleware(obs.Tracer(), obs.Logger())
}

// Instrument wraps fn so that each call is captured as a segment named name
// and logged on completion ("handler completed" at INFO, "handler failed"
// through Exception).
func Instrument[In, Out any](m *Middleware, name string, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	if m == nil || fn == nil {
		return fn
	}
	if name == "" {
		name = funcName(fn)
	}

	logged := func(ctx context.Context, in In) (Out, error) {
		start := time.Now()
		out, err := fn(ctx, in)

		if m.logger != nil {
			fields := []Field{
				{Key: "handler", Value: name},
				{Key: "duration_ms", Value: float64(time.Since(start).Microseconds()) / 1000},
			}
			if err != nil {
				m.logger.Exception(ctx, "handler failed", err, fields...)
			} else {
				m.logger.Info(ctx, "handler completed", fields...)
			}
		}
		return out, err
	}

	if m.tracer == nil {
		return logged
	}
	return CaptureHandler(m.tracer, name, logged)
}
