package observe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/spartanobs/resilience"
)

const (
	defaultReportTimeout   = 2 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerReset    = 30 * time.Second
)

// guard isolates backend calls from caller code: it recovers panics, bounds
// each call with a timeout, and stops calling a backend after repeated
// failures until the reset period has passed.
type guard struct {
	timeout *resilience.Timeout
	breaker *resilience.CircuitBreaker
}

func newGuard(timeout time.Duration) *guard {
	return newGuardWithBreaker(timeout, resilience.CircuitBreakerConfig{
		MaxFailures:  defaultBreakerFailures,
		ResetTimeout: defaultBreakerReset,
	})
}

func newGuardWithBreaker(timeout time.Duration, breaker resilience.CircuitBreakerConfig) *guard {
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}
	return &guard{
		timeout: resilience.NewTimeout(resilience.TimeoutConfig{Timeout: timeout}),
		breaker: resilience.NewCircuitBreaker(breaker),
	}
}

// do runs op against the backend. Cancellation of ctx is not propagated;
// the call gets its own deadline.
func (g *guard) do(ctx context.Context, op func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.timeout.Execute(ctx, func(ctx context.Context) error {
			return safeCall(ctx, op)
		})
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ErrBreakerOpen
	case errors.Is(err, resilience.ErrTimeout):
		return ErrReportTimeout
	}
	return err
}

// safeCall converts a panic in op into an error.
func safeCall(ctx context.Context, op func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observe: backend panic: %v", r)
		}
	}()
	return op(ctx)
}

// isOpen reports whether the breaker currently rejects calls.
func (g *guard) isOpen() bool {
	return g.breaker.State() == resilience.StateOpen
}
