// Package resilience bounds calls into telemetry backends.
//
// An emission layer must never let a slow or failing backend become the
// caller's problem. Two patterns cover that:
//
//   - Circuit Breaker: stops calling a backend after repeated failures and
//     lets a single request through once the reset timeout has passed.
//
//   - Timeout: bounds each call with its own deadline. The deadline is
//     detached from the caller's context, so a handler that has already
//     returned or been canceled does not drop the telemetry it produced.
//
// The two compose; the breaker wraps the timeout:
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
//	to := resilience.NewTimeout(resilience.TimeoutConfig{Timeout: 2 * time.Second})
//
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return to.Execute(ctx, submit)
//	})
package resilience
