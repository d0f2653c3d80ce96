// Package resilience adapts libs/go/core/resilience (retry with full jitter,
// adaptive circuit breaker) to the simulator's domain: Retry guards the
// workload loader's file reads, CircuitBreaker guards a pluggable scheduling
// policy's Pick calls against repeated PolicyError results (spec §7).
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry executes fn with exponential backoff (base delay) + full jitter.
// delay acts as initial backoff; grows exponentially (x2) until attempts
// exhausted. Jitter is a random duration in [0, currentDelay].
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	cur := delay
	var lastErr error
	meter := otel.Meter("stompsim")
	attemptCounter, _ := meter.Int64Counter("stompsim_loader_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("stompsim_loader_retry_success_total")
	failCounter, _ := meter.Int64Counter("stompsim_loader_retry_fail_total")
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 10*time.Second {
			cur = 10 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
