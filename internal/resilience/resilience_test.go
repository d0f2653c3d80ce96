package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 || attempts != 3 {
		t.Fatalf("expected success on 3rd attempt, got v=%d attempts=%d", v, attempts)
	}
}

func TestRetryExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), 2, time.Millisecond, func() (int, error) {
		attempts++
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected an error once attempts are exhausted")
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestCircuitBreakerOpensOnBurstOfFailures(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(2*time.Second, 4, 4, 0.5, 200*time.Millisecond, 2)
	for i := 0; i < 4; i++ {
		if !cb.Allow() {
			t.Fatalf("expected allow while closed (iteration %d)", i)
		}
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatalf("expected breaker open after a burst of failures crossing the threshold")
	}
}

func TestCircuitBreakerHalfOpenRecoversOnSuccess(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(2*time.Second, 4, 4, 0.5, 50*time.Millisecond, 2)
	for i := 0; i < 4; i++ {
		cb.Allow()
		cb.RecordResult(false)
	}
	if !cb.Open() {
		t.Fatalf("expected breaker open")
	}
	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("expected a half-open probe to be allowed")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatalf("expected second half-open probe allowed")
	}
	cb.RecordResult(true)
	if cb.Open() {
		t.Fatalf("expected breaker closed after maxHalfOpenProbes consecutive successes")
	}
}
