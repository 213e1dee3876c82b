package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterRateLimits(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.OnError(errors.New("socket closed"))
	if cb.Failures() != 0 {
		t.Fatalf("plain errors must not count")
	}
	cb.OnError(RateLimitError{Provider: "gemini"})
	if cb.Open() {
		t.Fatalf("breaker opened too early")
	}
	cb.OnError(RateLimitError{Provider: "gemini"})
	if !cb.Open() {
		t.Fatalf("expected breaker open after threshold")
	}
	now = now.Add(2 * time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected breaker to allow after cooldown")
	}
	cb.OnSuccess()
	if cb.Failures() != 0 {
		t.Fatalf("expected reset on success")
	}
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	err := NewRetryPolicy(3, time.Millisecond).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("dial refused")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicyDoesNotRetryRateLimit(t *testing.T) {
	calls := 0
	err := NewRetryPolicy(3, time.Millisecond).Do(context.Background(), func(context.Context) error {
		calls++
		return RateLimitError{Provider: "elevenlabs"}
	})
	if !IsRateLimit(err) || calls != 1 {
		t.Fatalf("expected single rate-limited call, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRetryPolicy(5, time.Second).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("dial refused")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancellation after one call, got err=%v calls=%d", err, calls)
	}
}
