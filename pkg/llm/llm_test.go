package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/resilience"
)

type stubAdapter struct {
	errs  []error
	calls int
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) Stream(ctx context.Context, input Context) (<-chan Delta, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	ch := make(chan Delta, 2)
	ch <- Delta{Text: "Hallo "}
	ch <- Delta{Text: "Mia!"}
	close(ch)
	return ch, nil
}

func TestContextSplitsSystemTurn(t *testing.T) {
	c := Context{Turns: []frames.Turn{
		{Role: frames.RoleSystem, Content: "sys"},
		{Role: frames.RoleUser, Content: "hi"},
	}}
	if c.System() != "sys" {
		t.Fatalf("unexpected system %q", c.System())
	}
	if conv := c.Conversation(); len(conv) != 1 || conv[0].Content != "hi" {
		t.Fatalf("unexpected conversation %v", conv)
	}
	if (Context{Turns: []frames.Turn{{Role: frames.RoleUser, Content: "x"}}}).System() != "" {
		t.Fatalf("expected empty system without leading system turn")
	}
}

func TestCollect(t *testing.T) {
	ch, _ := (&stubAdapter{}).Stream(context.Background(), Context{})
	text, err := Collect(context.Background(), ch)
	if err != nil || text != "Hallo Mia!" {
		t.Fatalf("unexpected collect %q %v", text, err)
	}

	failing := make(chan Delta, 2)
	failing <- Delta{Text: "Hal"}
	failing <- Delta{Err: errors.New("reset")}
	close(failing)
	text, err = Collect(context.Background(), failing)
	if err == nil || text != "Hal" {
		t.Fatalf("expected partial text and error, got %q %v", text, err)
	}
}

func TestCircuitBreakerAdapterDeniesWhenOpen(t *testing.T) {
	rl := resilience.RateLimitError{Provider: "stub", Message: "429"}
	inner := &stubAdapter{errs: []error{rl}}
	obs := metrics.NewMemoryObserver()
	a := NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(1, time.Minute))
	a.SetObserver(obs)

	if _, err := a.Stream(context.Background(), Context{}); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	_, err := a.Stream(context.Background(), Context{})
	if !errorsx.HasReason(err, errorsx.ReasonLLMCircuitOpen) {
		t.Fatalf("expected circuit open, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("open breaker must not reach the provider, calls=%d", inner.calls)
	}
	if len(obs.Named(metrics.EventBreakerDenied)) != 1 || len(obs.Named(metrics.EventBreakerOpen)) != 1 {
		t.Fatalf("expected breaker events, got %v", obs.Events())
	}
}

func TestRetryAdapterRetriesOpen(t *testing.T) {
	inner := &stubAdapter{errs: []error{errors.New("dial"), nil}}
	a := NewRetryAdapter(inner, RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}})
	ch, err := a.Stream(context.Background(), Context{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if text, _ := Collect(context.Background(), ch); text != "Hallo Mia!" {
		t.Fatalf("unexpected text %q", text)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
}

func TestRetryAdapterSkipsRateLimit(t *testing.T) {
	inner := &stubAdapter{errs: []error{resilience.RateLimitError{Provider: "stub"}}}
	a := NewRetryAdapter(inner, RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}})
	if _, err := a.Stream(context.Background(), Context{}); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("rate limits must not be retried, calls=%d", inner.calls)
	}
}
