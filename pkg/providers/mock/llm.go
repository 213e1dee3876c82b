package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/llm"
)

type LLMAdapter struct {
	cfg      LLMConfig
	mu       sync.Mutex
	requests []llm.Context
}

type LLMConfig struct {
	ResponseText string
	StreamChunks []string
	// Err fails Stream itself; StreamErr is delivered after the chunks.
	Err       error
	StreamErr error
	// ChunkDelay waits between chunks, honouring ctx.
	ChunkDelay time.Duration
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Stream(ctx context.Context, input llm.Context) (<-chan llm.Delta, error) {
	a.mu.Lock()
	a.requests = append(a.requests, llm.Context{Turns: append(input.Turns[:0:0], input.Turns...)})
	a.mu.Unlock()
	if a.cfg.Err != nil {
		return nil, a.cfg.Err
	}
	chunks := a.cfg.StreamChunks
	if len(chunks) == 0 {
		chunks = []string{a.cfg.ResponseText}
	}
	out := make(chan llm.Delta, len(chunks)+1)
	go func() {
		defer close(out)
		for i, chunk := range chunks {
			if i > 0 && a.cfg.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(a.cfg.ChunkDelay):
				}
			}
			if !llm.Send(ctx, out, llm.Delta{Text: chunk}) {
				return
			}
		}
		if a.cfg.StreamErr != nil {
			llm.Send(ctx, out, llm.Delta{Err: a.cfg.StreamErr})
		}
	}()
	return out, nil
}

// Requests returns every context the adapter was asked to answer.
func (a *LLMAdapter) Requests() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Context(nil), a.requests...)
}

var _ llm.LLMAdapter = (*LLMAdapter)(nil)
