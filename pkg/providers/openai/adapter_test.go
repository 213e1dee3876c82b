package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/resilience"
)

func TestStreamParsesEvents(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hallo", " Mia", "!"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := NewAdapter("key", "gpt-4o-mini")
	a.BaseURL = srv.URL
	ch, err := a.Stream(context.Background(), llm.Context{Turns: []frames.Turn{
		{Role: frames.RoleSystem, Content: "sys"},
		{Role: frames.RoleUser, Content: "Hallo"},
	}})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	text, err := llm.Collect(context.Background(), ch)
	if err != nil || text != "Hallo Mia!" {
		t.Fatalf("unexpected result %q %v", text, err)
	}
	if !got.Stream || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestStreamRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	a := NewAdapter("key", "m")
	a.BaseURL = srv.URL
	if _, err := a.Stream(context.Background(), llm.Context{}); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}
