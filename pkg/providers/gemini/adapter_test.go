package gemini

import (
	"context"
	"testing"

	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/prompt"
)

func TestToContentsMapsRoles(t *testing.T) {
	in := llm.Context{Turns: []frames.Turn{
		{Role: frames.RoleSystem, Content: "sys"},
		{Role: frames.RoleUser, Content: "Hallo"},
		{Role: frames.RoleUser, Content: "Bist du da?"},
		{Role: frames.RoleAssistant, Content: "Ja!"},
	}}
	got := toContents(in.Conversation())
	if len(got) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(got))
	}
	if got[0].Role != "user" || len(got[0].Parts) != 2 {
		t.Fatalf("unexpected first content %+v", got[0])
	}
	if got[1].Role != "model" || got[1].Parts[0].Text != "Ja!" {
		t.Fatalf("unexpected second content %+v", got[1])
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if !errorsx.HasReason(err, errorsx.ReasonCredentialMissing) {
		t.Fatalf("expected credential reason, got %v", err)
	}
}

func TestGreetingRequestHasContents(t *testing.T) {
	in := llm.Context{Turns: []frames.Turn{
		{Role: frames.RoleSystem, Content: prompt.Build(7)},
		{Role: frames.RoleSystem, Content: prompt.Greeting},
	}}
	got := toContents(in.Conversation())
	if len(got) != 1 {
		t.Fatalf("expected the greeting nudge as one content, got %d", len(got))
	}
	if got[0].Role != "user" || got[0].Parts[0].Text != prompt.Greeting {
		t.Fatalf("unexpected content %+v", got[0])
	}
	if sys := in.System(); sys != prompt.Build(7) {
		t.Fatalf("system instruction lost: %q", sys)
	}
}

func TestGreetingStreamPassesLocalChecks(t *testing.T) {
	a, err := New(context.Background(), Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, err := a.Stream(ctx, llm.Context{Turns: []frames.Turn{
		{Role: frames.RoleSystem, Content: prompt.Build(7)},
		{Role: frames.RoleSystem, Content: prompt.Greeting},
	}})
	if err != nil {
		t.Fatalf("greeting rejected before the request: %v", err)
	}
	for range ch {
	}
}
