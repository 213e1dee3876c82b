package aggregators

import (
	"errors"
	"testing"

	"github.com/harunnryd/checky/pkg/frames"
)

func TestContextAppendOrder(t *testing.T) {
	c := NewConversationContext()
	if err := c.Initialize("system"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	_ = c.AppendUser("A")
	_ = c.AppendAssistant("C")
	_ = c.AppendUser("B")

	want := []frames.Turn{
		{Role: frames.RoleSystem, Content: "system"},
		{Role: frames.RoleUser, Content: "A"},
		{Role: frames.RoleAssistant, Content: "C"},
		{Role: frames.RoleUser, Content: "B"},
	}
	got := c.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestContextKeepsDuplicates(t *testing.T) {
	c := NewConversationContext()
	_ = c.Initialize("system")
	_ = c.AppendUser("hallo")
	_ = c.AppendUser("hallo")
	if c.Len() != 3 {
		t.Fatalf("expected duplicates kept, got %d turns", c.Len())
	}
}

func TestContextInitializeOnce(t *testing.T) {
	c := NewConversationContext()
	if err := c.AppendUser("early"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.Initialize("one"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := c.Initialize("two"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].Content != "one" || snap[0].Role != frames.RoleSystem {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSnapshotIsolated(t *testing.T) {
	c := NewConversationContext()
	_ = c.Initialize("system")
	_ = c.AppendUser("A")
	snap := c.Snapshot()
	_ = c.AppendAssistant("B")
	snap[0].Content = "mutated"
	if len(snap) != 2 {
		t.Fatalf("snapshot grew after append: %d", len(snap))
	}
	if c.Snapshot()[0].Content != "system" {
		t.Fatalf("snapshot shares storage with context")
	}
}

func TestContextReset(t *testing.T) {
	c := NewConversationContext()
	_ = c.Initialize("system")
	_ = c.AppendUser("A")
	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("expected empty context after reset")
	}
}
