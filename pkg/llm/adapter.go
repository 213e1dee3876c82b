package llm

import (
	"context"

	"github.com/harunnryd/checky/pkg/frames"
)

// Context is the conversation handed to the model, system turn first.
type Context struct {
	Turns []frames.Turn
}

// System returns the content of the leading system turn.
func (c Context) System() string {
	if len(c.Turns) == 0 || c.Turns[0].Role != frames.RoleSystem {
		return ""
	}
	return c.Turns[0].Content
}

// Conversation returns the turns after the leading system turn.
func (c Context) Conversation() []frames.Turn {
	if len(c.Turns) > 0 && c.Turns[0].Role == frames.RoleSystem {
		return c.Turns[1:]
	}
	return c.Turns
}

// Delta is a streamed piece of the model's answer. A Delta with Err set is
// the last one on the channel.
type Delta struct {
	Text string
	Err  error
}

type LLMAdapter interface {
	Stream(ctx context.Context, input Context) (<-chan Delta, error)
	Name() string
}
