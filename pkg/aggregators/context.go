package aggregators

import (
	"errors"
	"sync"

	"github.com/harunnryd/checky/pkg/frames"
)

var (
	ErrAlreadyInitialized = errors.New("conversation context already initialized")
	ErrNotInitialized     = errors.New("conversation context not initialized")
)

// ConversationContext is the ordered history of one connection. The first
// turn is always the system prompt; later turns keep call order.
type ConversationContext struct {
	mu    sync.Mutex
	turns []frames.Turn
}

func NewConversationContext() *ConversationContext {
	return &ConversationContext{}
}

// Initialize sets the leading system turn. It may be called once, before
// any other turn is appended.
func (c *ConversationContext) Initialize(systemPrompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) > 0 {
		return ErrAlreadyInitialized
	}
	c.turns = append(c.turns, frames.Turn{Role: frames.RoleSystem, Content: systemPrompt})
	return nil
}

func (c *ConversationContext) AppendUser(text string) error {
	return c.append(frames.RoleUser, text)
}

func (c *ConversationContext) AppendAssistant(text string) error {
	return c.append(frames.RoleAssistant, text)
}

func (c *ConversationContext) append(role frames.Role, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) == 0 {
		return ErrNotInitialized
	}
	c.turns = append(c.turns, frames.Turn{Role: role, Content: text})
	return nil
}

// Snapshot returns a copy of the turns that later appends cannot change.
func (c *ConversationContext) Snapshot() []frames.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frames.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *ConversationContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset discards the history. The context must be initialized again before
// it accepts turns.
func (c *ConversationContext) Reset() {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}
