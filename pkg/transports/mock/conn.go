package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/transports"
)

var ErrClosed = errors.New("mock conn closed")

// Conn is an in-memory client connection for tests.
type Conn struct {
	id     string
	recv   chan frames.Frame
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	sent   []frames.Frame
	sendCh chan frames.Frame
	code   transports.CloseCode
	reason string
	closed bool
	gone   bool
	err    error
}

func NewConn(id string) *Conn {
	return &Conn{
		id:     id,
		recv:   make(chan frames.Frame, 256),
		done:   make(chan struct{}),
		sendCh: make(chan frames.Frame, 256),
	}
}

func (c *Conn) ID() string                { return c.id }
func (c *Conn) Recv() <-chan frames.Frame { return c.recv }
func (c *Conn) Done() <-chan struct{}     { return c.done }

// SentCh receives every frame accepted by Send.
func (c *Conn) SentCh() <-chan frames.Frame { return c.sendCh }

func (c *Conn) Send(ctx context.Context, f frames.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.closed {
		return ErrClosed
	}
	c.sent = append(c.sent, f)
	select {
	case c.sendCh <- f:
	default:
	}
	return nil
}

func (c *Conn) Close(code transports.CloseCode, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.code = code
	c.reason = reason
	c.mu.Unlock()
	c.hangup()
	return nil
}

// Push delivers an inbound frame as if the client sent it. Frames pushed
// after hangup are dropped.
func (c *Conn) Push(f frames.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return
	}
	select {
	case c.recv <- f:
	default:
	}
}

// Hangup simulates the client going away.
func (c *Conn) Hangup() { c.hangup() }

func (c *Conn) hangup() {
	c.once.Do(func() {
		c.mu.Lock()
		c.gone = true
		close(c.done)
		close(c.recv)
		c.mu.Unlock()
	})
}

// FailSends makes every later Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Conn) Sent() []frames.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frames.Frame(nil), c.sent...)
}

// Closed returns the close code and reason, and whether Close was called.
func (c *Conn) Closed() (transports.CloseCode, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.reason, c.closed
}

var _ transports.Conn = (*Conn)(nil)
