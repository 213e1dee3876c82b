package transports

import (
	"context"

	"github.com/harunnryd/checky/pkg/frames"
)

// CloseCode tells the client why the server ended the connection.
type CloseCode int

const (
	CloseNormal CloseCode = iota
	ClosePolicyViolation
	CloseInternalError
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case ClosePolicyViolation:
		return "policy-violation"
	case CloseInternalError:
		return "internal-error"
	default:
		return "unknown"
	}
}

// Conn is one client connection. Recv yields inbound frames and is closed
// once the client is gone; Done is closed at the same time or when Close
// is called.
type Conn interface {
	ID() string
	Recv() <-chan frames.Frame
	Done() <-chan struct{}
	Send(ctx context.Context, f frames.Frame) error
	Close(code CloseCode, reason string) error
}

// Handler runs one accepted connection until it is closed.
type Handler func(ctx context.Context, conn Conn)
