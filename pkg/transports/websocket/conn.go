package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/transports"
)

var ErrConnClosed = errors.New("websocket: connection closed")

// Message is the JSON text frame exchanged with the browser.
type Message struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Event string `json:"event,omitempty"`
}

const (
	MessageTranscript = "transcript"
	MessageResponse   = "response"
	MessageControl    = "control"
	// MessageHangup is sent by the client to end the conversation.
	MessageHangup = "hangup"
)

type conn struct {
	id   string
	ws   *websocket.Conn
	cfg  Config
	log  *slog.Logger
	pts  *frames.PTSGen
	recv chan frames.Frame
	done chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	doneOnce  sync.Once
	closed    bool
}

func newConn(id string, ws *websocket.Conn, cfg Config, log *slog.Logger) *conn {
	ws.SetReadLimit(cfg.ReadLimit)
	return &conn{
		id:   id,
		ws:   ws,
		cfg:  cfg,
		log:  log.With("session_id", id),
		pts:  frames.NewPTSGen(),
		recv: make(chan frames.Frame, 64),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string                { return c.id }
func (c *conn) Recv() <-chan frames.Frame { return c.recv }
func (c *conn) Done() <-chan struct{}     { return c.done }

// readLoop is the only writer of recv. A full recv blocks the loop, which
// in turn stops reading the socket.
func (c *conn) readLoop() {
	defer close(c.recv)
	defer c.finish()
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read_ended", "error", err)
			}
			c.deliver(frames.NewControlSignal(c.id, c.pts.Next(c.id), frames.ControlClientDisconnected, map[string]string{
				frames.MetaSource: "transport",
			}))
			return
		}
		switch typ {
		case websocket.BinaryMessage:
			if !c.deliver(frames.NewAudioChunk(c.id, c.pts.Next(c.id), data, c.cfg.SampleRate, map[string]string{
				frames.MetaSource: "transport",
			})) {
				return
			}
		case websocket.TextMessage:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				c.log.Warn("bad_client_message", "bytes", len(data))
				continue
			}
			if msg.Type == MessageHangup {
				c.deliver(frames.NewControlSignal(c.id, c.pts.Next(c.id), frames.ControlClientDisconnected, map[string]string{
					frames.MetaSource: "client",
				}))
				return
			}
		}
	}
}

func (c *conn) deliver(f frames.Frame) bool {
	select {
	case c.recv <- f:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *conn) Send(ctx context.Context, f frames.Frame) error {
	var (
		typ     int
		payload []byte
	)
	switch v := f.(type) {
	case frames.SynthesizedAudio:
		typ, payload = websocket.BinaryMessage, v.RawPayload()
	case frames.RedactedText:
		typ, payload = c.text(Message{Type: MessageTranscript, Text: v.Text(), Final: v.IsFinal()})
	case frames.ModelTurnResponseChunk:
		typ, payload = c.text(Message{Type: MessageResponse, Text: v.Text(), Final: v.IsFinal()})
	case frames.ControlSignal:
		typ, payload = c.text(Message{Type: MessageControl, Event: string(v.Control())})
	default:
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(typ, payload)
}

func (c *conn) text(m Message) (int, []byte) {
	b, _ := json.Marshal(m)
	return websocket.TextMessage, b
}

// Close sends a close frame with the mapped status code and releases the
// socket. Only the first call has an effect.
func (c *conn) Close(code transports.CloseCode, reason string) error {
	err := ErrConnClosed
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		msg := websocket.FormatCloseMessage(wsCode(code), reason)
		err = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		c.writeMu.Unlock()
		c.finish()
		if cerr := c.ws.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func wsCode(code transports.CloseCode) int {
	switch code {
	case transports.ClosePolicyViolation:
		return websocket.ClosePolicyViolation
	case transports.CloseInternalError:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}

var _ transports.Conn = (*conn)(nil)
