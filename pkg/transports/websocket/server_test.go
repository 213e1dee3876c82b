package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/transports"
)

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat"
	c, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func closeCode(t *testing.T, c *websocket.Conn) int {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code
		}
		t.Fatalf("expected close error, got %v", err)
	}
}

func TestServerRoundTrip(t *testing.T) {
	handler := func(ctx context.Context, conn transports.Conn) {
		f := <-conn.Recv()
		audio, ok := f.(frames.AudioChunk)
		if !ok {
			_ = conn.Close(transports.CloseInternalError, "expected audio")
			return
		}
		_ = conn.Send(ctx, frames.NewRedactedText(conn.ID(), 1, "Hallo", true, nil))
		_ = conn.Send(ctx, frames.NewSynthesizedAudio(conn.ID(), 2, audio.Data(), 16000, nil))
		_ = conn.Close(transports.CloseNormal, "bye")
	}
	s := New(Config{}, handler, nil)
	mux := http.NewServeMux()
	mux.Handle(s.Path(), s)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := dial(t, srv, nil)
	defer c.Close()
	if err := c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}

	typ, data, err := c.ReadMessage()
	if err != nil || typ != websocket.TextMessage {
		t.Fatalf("expected caption, got %d %v", typ, err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MessageTranscript || msg.Text != "Hallo" || !msg.Final {
		t.Fatalf("unexpected caption %s", data)
	}
	typ, data, err = c.ReadMessage()
	if err != nil || typ != websocket.BinaryMessage || len(data) != 4 {
		t.Fatalf("expected echoed audio, got %d %v %v", typ, data, err)
	}
	if code := closeCode(t, c); code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal close, got %d", code)
	}
}

func TestServerCloseCodes(t *testing.T) {
	handler := func(ctx context.Context, conn transports.Conn) {
		_ = conn.Close(transports.ClosePolicyViolation, "missing onboarding")
	}
	s := New(Config{}, handler, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()
	c := dial(t, srv, nil)
	defer c.Close()
	if code := closeCode(t, c); code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation, got %d", code)
	}
}

func TestServerMaxSessions(t *testing.T) {
	release := make(chan struct{})
	handler := func(ctx context.Context, conn transports.Conn) {
		<-release
		_ = conn.Close(transports.CloseNormal, "")
	}
	s := New(Config{MaxSessions: 1}, handler, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer close(release)

	first := dial(t, srv, nil)
	defer first.Close()
	// Give the first handler time to take its slot.
	time.Sleep(50 * time.Millisecond)
	second := dial(t, srv, nil)
	defer second.Close()
	if code := closeCode(t, second); code != websocket.ClosePolicyViolation {
		t.Fatalf("expected busy rejection, got %d", code)
	}
}

func TestHangupMessageDisconnects(t *testing.T) {
	got := make(chan frames.ControlKind, 1)
	handler := func(ctx context.Context, conn transports.Conn) {
		for f := range conn.Recv() {
			if c, ok := f.(frames.ControlSignal); ok {
				got <- c.Control()
			}
		}
	}
	s := New(Config{}, handler, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()
	c := dial(t, srv, nil)
	defer c.Close()
	_ = c.WriteJSON(Message{Type: MessageHangup})
	select {
	case k := <-got:
		if k != frames.ControlClientDisconnected {
			t.Fatalf("unexpected control %s", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for disconnect")
	}
}

func TestCheckOrigin(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://checky.example", "localhost:3000"}}, nil, nil)
	cases := map[string]bool{
		"https://checky.example":  true,
		"https://checky.example/": true,
		"http://localhost:3000":   true,
		"https://evil.example":    false,
		"http://checky.example":   false,
	}
	if !s.checkOrigin(httptest.NewRequest(http.MethodGet, "/chat", nil)) {
		t.Fatalf("requests without origin must be allowed")
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/chat", nil)
		r.Header.Set("Origin", origin)
		if got := s.checkOrigin(r); got != want {
			t.Errorf("origin %q: got %v want %v", origin, got, want)
		}
	}
}

func TestDrainRejects(t *testing.T) {
	s := New(Config{}, nil, nil)
	s.Drain()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
