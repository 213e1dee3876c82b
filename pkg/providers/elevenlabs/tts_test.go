package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/checky/pkg/errorsx"
)

func fakeServer(t *testing.T, gotPath *string, gotText *string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotPath = r.URL.Path
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			if text == "" {
				break
			}
			if strings.TrimSpace(text) != "" {
				*gotText = strings.TrimSpace(text)
			}
		}
		audio := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
		_ = conn.WriteJSON(map[string]any{"audio": audio})
		_ = conn.WriteJSON(map[string]any{"audio": audio})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
		_, _, _ = conn.ReadMessage()
	}))
}

func TestSynthesizeStreamsUntilFinal(t *testing.T) {
	var path, text string
	srv := fakeServer(t, &path, &text)
	defer srv.Close()

	s := New(Config{
		APIKey:   "key",
		BaseURL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
		VoiceMap: map[string]string{"de-DE-Standard-A": "voice123"},
	})
	ch, err := s.Synthesize(context.Background(), "Hallo Mia!", "de-DE-Standard-A")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	var total int
	for r := range ch {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		if r.SampleRate != 16000 {
			t.Fatalf("unexpected sample rate %d", r.SampleRate)
		}
		total += len(r.Audio)
	}
	if total != 8 {
		t.Fatalf("expected 8 bytes of audio, got %d", total)
	}
	if path != "/voice123/stream-input" {
		t.Fatalf("unexpected path %q", path)
	}
	if text != "Hallo Mia!" {
		t.Fatalf("unexpected text sent %q", text)
	}
}

func TestSynthesizeRequiresKey(t *testing.T) {
	_, err := New(Config{}).Synthesize(context.Background(), "Hallo", "v")
	if !errorsx.HasReason(err, errorsx.ReasonTTSConnect) {
		t.Fatalf("expected connect reason, got %v", err)
	}
}

func TestSynthesizeEmptyTextClosesImmediately(t *testing.T) {
	ch, err := New(Config{APIKey: "key"}).Synthesize(context.Background(), "  ", "v")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}
