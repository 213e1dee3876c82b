package deepgram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
)

func TestWriteChunkReturnsWhenContextEnds(t *testing.T) {
	_, w := io.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- writeChunk(ctx, w, []byte{1, 2, 3}, slog.Default()) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) || !errorsx.HasReason(err, errorsx.ReasonSTTSend) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("write blocked past the context deadline")
	}
}

func TestWriteChunkFailsAfterStreamEnded(t *testing.T) {
	r, w := io.Pipe()
	_ = r.CloseWithError(errStreamEnded)
	err := writeChunk(context.Background(), w, []byte{1}, slog.Default())
	if !errors.Is(err, errStreamEnded) {
		t.Fatalf("expected stream ended error, got %v", err)
	}
}

func TestSendAudioBeforeStart(t *testing.T) {
	s := New(Config{SessionID: "s1"})
	err := s.SendAudio(context.Background(), frames.NewAudioChunk("s1", 1, []byte{1}, 16000, nil))
	if !errorsx.HasReason(err, errorsx.ReasonSTTSend) {
		t.Fatalf("expected send reason, got %v", err)
	}
}
