package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/frames"
)

type STTConfig struct {
	SessionID         string
	TraceID           string
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
	// Script, when set, is used in order instead of Transcript; one entry per
	// utterance.
	Script []string
	// ChunksPerUtterance is how many audio chunks make one utterance.
	ChunksPerUtterance int
	SendErr            error
}

// StreamingSTT produces transcripts synchronously from SendAudio so tests
// see them on the very next Results read.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.TranscriptText
	mu      sync.Mutex
	started bool
	closed  bool
	chunks  int
	next    int
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	if cfg.ChunksPerUtterance <= 0 {
		cfg.ChunksPerUtterance = 1
	}
	return &StreamingSTT{cfg: cfg, out: make(chan frames.TranscriptText, 16)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	s.started = false
	return nil
}

func (s *StreamingSTT) SendAudio(ctx context.Context, chunk frames.AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	if s.cfg.SendErr != nil {
		return s.cfg.SendErr
	}
	s.chunks++
	if s.chunks%s.cfg.ChunksPerUtterance != 0 {
		return nil
	}

	text := s.cfg.Transcript
	if len(s.cfg.Script) > 0 {
		if s.next >= len(s.cfg.Script) {
			return nil
		}
		text = s.cfg.Script[s.next]
		s.next++
	}
	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = text
		}
		s.emit(interim, false)
	}
	s.emit(text, true)
	return nil
}

func (s *StreamingSTT) emit(text string, final bool) {
	meta := map[string]string{frames.MetaSource: "stt"}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	select {
	case s.out <- frames.NewTranscriptText(s.cfg.SessionID, time.Now().UnixNano(), text, final, meta):
	default:
	}
}

func (s *StreamingSTT) Results() <-chan frames.TranscriptText { return s.out }

// NewSTTFactory returns a factory that opens a fresh recognizer per session.
func NewSTTFactory(cfg STTConfig) stt.Factory {
	return func(c stt.Config) (stt.StreamingSTT, error) {
		sc := cfg
		sc.SessionID = c.SessionID
		sc.TraceID = c.TraceID
		return NewSTT(sc), nil
	}
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
