package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/checky/pkg/adapters/tts"
)

type TTSConfig struct {
	SampleRate int
	// ChunksPerText is how many audio pieces each Synthesize call yields.
	ChunksPerText int
	ChunkBytes    int
	Err           error
}

// Synthesizer emits deterministic silence and records what it was asked to
// speak.
type Synthesizer struct {
	cfg    TTSConfig
	mu     sync.Mutex
	spoken []Spoken
	closed bool
}

// Spoken is one Synthesize call.
type Spoken struct {
	Text    string
	VoiceID string
}

func NewTTS(cfg TTSConfig) *Synthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunksPerText <= 0 {
		cfg.ChunksPerText = 1
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 320
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) (<-chan tts.Result, error) {
	s.mu.Lock()
	s.spoken = append(s.spoken, Spoken{Text: text, VoiceID: voiceID})
	s.mu.Unlock()
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	out := make(chan tts.Result, s.cfg.ChunksPerText)
	for i := 0; i < s.cfg.ChunksPerText; i++ {
		out <- tts.Result{Audio: make([]byte, s.cfg.ChunkBytes), SampleRate: s.cfg.SampleRate}
	}
	close(out)
	return out, nil
}

func (s *Synthesizer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Spoken returns the Synthesize calls in order.
func (s *Synthesizer) Spoken() []Spoken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Spoken(nil), s.spoken...)
}

// Closed reports whether Close was called.
func (s *Synthesizer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
