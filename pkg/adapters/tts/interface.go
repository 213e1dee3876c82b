package tts

import (
	"context"
)

// Result is one piece of synthesized audio, or the error that ended the
// stream.
type Result struct {
	Audio      []byte
	SampleRate int
	Err        error
}

// Synthesizer defines the contract for any TTS vendor implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize streams audio for text spoken with voiceID. The channel is
	// closed when synthesis is done or ctx is cancelled.
	Synthesize(ctx context.Context, text, voiceID string) (<-chan Result, error)
	// Close releases the adapter's connections.
	Close() error
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	SessionID  string
	SampleRate int
}

// Factory creates a synthesizer for one session.
type Factory func(cfg Config) (Synthesizer, error)
