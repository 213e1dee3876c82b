package stt

import (
	"context"

	"github.com/harunnryd/checky/pkg/frames"
)

// StreamingSTT defines the contract for any STT vendor implementation.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the STT connection.
	Start(ctx context.Context) error
	// Close shuts down the STT connection and closes Results.
	Close() error
	// SendAudio sends one audio chunk to the STT service. It must return
	// once ctx is done even if the vendor stopped reading.
	SendAudio(ctx context.Context, chunk frames.AudioChunk) error
	// Results returns partial and final transcripts as they arrive.
	Results() <-chan frames.TranscriptText
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	SessionID  string
	TraceID    string
	SampleRate int
	Language   string
}

// Factory opens a recognizer for one session.
type Factory func(cfg Config) (StreamingSTT, error)
