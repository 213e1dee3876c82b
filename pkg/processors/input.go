// Package processors holds the stages of a conversation pipeline.
package processors

import (
	"context"
	"log/slog"

	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/pipeline"
)

// InputProcessor is the head of the pipeline. It checks frame shape and
// never drops anything.
type InputProcessor struct {
	log *slog.Logger
}

func NewInputProcessor(log *slog.Logger) *InputProcessor {
	return &InputProcessor{log: logging.NewComponentLogger(log, pipeline.StageInput)}
}

func (p *InputProcessor) Name() string { return pipeline.StageInput }

func (p *InputProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	if a, ok := f.(frames.AudioChunk); ok && dir == frames.Downstream && a.Len() == 0 {
		p.log.Warn("empty_audio_chunk", "session_id", a.SessionID(), "pts", a.PTS())
	}
	return pipeline.Pass(f, dir), nil
}
