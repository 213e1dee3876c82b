package processors

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/pipeline"
)

// Sender writes a frame to the client.
type Sender interface {
	Send(ctx context.Context, f frames.Frame) error
}

// OutputProcessor hands audio and captions to the client connection. After
// the first failed send it stops writing and reports the client gone.
type OutputProcessor struct {
	sender Sender
	log    *slog.Logger
	broken bool
}

func NewOutputProcessor(sender Sender, log *slog.Logger) *OutputProcessor {
	return &OutputProcessor{sender: sender, log: logging.NewComponentLogger(log, pipeline.StageOutput)}
}

func (p *OutputProcessor) Name() string { return pipeline.StageOutput }

func (p *OutputProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	if dir != frames.Downstream || !clientBound(f) || p.broken {
		return pipeline.Pass(f, dir), nil
	}
	if err := p.sender.Send(ctx, f); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.broken = true
		err = errorsx.Wrap(err, errorsx.ReasonTransportSend)
		p.log.Warn("client_send_failed",
			"session_id", f.SessionID(),
			"kind", f.Kind(),
			"reason_code", errorsx.Reason(err),
			"error", err)
		gone := frames.NewControlSignal(f.SessionID(), time.Now().UnixNano(), frames.ControlClientDisconnected, map[string]string{
			frames.MetaReason: string(errorsx.ReasonTransportSend),
		})
		return append(pipeline.Pass(f, dir), pipeline.Up(gone)), nil
	}
	return pipeline.Pass(f, dir), nil
}

func clientBound(f frames.Frame) bool {
	switch v := f.(type) {
	case frames.SynthesizedAudio, frames.RedactedText, frames.ModelTurnResponseChunk:
		return true
	case frames.ControlSignal:
		return v.Control() == frames.ControlIdleTimeout
	default:
		return false
	}
}
