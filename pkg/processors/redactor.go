package processors

import (
	"context"
	"log/slog"
	"strings"

	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/pipeline"
	"github.com/harunnryd/checky/pkg/redact"
)

// RedactorProcessor turns transcripts into RedactedText. Nothing after this
// stage sees raw child speech.
type RedactorProcessor struct {
	obs metrics.Observer
	log *slog.Logger
}

func NewRedactorProcessor(obs metrics.Observer, log *slog.Logger) *RedactorProcessor {
	return &RedactorProcessor{obs: obs, log: logging.NewComponentLogger(log, pipeline.StagePIIRedactor)}
}

func (p *RedactorProcessor) Name() string { return pipeline.StagePIIRedactor }

func (p *RedactorProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	if dir != frames.Downstream {
		return pipeline.Pass(f, dir), nil
	}
	switch v := f.(type) {
	case frames.TranscriptText:
		if strings.TrimSpace(v.Text()) == "" {
			p.log.Warn("empty_transcript", "session_id", v.SessionID(), "pts", v.PTS())
			return pipeline.Pass(f, dir), nil
		}
		return pipeline.Down(p.redact(v, v.Text(), v.IsFinal())), nil
	case frames.RedactedText:
		return pipeline.Down(p.redact(v, v.Text(), v.IsFinal())), nil
	default:
		return pipeline.Pass(f, dir), nil
	}
}

func (p *RedactorProcessor) redact(src frames.Frame, text string, isFinal bool) frames.RedactedText {
	out, counts := redact.Apply(text)
	for cat, n := range counts {
		metrics.Record(p.obs, metrics.EventRedaction, float64(n), map[string]string{
			metrics.TagSessionID: src.SessionID(),
			metrics.TagCategory:  string(cat),
		})
	}
	if total := counts.Total(); total > 0 {
		p.log.Info("pii_redacted", "session_id", src.SessionID(), "spans", total)
	}
	return frames.NewRedactedText(src.SessionID(), src.PTS(), out, isFinal, src.Meta())
}
