package processors

import (
	"context"
	"log/slog"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/pipeline"
	"github.com/harunnryd/checky/pkg/redact"
)

// STTProcessor forwards audio to a streaming recognizer and emits whatever
// transcripts the recognizer has ready, partial ones included.
type STTProcessor struct {
	adapter  stt.StreamingSTT
	obs      metrics.Observer
	log      *slog.Logger
	provider string
}

func NewSTTProcessor(adapter stt.StreamingSTT, obs metrics.Observer, log *slog.Logger) *STTProcessor {
	return &STTProcessor{
		adapter:  adapter,
		obs:      obs,
		log:      logging.NewComponentLogger(log, pipeline.StageSpeechToText),
		provider: adapter.Name(),
	}
}

func (p *STTProcessor) Name() string { return pipeline.StageSpeechToText }

func (p *STTProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	if dir != frames.Downstream {
		return pipeline.Pass(f, dir), nil
	}
	switch v := f.(type) {
	case frames.AudioChunk:
		if v.Len() > 0 {
			metrics.Record(p.obs, metrics.EventSTTAudioIn, float64(v.Len()), map[string]string{
				metrics.TagSessionID: v.SessionID(),
				"provider":           p.provider,
			})
			if err := p.adapter.SendAudio(ctx, v); err != nil {
				return nil, errorsx.Wrap(err, errorsx.ReasonSTTSend)
			}
		}
		return pipeline.Down(p.drain()...), nil
	case frames.TranscriptText:
		// The session hands over transcripts that arrived while no audio
		// was flowing.
		p.observe(v)
		return pipeline.Pass(f, dir), nil
	default:
		return pipeline.Pass(f, dir), nil
	}
}

// drain takes every transcript already delivered by the recognizer without
// waiting for more.
func (p *STTProcessor) drain() []frames.Frame {
	var out []frames.Frame
	for {
		select {
		case t, ok := <-p.adapter.Results():
			if !ok {
				return out
			}
			p.observe(t)
			out = append(out, t)
		default:
			return out
		}
	}
}

func (p *STTProcessor) observe(t frames.TranscriptText) {
	if !t.IsFinal() {
		return
	}
	metrics.Record(p.obs, metrics.EventSTTFinal, 1, map[string]string{
		metrics.TagSessionID: t.SessionID(),
		"provider":           p.provider,
	})
	p.log.Debug("final_transcript",
		"session_id", t.SessionID(),
		"text", redact.ForLog(t.Text()))
}
