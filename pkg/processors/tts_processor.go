package processors

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/checky/pkg/adapters/tts"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/pipeline"
)

// TTSProcessor speaks every model chunk in the child's voice. Audio frames
// are emitted ahead of the chunk they were made from.
type TTSProcessor struct {
	synth   tts.Synthesizer
	voiceID string
	obs     metrics.Observer
	log     *slog.Logger
}

func NewTTSProcessor(synth tts.Synthesizer, voiceID string, obs metrics.Observer, log *slog.Logger) *TTSProcessor {
	return &TTSProcessor{
		synth:   synth,
		voiceID: voiceID,
		obs:     obs,
		log:     logging.NewComponentLogger(log, pipeline.StageSpeechSynthesis),
	}
}

func (p *TTSProcessor) Name() string { return pipeline.StageSpeechSynthesis }

func (p *TTSProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	chunk, ok := f.(frames.ModelTurnResponseChunk)
	if !ok || dir != frames.Downstream || strings.TrimSpace(chunk.Text()) == "" {
		return pipeline.Pass(f, dir), nil
	}
	sid := chunk.SessionID()
	start := time.Now()
	results, err := p.synth.Synthesize(ctx, chunk.Text(), p.voiceID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}

	var out []frames.Frame
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-results:
			if !ok {
				return pipeline.Down(append(out, chunk)...), nil
			}
			if r.Err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, errorsx.Wrap(r.Err, errorsx.ReasonTTSSynthesize)
			}
			if len(r.Audio) == 0 {
				continue
			}
			if len(out) == 0 {
				metrics.Record(p.obs, metrics.EventTTSFirstAudio, float64(time.Since(start).Milliseconds()), map[string]string{
					metrics.TagSessionID: sid,
					"provider":           p.synth.Name(),
				})
			}
			out = append(out, frames.NewSynthesizedAudio(sid, time.Now().UnixNano(), r.Audio, r.SampleRate, map[string]string{frames.MetaSource: "tts"}))
		}
	}
}
