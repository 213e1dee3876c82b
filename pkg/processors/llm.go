package processors

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/checky/pkg/aggregators"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/pipeline"
)

// LLMProcessor answers ModelTurnRequests. The streamed answer is cut into
// sentences; the last chunk carries isFinal and may be empty.
type LLMProcessor struct {
	adapter llm.LLMAdapter
	aggCfg  aggregators.AggregatorConfig
	obs     metrics.Observer
	log     *slog.Logger
}

func NewLLMProcessor(adapter llm.LLMAdapter, aggCfg aggregators.AggregatorConfig, obs metrics.Observer, log *slog.Logger) *LLMProcessor {
	return &LLMProcessor{
		adapter: adapter,
		aggCfg:  aggCfg,
		obs:     obs,
		log:     logging.NewComponentLogger(log, pipeline.StageLanguageModel),
	}
}

func (p *LLMProcessor) Name() string { return pipeline.StageLanguageModel }

func (p *LLMProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	req, ok := f.(frames.ModelTurnRequest)
	if !ok || dir != frames.Downstream {
		return pipeline.Pass(f, dir), nil
	}
	sid := req.SessionID()
	tags := map[string]string{metrics.TagSessionID: sid, "provider": p.adapter.Name()}
	start := time.Now()

	deltas, err := p.adapter.Stream(ctx, llm.Context{Turns: req.Snapshot()})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonLLMStream)
	}

	agg := aggregators.NewSentenceAggregator(p.aggCfg)
	var out []frames.Frame
	chunk := func(text string, final bool) {
		out = append(out, frames.NewModelTurnResponseChunk(sid, time.Now().UnixNano(), text, final, map[string]string{frames.MetaSource: "llm"}))
	}
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-deltas:
			if !ok {
				chunk(agg.Flush(), true)
				metrics.Record(p.obs, metrics.EventLLMDone, float64(time.Since(start).Milliseconds()), tags)
				return pipeline.Down(out...), nil
			}
			if d.Err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, errorsx.Wrap(d.Err, errorsx.ReasonLLMStream)
			}
			if first && d.Text != "" {
				first = false
				metrics.Record(p.obs, metrics.EventLLMFirstToken, float64(time.Since(start).Milliseconds()), tags)
			}
			if sentence := agg.AddToken(d.Text); sentence != "" {
				chunk(sentence, false)
			}
		}
	}
}
