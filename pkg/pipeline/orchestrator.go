package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/metrics"
)

// Pipeline delivers frames through its stages one at a time. Push returns
// only after the frame and everything derived from it has left the
// pipeline, so a caller that waits on Push gets backpressure for free.
type Pipeline struct {
	procs []FrameProcessor
	cfg   Config
	log   *slog.Logger
	mu    sync.Mutex
}

type delivery struct {
	idx int
	f   frames.Frame
	dir frames.Direction
}

func New(cfg Config, procs ...FrameProcessor) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{procs: procs, cfg: cfg, log: log}
	logPipeline(log, procs)
	return p
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.procs))
	for _, proc := range p.procs {
		names = append(names, proc.Name())
	}
	return names
}

// Push delivers f downstream starting at the first stage.
func (p *Pipeline) Push(ctx context.Context, f frames.Frame) error {
	return p.run(ctx, delivery{idx: 0, f: f, dir: frames.Downstream})
}

// PushUpstream delivers f upstream starting at the last stage.
func (p *Pipeline) PushUpstream(ctx context.Context, f frames.Frame) error {
	return p.run(ctx, delivery{idx: len(p.procs) - 1, f: f, dir: frames.Upstream})
}

func (p *Pipeline) run(ctx context.Context, first delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stack := []delivery{first}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			for _, d := range stack {
				p.recordDrop(p.stageName(d.idx), d.f)
			}
			return err
		}
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case d.idx >= len(p.procs):
			p.recordOut(d.f)
			if p.cfg.Downstream != nil {
				p.cfg.Downstream(d.f)
			}
			continue
		case d.idx < 0:
			p.recordOut(d.f)
			if p.cfg.Upstream != nil {
				p.cfg.Upstream(d.f)
			}
			continue
		}

		out := p.handle(ctx, d)
		// Reverse push keeps emission order: the first emission and all of
		// its descendants are handled before the second one.
		for i := len(out) - 1; i >= 0; i-- {
			e := out[i]
			if e.Frame == nil {
				continue
			}
			next := d.idx + 1
			if e.Dir == frames.Upstream {
				next = d.idx - 1
			}
			stack = append(stack, delivery{idx: next, f: e.Frame, dir: e.Dir})
		}
	}
	return nil
}

func (p *Pipeline) handle(ctx context.Context, d delivery) (out []Emission) {
	proc := p.procs[d.idx]
	name := proc.Name()
	p.recordIn(name, d.f, d.dir)
	if p.cfg.Tap != nil {
		p.cfg.Tap(name, d.f, d.dir)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := errorsx.Errorf(errorsx.ReasonStagePanic, "stage %s panicked: %v", name, r)
			out = []Emission{Up(p.errorSignal(name, d.f, err))}
			p.recordError(name, err)
		}
	}()

	res, err := proc.Process(ctx, d.f, d.dir)
	p.recordStage(name, d.f, start)
	if err == nil {
		return res
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Cancellation is the controller's doing, not a stage fault.
		return nil
	}
	p.recordError(name, err)
	return append(res, Up(p.errorSignal(name, d.f, err)))
}

func (p *Pipeline) errorSignal(stage string, cause frames.Frame, err error) frames.ErrorSignal {
	return frames.NewErrorSignal(cause.SessionID(), cause.PTS(), err, stage, nil)
}

func (p *Pipeline) stageName(idx int) string {
	switch {
	case idx < 0:
		return "upstream_sink"
	case idx >= len(p.procs):
		return "downstream_sink"
	default:
		return p.procs[idx].Name()
	}
}

func (p *Pipeline) recordStage(name string, f frames.Frame, start time.Time) {
	if p.cfg.Observer == nil {
		return
	}
	p.cfg.Observer.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventStageLatency,
		Time:  time.Now(),
		Value: float64(time.Since(start).Microseconds()),
		Tags: map[string]string{
			metrics.TagStage:     name,
			metrics.TagSessionID: f.SessionID(),
			metrics.TagKind:      string(f.Kind()),
		},
	})
}

func (p *Pipeline) recordIn(name string, f frames.Frame, dir frames.Direction) {
	if p.cfg.Observer == nil {
		return
	}
	p.cfg.Observer.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventFrameIn,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagStage:     name,
			metrics.TagSessionID: f.SessionID(),
			metrics.TagKind:      string(f.Kind()),
			metrics.TagDirection: dir.String(),
		},
	})
}

func (p *Pipeline) recordOut(f frames.Frame) {
	if p.cfg.Observer == nil {
		return
	}
	p.cfg.Observer.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventFrameOut,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagSessionID: f.SessionID(),
			metrics.TagKind:      string(f.Kind()),
		},
	})
}

func (p *Pipeline) recordDrop(stage string, f frames.Frame) {
	if p.cfg.Observer == nil {
		return
	}
	p.cfg.Observer.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventFrameDrop,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagStage:     stage,
			metrics.TagSessionID: f.SessionID(),
			metrics.TagKind:      string(f.Kind()),
		},
	})
}

func (p *Pipeline) recordError(stage string, err error) {
	p.log.Error("stage_error",
		"stage", stage,
		"reason_code", errorsx.Reason(err),
		"error", err)
	metrics.Record(p.cfg.Observer, metrics.EventStageError, 1, map[string]string{
		metrics.TagStage:  stage,
		metrics.TagReason: string(errorsx.Reason(err)),
	})
}

func logPipeline(log *slog.Logger, procs []FrameProcessor) {
	if len(procs) == 0 {
		return
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	log.Debug("pipeline", "order", strings.Join(names, " -> "))
}

// String is used in logs.
func (p *Pipeline) String() string {
	return fmt.Sprintf("pipeline[%s]", strings.Join(p.Stages(), " -> "))
}
