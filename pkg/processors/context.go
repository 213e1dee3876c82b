package processors

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/checky/pkg/aggregators"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/pipeline"
	"github.com/harunnryd/checky/pkg/prompt"
)

// UserContextProcessor records what the child said and asks the model for
// an answer.
type UserContextProcessor struct {
	conv *aggregators.ConversationContext
	log  *slog.Logger
}

func NewUserContextProcessor(conv *aggregators.ConversationContext, log *slog.Logger) *UserContextProcessor {
	return &UserContextProcessor{conv: conv, log: logging.NewComponentLogger(log, pipeline.StageContextUser)}
}

func (p *UserContextProcessor) Name() string { return pipeline.StageContextUser }

func (p *UserContextProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	if dir != frames.Downstream {
		return pipeline.Pass(f, dir), nil
	}
	switch v := f.(type) {
	case frames.RedactedText:
		if !v.IsFinal() || strings.TrimSpace(v.Text()) == "" {
			return pipeline.Pass(f, dir), nil
		}
		if err := p.conv.AppendUser(v.Text()); err != nil {
			return nil, err
		}
		req := frames.NewModelTurnRequest(v.SessionID(), time.Now().UnixNano(), p.conv.Snapshot(), v.Meta())
		return pipeline.Down(v, req), nil
	case frames.ControlSignal:
		if v.Control() != frames.ControlClientConnected {
			return pipeline.Pass(f, dir), nil
		}
		// The greeting nudge only lives in this request, never in the
		// stored history.
		snap := append(p.conv.Snapshot(), frames.Turn{Role: frames.RoleSystem, Content: prompt.Greeting})
		p.log.Debug("greeting_requested", "session_id", v.SessionID())
		return pipeline.Down(frames.NewModelTurnRequest(v.SessionID(), time.Now().UnixNano(), snap, v.Meta())), nil
	default:
		return pipeline.Pass(f, dir), nil
	}
}

// AssistantContextProcessor is the tail of the pipeline. It stores the
// assistant's answer once the last chunk arrives.
type AssistantContextProcessor struct {
	conv *aggregators.ConversationContext
	log  *slog.Logger
	buf  []string
}

func NewAssistantContextProcessor(conv *aggregators.ConversationContext, log *slog.Logger) *AssistantContextProcessor {
	return &AssistantContextProcessor{conv: conv, log: logging.NewComponentLogger(log, pipeline.StageContextAssistant)}
}

func (p *AssistantContextProcessor) Name() string { return pipeline.StageContextAssistant }

func (p *AssistantContextProcessor) Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]pipeline.Emission, error) {
	chunk, ok := f.(frames.ModelTurnResponseChunk)
	if !ok || dir != frames.Downstream {
		return pipeline.Pass(f, dir), nil
	}
	if text := strings.TrimSpace(chunk.Text()); text != "" {
		p.buf = append(p.buf, text)
	}
	if !chunk.IsFinal() {
		return nil, nil
	}
	full := strings.Join(p.buf, " ")
	p.buf = p.buf[:0]
	if full == "" {
		return nil, nil
	}
	if err := p.conv.AppendAssistant(full); err != nil {
		return nil, err
	}
	return nil, nil
}
