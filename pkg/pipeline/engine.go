package pipeline

import (
	"context"
	"log/slog"

	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/metrics"
)

// Stage names in pipeline order.
const (
	StageInput            = "input"
	StageSpeechToText     = "speech_to_text"
	StagePIIRedactor      = "pii_redactor"
	StageContextUser      = "context_user"
	StageLanguageModel    = "language_model"
	StageSpeechSynthesis  = "speech_synthesis"
	StageOutput           = "output"
	StageContextAssistant = "context_assistant"
)

// Order is the fixed stage order of every conversation pipeline.
var Order = []string{
	StageInput,
	StageSpeechToText,
	StagePIIRedactor,
	StageContextUser,
	StageLanguageModel,
	StageSpeechSynthesis,
	StageOutput,
	StageContextAssistant,
}

// FrameProcessor is one pipeline stage. Process may drop the frame (return
// nothing), pass it on, or emit derived frames in either direction. A
// returned error is turned into an ErrorSignal travelling upstream.
type FrameProcessor interface {
	Process(ctx context.Context, f frames.Frame, dir frames.Direction) ([]Emission, error)
	Name() string
}

// Emission is a frame leaving a stage together with its direction.
type Emission struct {
	Frame frames.Frame
	Dir   frames.Direction
}

// Down emits frames downstream in order.
func Down(fs ...frames.Frame) []Emission {
	out := make([]Emission, 0, len(fs))
	for _, f := range fs {
		out = append(out, Emission{Frame: f, Dir: frames.Downstream})
	}
	return out
}

// Up emits a frame upstream.
func Up(f frames.Frame) Emission {
	return Emission{Frame: f, Dir: frames.Upstream}
}

// Pass forwards the frame unchanged in the direction it arrived.
func Pass(f frames.Frame, dir frames.Direction) []Emission {
	return []Emission{{Frame: f, Dir: dir}}
}

// Sink receives frames that left the pipeline at either end.
type Sink func(frames.Frame)

// Tap observes every frame just before a stage handles it.
type Tap func(stage string, f frames.Frame, dir frames.Direction)

type Config struct {
	// Downstream receives frames leaving the last stage.
	Downstream Sink
	// Upstream receives frames leaving the first stage, typically control
	// and error signals for the session controller.
	Upstream Sink
	Tap      Tap
	Observer metrics.Observer
	Logger   *slog.Logger
}
