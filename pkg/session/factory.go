package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/adapters/tts"
	"github.com/harunnryd/checky/pkg/aggregators"
	"github.com/harunnryd/checky/pkg/childcfg"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/pipeline"
	"github.com/harunnryd/checky/pkg/processors"
)

// Setup is what the controller hands a PipelineFactory once the session is
// allowed to start.
type Setup struct {
	SessionID string
	Child     childcfg.Configuration
	Context   *aggregators.ConversationContext
	Sender    processors.Sender
	// Pipeline carries the controller's sinks and tap. Factories must pass
	// it to Build unchanged.
	Pipeline pipeline.Config
}

// Built is a ready pipeline and the function releasing its adapters.
type Built struct {
	Pipeline *pipeline.Pipeline
	Release  func()
	// Transcripts, when set, delivers recognizer output. The controller
	// reads it between pushes so a transcript that arrives after the last
	// audio chunk is still answered.
	Transcripts <-chan frames.TranscriptText
}

// PipelineFactory opens the adapters for one session and wires them into a
// pipeline. It is only called after configuration checks passed.
type PipelineFactory func(ctx context.Context, s Setup) (*Built, error)

// Adapters configures the standard pipeline.
type Adapters struct {
	STT        stt.Factory
	TTS        tts.Factory
	LLM        llm.LLMAdapter
	Aggregator aggregators.AggregatorConfig
	SampleRate int
	Language   string
	Observer   metrics.Observer
	Logger     *slog.Logger
}

// NewPipelineFactory returns the factory for the eight stage conversation
// pipeline. Each session gets its own recognizer and synthesizer; the
// language model adapter is shared.
func NewPipelineFactory(a Adapters) PipelineFactory {
	if a.SampleRate <= 0 {
		a.SampleRate = 16000
	}
	if a.Language == "" {
		a.Language = "de"
	}
	return func(ctx context.Context, s Setup) (*Built, error) {
		if a.STT == nil || a.TTS == nil || a.LLM == nil {
			return nil, errors.New("session: pipeline adapters not configured")
		}
		log := a.Logger
		if log == nil {
			log = slog.Default()
		}
		log = log.With("session_id", s.SessionID)

		recognizer, err := a.STT(stt.Config{
			SessionID:  s.SessionID,
			SampleRate: a.SampleRate,
			Language:   a.Language,
		})
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonSTTConnect)
		}
		if err := recognizer.Start(ctx); err != nil {
			_ = recognizer.Close()
			return nil, errorsx.Wrap(err, errorsx.ReasonSTTConnect)
		}
		synth, err := a.TTS(tts.Config{SessionID: s.SessionID, SampleRate: a.SampleRate})
		if err != nil {
			_ = recognizer.Close()
			return nil, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
		}

		voice := s.Child.VoiceID
		if voice == "" {
			voice = childcfg.DefaultVoice
		}
		p, err := pipeline.NewVoiceAgentBuilder().
			WithInput(processors.NewInputProcessor(log)).
			WithSTT(processors.NewSTTProcessor(recognizer, a.Observer, log)).
			WithRedactor(processors.NewRedactorProcessor(a.Observer, log)).
			WithUserContext(processors.NewUserContextProcessor(s.Context, log)).
			WithLLM(processors.NewLLMProcessor(a.LLM, a.Aggregator, a.Observer, log)).
			WithTTS(processors.NewTTSProcessor(synth, voice, a.Observer, log)).
			WithOutput(processors.NewOutputProcessor(s.Sender, log)).
			WithAssistantContext(processors.NewAssistantContextProcessor(s.Context, log)).
			Build(s.Pipeline)
		if err != nil {
			_ = recognizer.Close()
			_ = synth.Close()
			return nil, err
		}

		release := func() {
			if err := recognizer.Close(); err != nil {
				log.Warn("stt_close_failed", "adapter", recognizer.Name(), "error", err)
			}
			if err := synth.Close(); err != nil {
				log.Warn("tts_close_failed", "adapter", synth.Name(), "error", err)
			}
		}
		return &Built{Pipeline: p, Release: release, Transcripts: recognizer.Results()}, nil
	}
}
