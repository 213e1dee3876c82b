package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/redact"
	"github.com/harunnryd/checky/pkg/resilience"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

var errStreamEnded = errors.New("deepgram: stream ended")

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	Encoding       string
	Interim        bool
	UtteranceEndMS int
	SessionID      string
	TraceID        string
}

type StreamingSTT struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan frames.TranscriptText
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	logger     *slog.Logger
	retry      resilience.RetryPolicy
	closeOnce  sync.Once
	metaOnce   sync.Once
}

func New(cfg Config) *StreamingSTT {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Language == "" {
		cfg.Language = "de"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	return &StreamingSTT{
		cfg:    cfg,
		out:    make(chan frames.TranscriptText, 256),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt").With("session_id", cfg.SessionID),
		retry:  resilience.NewRetryPolicy(3, 200*time.Millisecond),
	}
}

// NewFactory opens one recognizer per session from shared settings.
func NewFactory(base Config) stt.Factory {
	return func(c stt.Config) (stt.StreamingSTT, error) {
		cfg := base
		cfg.SessionID = c.SessionID
		cfg.TraceID = c.TraceID
		if c.SampleRate > 0 {
			cfg.SampleRate = c.SampleRate
		}
		if c.Language != "" {
			cfg.Language = c.Language
		}
		return New(cfg), nil
	}
}

func (s *StreamingSTT) Name() string { return "deepgram_streaming" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       s.cfg.Language,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		InterimResults: s.cfg.Interim,
		SmartFormat:    true,
	}
	if s.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", s.cfg.UtteranceEndMS)
	}

	s.logger.Info("initializing deepgram connection",
		slog.String("model", s.cfg.Model),
		slog.String("language", s.cfg.Language),
		slog.Int("sample_rate", s.cfg.SampleRate))

	err := s.retry.Do(s.ctx, func(ctx context.Context) error {
		dgClient, err := client.NewWSUsingCallback(ctx, s.cfg.APIKey, clientOptions, transcriptOptions, &callback{parent: s})
		if err != nil {
			return err
		}
		if connected := dgClient.Connect(); !connected {
			return fmt.Errorf("deepgram connection failed")
		}
		s.dgClient = dgClient
		return nil
	})
	if err != nil {
		s.logger.Error("deepgram_connect_failed", slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	s.logger.Info("deepgram_connected")

	go func() {
		err := s.dgClient.Stream(s.pipeReader)
		if err != nil && s.ctx.Err() == nil {
			s.logger.Error("deepgram_stream_error", slog.String("error", err.Error()))
		}
		// Nobody reads the pipe any more; fail pending and later writes.
		if err == nil {
			err = errStreamEnded
		}
		_ = s.pipeReader.CloseWithError(err)
	}()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("closing deepgram connection")
		if s.cancel != nil {
			s.cancel()
		}
		if s.pipeWriter != nil {
			_ = s.pipeWriter.Close()
		}
		if s.dgClient != nil {
			s.dgClient.Stop()
		}
	})
	return nil
}

func (s *StreamingSTT) SendAudio(ctx context.Context, chunk frames.AudioChunk) error {
	if s.pipeWriter == nil {
		return errorsx.Wrap(fmt.Errorf("not started"), errorsx.ReasonSTTSend)
	}
	return writeChunk(ctx, s.pipeWriter, chunk.RawPayload(), s.logger)
}

// writeChunk writes to the stream pipe. io.Pipe writes block until read, so
// a done ctx closes the writer to release them.
func writeChunk(ctx context.Context, w *io.PipeWriter, data []byte, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	stop := context.AfterFunc(ctx, func() { _ = w.CloseWithError(ctx.Err()) })
	defer stop()
	if _, err := w.Write(data); err != nil {
		if ctx.Err() != nil {
			return errorsx.Wrap(ctx.Err(), errorsx.ReasonSTTSend)
		}
		log.Error("failed to send audio to deepgram", slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.TranscriptText { return s.out }

func (s *StreamingSTT) emit(text string, final bool) {
	meta := map[string]string{frames.MetaSource: "stt"}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	f := frames.NewTranscriptText(s.cfg.SessionID, time.Now().UnixNano(), text, final, meta)
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	select {
	case s.out <- f:
	default:
		s.logger.Warn("deepgram_out_channel_full")
	}
}

type callback struct {
	parent *StreamingSTT
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal
	c.parent.logger.Debug("transcript_received",
		slog.String("transcript", redact.ForLog(transcript)),
		slog.Bool("is_final", isFinal))
	c.parent.emit(transcript, isFinal)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.metaOnce.Do(func() {
		c.parent.logger.Info("deepgram_metadata_received", slog.String("request_id", md.RequestID))
	})
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event")
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.logger.Debug("utterance_end_event", slog.Int("utterance_end_ms", c.parent.cfg.UtteranceEndMS))
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event", slog.Int("bytes", len(byData)))
	return nil
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
