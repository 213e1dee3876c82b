package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/checky/pkg/adapters/tts"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/resilience"
)

const defaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"

type Config struct {
	APIKey       string
	ModelID      string
	OutputFormat string
	SampleRate   int
	// VoiceMap translates a configured voice preset to an ElevenLabs voice
	// id. Unmapped presets are used as is.
	VoiceMap  map[string]string
	BaseURL   string
	SessionID string
}

// ElevenLabsTTS opens one stream-input websocket per utterance. The
// utterance is sent whole and the socket is read until the final message.
type ElevenLabsTTS struct {
	cfg    Config
	dialer websocket.Dialer
	retry  resilience.RetryPolicy
	logger *slog.Logger
}

type inbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func New(cfg Config) *ElevenLabsTTS {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &ElevenLabsTTS{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		retry:  resilience.NewRetryPolicy(2, 200*time.Millisecond),
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts").With("session_id", cfg.SessionID),
	}
}

// NewFactory returns a factory sharing cfg across sessions.
func NewFactory(base Config) tts.Factory {
	return func(c tts.Config) (tts.Synthesizer, error) {
		cfg := base
		cfg.SessionID = c.SessionID
		if c.SampleRate > 0 {
			cfg.SampleRate = c.SampleRate
		}
		return New(cfg), nil
	}
}

func (s *ElevenLabsTTS) Name() string { return "elevenlabs_tts" }

func (s *ElevenLabsTTS) Close() error { return nil }

func (s *ElevenLabsTTS) Synthesize(ctx context.Context, text, voiceID string) (<-chan tts.Result, error) {
	if s.cfg.APIKey == "" {
		return nil, errorsx.Wrap(errors.New("missing elevenlabs api key"), errorsx.ReasonTTSConnect)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		out := make(chan tts.Result)
		close(out)
		return out, nil
	}
	voice := s.voice(voiceID)
	u, err := s.buildURL(voice)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}

	var conn *websocket.Conn
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		c, resp, err := s.dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
				return resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		s.logger.Error("elevenlabs_connect_failed", slog.String("error", err.Error()))
		if resilience.IsRateLimit(err) {
			return nil, errorsx.Wrap(err, errorsx.ReasonTTSRateLimit)
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}

	for _, msg := range []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
		}
	}

	out := make(chan tts.Result, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		s.readLoop(ctx, conn, out)
	}()
	return out, nil
}

func (s *ElevenLabsTTS) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- tts.Result) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			s.send(ctx, out, tts.Result{Err: errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)})
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("elevenlabs_bad_message", slog.Int("bytes", len(data)))
			continue
		}
		if msg.Error != "" {
			s.send(ctx, out, tts.Result{Err: errorsx.Errorf(errorsx.ReasonTTSSynthesize, "elevenlabs: %s: %s", msg.Error, msg.Message)})
			return
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				s.logger.Error("elevenlabs_audio_decode_error", slog.String("error", err.Error()))
				continue
			}
			if !s.send(ctx, out, tts.Result{Audio: raw, SampleRate: s.cfg.SampleRate}) {
				return
			}
		}
		if msg.IsFinal {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *ElevenLabsTTS) send(ctx context.Context, out chan<- tts.Result, r tts.Result) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

// voice looks presets up case insensitively; config loaders lowercase map
// keys.
func (s *ElevenLabsTTS) voice(preset string) string {
	if v, ok := s.cfg.VoiceMap[preset]; ok && v != "" {
		return v
	}
	for k, v := range s.cfg.VoiceMap {
		if strings.EqualFold(k, preset) && v != "" {
			return v
		}
	}
	return preset
}

func (s *ElevenLabsTTS) buildURL(voiceID string) (string, error) {
	base, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("language_code", "de")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

var _ tts.Synthesizer = (*ElevenLabsTTS)(nil)
