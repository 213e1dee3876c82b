package checky

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/adapters/tts"
	"github.com/harunnryd/checky/pkg/configutil"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/providers/deepgram"
	"github.com/harunnryd/checky/pkg/providers/elevenlabs"
	"github.com/harunnryd/checky/pkg/providers/gemini"
	"github.com/harunnryd/checky/pkg/providers/mock"
	"github.com/harunnryd/checky/pkg/providers/openai"
	"github.com/harunnryd/checky/pkg/resilience"
)

type deepgramSettings struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Encoding       string `mapstructure:"encoding"`
	Interim        *bool  `mapstructure:"interim"`
	UtteranceEndMS *int   `mapstructure:"utterance_end_ms"`
}

type elevenlabsSettings struct {
	APIKey       string            `mapstructure:"api_key"`
	ModelID      string            `mapstructure:"model_id"`
	OutputFormat string            `mapstructure:"output_format"`
	SampleRate   int               `mapstructure:"sample_rate"`
	VoiceMap     map[string]string `mapstructure:"voice_map"`
	BaseURL      string            `mapstructure:"base_url"`
}

type geminiSettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

type openAISettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

type mockSTTSettings struct {
	Transcript         string   `mapstructure:"transcript"`
	InterimTranscript  string   `mapstructure:"interim_transcript"`
	EmitInterim        *bool    `mapstructure:"emit_interim"`
	Script             []string `mapstructure:"script"`
	ChunksPerUtterance int      `mapstructure:"chunks_per_utterance"`
}

type mockTTSSettings struct {
	SampleRate    int `mapstructure:"sample_rate"`
	ChunksPerText int `mapstructure:"chunks_per_text"`
	ChunkBytes    int `mapstructure:"chunk_bytes"`
}

type mockLLMSettings struct {
	ResponseText string   `mapstructure:"response_text"`
	StreamChunks []string `mapstructure:"stream_chunks"`
	ChunkDelayMS *int     `mapstructure:"chunk_delay_ms"`
}

// DefaultProviders registers every vendor adapter shipped with checky.
func DefaultProviders() *ProviderRegistry {
	reg := NewProviderRegistry()
	registerProviders(reg)
	return reg
}

func registerProviders(reg *ProviderRegistry) {
	reg.RegisterSTT("deepgram", func(cfg Config) (stt.Factory, error) {
		if err := configutil.ValidateAt("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: []string{"api_key", "model", "language", "sample_rate", "encoding", "interim", "utterance_end_ms"},
		}); err != nil {
			return nil, err
		}
		var settings deepgramSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		settings.APIKey = envFallback(settings.APIKey, "DEEPGRAM_API_KEY")
		if err := configutil.RequireString(settings.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		if settings.SampleRate == 0 {
			settings.SampleRate = cfg.Server.SampleRate
		}
		if settings.Encoding == "" {
			settings.Encoding = "linear16"
		}
		if err := configutil.OneOf(settings.Encoding, "vendors.stt.settings.encoding", "linear16", "mulaw"); err != nil {
			return nil, err
		}
		utteranceEnd := configutil.IntValue(settings.UtteranceEndMS, 1000)
		if utteranceEnd < 0 || utteranceEnd > 5000 {
			return nil, fmt.Errorf("vendors.stt.settings.utterance_end_ms must be between 0 and 5000, got %d", utteranceEnd)
		}
		return deepgram.NewFactory(deepgram.Config{
			APIKey:         settings.APIKey,
			Model:          settings.Model,
			Language:       settings.Language,
			SampleRate:     settings.SampleRate,
			Encoding:       strings.ToLower(settings.Encoding),
			Interim:        configutil.BoolValue(settings.Interim, true),
			UtteranceEndMS: utteranceEnd,
		}), nil
	})

	reg.RegisterSTT("mock", func(cfg Config) (stt.Factory, error) {
		if err := configutil.ValidateAt("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: []string{"transcript", "interim_transcript", "emit_interim", "script", "chunks_per_utterance"},
		}); err != nil {
			return nil, err
		}
		var settings mockSTTSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		return mock.NewSTTFactory(mock.STTConfig{
			Transcript:         settings.Transcript,
			InterimTranscript:  settings.InterimTranscript,
			EmitInterim:        configutil.BoolValue(settings.EmitInterim, false),
			Script:             settings.Script,
			ChunksPerUtterance: settings.ChunksPerUtterance,
		}), nil
	})

	reg.RegisterTTS("elevenlabs", func(cfg Config) (tts.Factory, error) {
		if err := configutil.ValidateAt("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"api_key", "model_id", "output_format", "sample_rate", "voice_map", "base_url"},
		}); err != nil {
			return nil, err
		}
		var settings elevenlabsSettings
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		settings.APIKey = envFallback(settings.APIKey, "ELEVENLABS_API_KEY")
		if err := configutil.RequireString(settings.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		if settings.SampleRate == 0 {
			settings.SampleRate = cfg.Server.SampleRate
		}
		if settings.OutputFormat == "" && settings.SampleRate > 0 {
			settings.OutputFormat = fmt.Sprintf("pcm_%d", settings.SampleRate)
		}
		return elevenlabs.NewFactory(elevenlabs.Config{
			APIKey:       settings.APIKey,
			ModelID:      settings.ModelID,
			OutputFormat: settings.OutputFormat,
			SampleRate:   settings.SampleRate,
			VoiceMap:     settings.VoiceMap,
			BaseURL:      settings.BaseURL,
		}), nil
	})

	reg.RegisterTTS("mock", func(cfg Config) (tts.Factory, error) {
		if err := configutil.ValidateAt("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"sample_rate", "chunks_per_text", "chunk_bytes"},
		}); err != nil {
			return nil, err
		}
		var settings mockTTSSettings
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.SampleRate == 0 {
			settings.SampleRate = cfg.Server.SampleRate
		}
		return func(tts.Config) (tts.Synthesizer, error) {
			return mock.NewTTS(mock.TTSConfig{
				SampleRate:    settings.SampleRate,
				ChunksPerText: settings.ChunksPerText,
				ChunkBytes:    settings.ChunkBytes,
			}), nil
		}, nil
	})

	reg.RegisterLLM("gemini", func(ctx context.Context, cfg Config) (llm.LLMAdapter, error) {
		if err := configutil.ValidateAt("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Optional: []string{"api_key", "model", "temperature", "max_tokens"},
		}); err != nil {
			return nil, err
		}
		var settings geminiSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		gc := gemini.Config{Model: settings.Model, MaxTokens: int32(settings.MaxTokens)}
		if settings.Temperature != nil {
			gc.Temperature = float32(*settings.Temperature)
		}
		if key := strings.TrimSpace(settings.APIKey); key != "" {
			gc.APIKey = key
			return gemini.New(ctx, gc)
		}
		// Without an explicit key the client is created on first use, so a
		// key exported after startup is picked up. Sessions are refused by
		// the credential check until then.
		return &deferredLLM{name: "gemini", build: func(ctx context.Context) (llm.LLMAdapter, error) {
			c := gc
			c.APIKey = os.Getenv("GEMINI_API_KEY")
			return gemini.New(ctx, c)
		}}, nil
	})

	reg.RegisterLLM("openai", func(_ context.Context, cfg Config) (llm.LLMAdapter, error) {
		if err := configutil.ValidateAt("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"model"},
			Optional: []string{"api_key", "base_url", "temperature", "max_tokens"},
		}); err != nil {
			return nil, err
		}
		var settings openAISettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		settings.APIKey = envFallback(settings.APIKey, "OPENAI_API_KEY")
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		adapter := openai.NewAdapter(settings.APIKey, settings.Model)
		if settings.BaseURL != "" {
			adapter.BaseURL = settings.BaseURL
		}
		if settings.Temperature != nil {
			adapter.Temperature = *settings.Temperature
		}
		adapter.MaxTokens = settings.MaxTokens
		return adapter, nil
	})

	reg.RegisterLLM("mock", func(_ context.Context, cfg Config) (llm.LLMAdapter, error) {
		if err := configutil.ValidateAt("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Optional: []string{"response_text", "stream_chunks", "chunk_delay_ms"},
		}); err != nil {
			return nil, err
		}
		var settings mockLLMSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		return mock.NewLLMAdapter(mock.LLMConfig{
			ResponseText: settings.ResponseText,
			StreamChunks: settings.StreamChunks,
			ChunkDelay:   configutil.MillisValue(settings.ChunkDelayMS, 0),
		}), nil
	})
}

// resilientLLM wraps a vendor adapter with retries inside a circuit breaker.
// A non-positive breaker threshold disables the breaker.
func resilientLLM(inner llm.LLMAdapter, cfg ResilienceConfig, obs metrics.Observer) llm.LLMAdapter {
	var out llm.LLMAdapter = inner
	if cfg.LLMRetries > 0 {
		out = llm.NewRetryAdapter(out, llm.RetryConfig{MaxAttempts: cfg.LLMRetries + 1})
	}
	if cfg.BreakerThreshold > 0 {
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		cb := llm.NewCircuitBreakerAdapter(out, resilience.NewCircuitBreaker(cfg.BreakerThreshold, cooldown))
		cb.SetObserver(obs)
		out = cb
	}
	return out
}

func envFallback(value, env string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return os.Getenv(env)
}

// deferredLLM builds its adapter on the first Stream call. A failed build is
// retried on the next call.
type deferredLLM struct {
	name  string
	build func(ctx context.Context) (llm.LLMAdapter, error)

	mu    sync.Mutex
	inner llm.LLMAdapter
}

func (d *deferredLLM) Name() string { return d.name }

func (d *deferredLLM) Stream(ctx context.Context, input llm.Context) (<-chan llm.Delta, error) {
	d.mu.Lock()
	if d.inner == nil {
		inner, err := d.build(ctx)
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		d.inner = inner
	}
	inner := d.inner
	d.mu.Unlock()
	return inner.Stream(ctx, input)
}

var _ llm.LLMAdapter = (*deferredLLM)(nil)
