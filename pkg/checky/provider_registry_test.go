package checky

import (
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/metrics"
)

func mockConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Vendors.STT.Provider = "mock"
	cfg.Vendors.TTS.Provider = "mock"
	cfg.Vendors.LLM.Provider = "mock"
	cfg.Credentials.Required = nil
	return cfg
}

func TestUnknownProviderFailsFast(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Vendors.STT.Provider = "whisper"
	err := DefaultProviders().Check(cfg)
	if err == nil || err.Error() != "stt provider not registered: whisper" {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := NewEngine(context.Background(), EngineOptions{Config: cfg}); err == nil {
		t.Fatalf("engine must refuse an unknown provider")
	}
}

func TestDefaultProvidersNames(t *testing.T) {
	names := DefaultProviders().Names()
	want := map[string]string{
		"stt": "deepgram,mock",
		"tts": "elevenlabs,mock",
		"llm": "gemini,mock,openai",
	}
	for kind, list := range want {
		if got := strings.Join(names[kind], ","); got != list {
			t.Errorf("%s: expected %s, got %s", kind, list, got)
		}
	}
}

func TestProviderNamesCaseInsensitive(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Vendors.LLM.Provider = " Mock "
	if _, err := DefaultProviders().BuildLLM(context.Background(), cfg.Vendors.LLM.Provider, cfg); err != nil {
		t.Fatalf("build: %v", err)
	}
}

func TestMockSTTSettingsDecoded(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Vendors.STT.Settings = map[string]any{"transcript": "Hallo Checky"}
	factory, err := DefaultProviders().BuildSTTFactory("mock", cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rec, err := factory(stt.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if rec.Name() != "mock_stt" {
		t.Fatalf("unexpected recognizer %s", rec.Name())
	}
}

func TestUnknownSettingRejected(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Vendors.TTS.Settings = map[string]any{"pitch": 3}
	_, err := DefaultProviders().BuildTTSFactory("mock", cfg)
	if err == nil || !strings.Contains(err.Error(), "vendors.tts.settings: unknown: pitch") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDeepgramRequiresKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	cfg := mockConfig(t)
	_, err := DefaultProviders().BuildSTTFactory("deepgram", cfg)
	if err == nil || !strings.Contains(err.Error(), "vendors.stt.settings.api_key") {
		t.Fatalf("unexpected error %v", err)
	}
	cfg.Vendors.STT.Settings = map[string]any{"api_key": "k", "encoding": "opus"}
	if _, err := DefaultProviders().BuildSTTFactory("deepgram", cfg); err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestGeminiWithoutKeyDefersClient(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg := mockConfig(t)
	adapter, err := DefaultProviders().BuildLLM(context.Background(), "gemini", cfg)
	if err != nil {
		t.Fatalf("build without key must succeed: %v", err)
	}
	if adapter.Name() != "gemini" {
		t.Fatalf("unexpected adapter %s", adapter.Name())
	}
	_, err = adapter.Stream(context.Background(), llm.Context{})
	if !errorsx.HasReason(err, errorsx.ReasonCredentialMissing) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestResilientLLMWrapping(t *testing.T) {
	inner, err := DefaultProviders().BuildLLM(context.Background(), "mock", mockConfig(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wrapped := resilientLLM(inner, ResilienceConfig{LLMRetries: 1, BreakerThreshold: 2}, metrics.NewMemoryObserver())
	if _, ok := wrapped.(*llm.CircuitBreakerAdapter); !ok {
		t.Fatalf("expected breaker outermost, got %T", wrapped)
	}
	if wrapped.Name() != inner.Name() {
		t.Fatalf("wrappers must keep the vendor name")
	}
	if bare := resilientLLM(inner, ResilienceConfig{}, nil); bare != inner {
		t.Fatalf("expected no wrapping when disabled")
	}
	text, err := llm.Collect(context.Background(), mustStream(t, wrapped))
	if err != nil || text != "mock response" {
		t.Fatalf("unexpected answer %q %v", text, err)
	}
}

func mustStream(t *testing.T, a llm.LLMAdapter) <-chan llm.Delta {
	t.Helper()
	ch, err := a.Stream(context.Background(), llm.Context{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	return ch
}
