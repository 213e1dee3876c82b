package checky

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/checky/pkg/adapters/stt"
	"github.com/harunnryd/checky/pkg/adapters/tts"
	"github.com/harunnryd/checky/pkg/llm"
)

type STTFactoryBuilder func(cfg Config) (stt.Factory, error)
type TTSFactoryBuilder func(cfg Config) (tts.Factory, error)
type LLMFactory func(ctx context.Context, cfg Config) (llm.LLMAdapter, error)

// ProviderRegistry maps vendor names from the configuration to adapter
// constructors. Names are matched case insensitively.
type ProviderRegistry struct {
	stt map[string]STTFactoryBuilder
	tts map[string]TTSFactoryBuilder
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt: make(map[string]STTFactoryBuilder),
		tts: make(map[string]TTSFactoryBuilder),
		llm: make(map[string]LLMFactory),
	}
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactoryBuilder) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactoryBuilder) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildSTTFactory(provider string, cfg Config) (stt.Factory, error) {
	fn := r.stt[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTTSFactory(provider string, cfg Config) (tts.Factory, error) {
	fn := r.tts[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(ctx context.Context, provider string, cfg Config) (llm.LLMAdapter, error) {
	fn := r.llm[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(ctx, cfg)
}

// Check reports the first configured vendor that has no registration.
func (r *ProviderRegistry) Check(cfg Config) error {
	if r.stt[providerKey(cfg.Vendors.STT.Provider)] == nil {
		return fmt.Errorf("stt provider not registered: %s", cfg.Vendors.STT.Provider)
	}
	if r.tts[providerKey(cfg.Vendors.TTS.Provider)] == nil {
		return fmt.Errorf("tts provider not registered: %s", cfg.Vendors.TTS.Provider)
	}
	if r.llm[providerKey(cfg.Vendors.LLM.Provider)] == nil {
		return fmt.Errorf("llm provider not registered: %s", cfg.Vendors.LLM.Provider)
	}
	return nil
}

// Names lists registrations per kind, sorted.
func (r *ProviderRegistry) Names() map[string][]string {
	return map[string][]string{
		"stt": sortedKeys(r.stt),
		"tts": sortedKeys(r.tts),
		"llm": sortedKeys(r.llm),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
