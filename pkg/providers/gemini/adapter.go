package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/llm"
	"github.com/harunnryd/checky/pkg/resilience"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// Adapter streams answers from the Gemini API.
type Adapter struct {
	cfg    Config
	client *genai.Client
}

func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errorsx.Wrap(errors.New("gemini: missing api key"), errorsx.ReasonCredentialMissing)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("gemini: %w", err), errorsx.ReasonLLMStream)
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Stream(ctx context.Context, input llm.Context) (<-chan llm.Delta, error) {
	contents := toContents(input.Conversation())
	if len(contents) == 0 {
		return nil, errorsx.Wrap(errors.New("gemini: empty conversation"), errorsx.ReasonLLMStream)
	}
	out := make(chan llm.Delta, 64)
	go func() {
		defer close(out)
		for resp, err := range a.client.Models.GenerateContentStream(ctx, a.cfg.Model, contents, a.config(input.System())) {
			if err != nil {
				if ctx.Err() == nil {
					llm.Send(ctx, out, llm.Delta{Err: classify(err)})
				}
				return
			}
			if text := resp.Text(); text != "" {
				if !llm.Send(ctx, out, llm.Delta{Text: text}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) config(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if a.cfg.Temperature > 0 {
		t := a.cfg.Temperature
		cfg.Temperature = &t
	}
	if a.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = a.cfg.MaxTokens
	}
	return cfg
}

// toContents maps turns onto Gemini roles. Gemini only takes system text as
// SystemInstruction, so a system turn after the leading one (the greeting
// nudge) is sent as user content. Consecutive turns of one role are merged
// since the API expects alternation.
func toContents(turns []frames.Turn) []*genai.Content {
	var out []*genai.Content
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if t.Role == frames.RoleAssistant {
			role = genai.RoleModel
		}
		if n := len(out); n > 0 && out[n-1].Role == string(role) {
			out[n-1].Parts = append(out[n-1].Parts, &genai.Part{Text: t.Content})
			continue
		}
		out = append(out, genai.NewContentFromText(t.Content, role))
	}
	return out
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return errorsx.Wrap(resilience.RateLimitError{Provider: "gemini", Message: apiErr.Message}, errorsx.ReasonLLMRateLimit)
	}
	return errorsx.Wrap(fmt.Errorf("gemini: %w", err), errorsx.ReasonLLMStream)
}

var _ llm.LLMAdapter = (*Adapter)(nil)
