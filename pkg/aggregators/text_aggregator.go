package aggregators

import (
	"strings"
)

type AggregatorConfig struct {
	// MinLen is the shortest sentence emitted before the stream ends.
	MinLen int
	// MaxTokens forces a flush when a sentence never ends.
	MaxTokens int
}

// SentenceAggregator groups streamed model tokens into sentence sized
// chunks so synthesis can start before the whole answer is known.
type SentenceAggregator struct {
	cfg        AggregatorConfig
	sb         strings.Builder
	tokenCount int
	full       strings.Builder
}

func NewSentenceAggregator(cfg AggregatorConfig) *SentenceAggregator {
	if cfg.MinLen <= 0 {
		cfg.MinLen = 8
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	return &SentenceAggregator{cfg: cfg}
}

// AddToken appends a token and returns a completed sentence, or "" when the
// current sentence is still open.
func (a *SentenceAggregator) AddToken(tok string) string {
	a.sb.WriteString(tok)
	a.full.WriteString(tok)
	a.tokenCount++
	text := a.sb.String()
	if !eosDetected(text) && a.tokenCount < a.cfg.MaxTokens {
		return ""
	}
	out := strings.TrimSpace(text)
	if len(out) < a.cfg.MinLen {
		return ""
	}
	a.reset()
	return out
}

// Flush returns whatever is buffered, regardless of length.
func (a *SentenceAggregator) Flush() string {
	out := strings.TrimSpace(a.sb.String())
	a.reset()
	return out
}

// Text returns everything added so far.
func (a *SentenceAggregator) Text() string {
	return strings.TrimSpace(a.full.String())
}

func (a *SentenceAggregator) reset() {
	a.sb.Reset()
	a.tokenCount = 0
}

func eosDetected(s string) bool {
	t := strings.TrimSpace(s)
	if len(t) == 0 {
		return false
	}
	if strings.HasSuffix(t, "...") {
		return len(t) >= 12
	}
	last := t[len(t)-1]
	return last == '.' || last == '!' || last == '?' || last == '\n'
}
