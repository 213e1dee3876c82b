package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/metrics"
)

// LatencyObserver logs, per answered turn, how long recognition, the first
// model token and the first synthesized audio took.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	audioIn  time.Time
	sttFinal time.Time
	llmFirst time.Time
	ttsFirst time.Time
	llmDone  time.Time
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ev.Tags[metrics.TagSessionID]
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if ev.Name == metrics.EventSessionState && ev.Tags[metrics.TagState] == "closed" {
		delete(o.traces, sessionID)
		return
	}
	t := o.traces[sessionID]
	if t == nil {
		// Only audio or a model answer opens a turn.
		if ev.Name != metrics.EventSTTAudioIn && ev.Name != metrics.EventLLMFirstToken {
			return
		}
		t = &trace{}
		o.traces[sessionID] = t
	}
	switch ev.Name {
	case metrics.EventSTTAudioIn:
		if t.audioIn.IsZero() {
			t.audioIn = ev.Time
		}
	case metrics.EventSTTFinal:
		if t.sttFinal.IsZero() {
			t.sttFinal = ev.Time
		}
	case metrics.EventLLMFirstToken:
		if t.llmFirst.IsZero() {
			t.llmFirst = ev.Time
		}
	case metrics.EventTTSFirstAudio:
		if t.ttsFirst.IsZero() && !t.llmDone.IsZero() {
			t.ttsFirst = ev.Time
		}
	case metrics.EventLLMDone:
		t.llmDone = ev.Time
	}
	// The greeting has no transcript; it is logged with stt_ms -1.
	if !t.llmDone.IsZero() && !t.ttsFirst.IsZero() {
		o.logLocked(sessionID, t)
		delete(o.traces, sessionID)
	}
}

func (o *LatencyObserver) logLocked(sessionID string, t *trace) {
	o.log.Info("turn_latency",
		"session_id", sessionID,
		"stt_ms", durationMs(t.audioIn, t.sttFinal),
		"llm_first_token_ms", durationMs(t.sttFinal, t.llmFirst),
		"tts_first_audio_ms", durationMs(t.llmFirst, t.ttsFirst),
		"ttfb_ms", durationMs(t.sttFinal, t.ttsFirst),
	)
}

// Pending returns the number of sessions with a turn in progress.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.traces)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
