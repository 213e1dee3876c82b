package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/metrics"
)

// UsageSummary is what one session consumed from the vendors.
type UsageSummary struct {
	SessionID     string  `json:"session_id"`
	STTAudioSec   float64 `json:"stt_audio_seconds"`
	ModelTurns    int     `json:"model_turns"`
	Redactions    int     `json:"pii_redactions"`
	StageErrors   int     `json:"stage_errors"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates usage per session and writes
// <dir>/<session>.usage.json when the session closes.
type UsageObserver struct {
	dir string
	// BytesPerSecond converts inbound audio bytes to seconds.
	BytesPerSecond float64
	mu             sync.Mutex
	stats          map[string]*UsageSummary
}

func NewUsageObserver(dir string, sampleRate int) *UsageObserver {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	// 16-bit mono PCM.
	return &UsageObserver{dir: dir, BytesPerSecond: float64(sampleRate * 2), stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagSessionID]
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventSTTAudioIn:
		stat.STTAudioSec += ev.Value / o.BytesPerSecond
	case metrics.EventLLMDone:
		stat.ModelTurns++
	case metrics.EventRedaction:
		stat.Redactions += int(ev.Value)
	case metrics.EventStageError:
		stat.StageErrors++
	case metrics.EventSessionState:
		if ev.Tags[metrics.TagState] == "closed" {
			delete(o.stats, id)
			stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
			_ = o.write(*stat)
		}
	}
}

// Summary returns the running totals for a live session.
func (o *UsageObserver) Summary(sessionID string) (UsageSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat, ok := o.stats[sessionID]
	if !ok {
		return UsageSummary{}, false
	}
	return *stat, true
}

func (o *UsageObserver) write(s UsageSummary) error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(o.dir, sanitizeID(s.SessionID)+".usage.json"), b, 0o644)
}

var _ metrics.Observer = (*UsageObserver)(nil)
