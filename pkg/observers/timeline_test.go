package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/checky/pkg/metrics"
)

func event(name, session string, value float64, tags map[string]string) metrics.MetricsEvent {
	all := map[string]string{metrics.TagSessionID: session}
	for k, v := range tags {
		all[k] = v
	}
	return metrics.MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: all}
}

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(event(metrics.EventFrameOut, "sess-1", 0, map[string]string{metrics.TagKind: "synthesized_audio"}))
	ev := event("note", "sess-1", 0, nil)
	ev.Fields = map[string]any{"text": "schreib an mia@example.com"}
	obs.RecordEvent(ev)
	obs.RecordEvent(event(metrics.EventSessionState, "sess-1", 1, map[string]string{metrics.TagState: "closed"}))
	if len(obs.files) != 0 {
		t.Fatalf("file must be closed with the session")
	}

	b, err := os.ReadFile(filepath.Join(dir, "sess-1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var first timelineEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Event != "audio_out" || first.SessionID != "sess-1" {
		t.Fatalf("unexpected entry %+v", first)
	}
	if strings.Contains(lines[1], "mia@example.com") {
		t.Fatalf("timeline leaked an email: %s", lines[1])
	}
}

func TestTimelineIgnoresEventsWithoutSession(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventFrameIn, Time: time.Now()})
	_ = obs.Close()
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestUsageObserverWritesSummaryOnClose(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir, 16000)
	obs.RecordEvent(event(metrics.EventSTTAudioIn, "s1", 32000, nil))
	obs.RecordEvent(event(metrics.EventSTTAudioIn, "s1", 16000, nil))
	obs.RecordEvent(event(metrics.EventLLMDone, "s1", 120, nil))
	obs.RecordEvent(event(metrics.EventRedaction, "s1", 2, map[string]string{metrics.TagCategory: "email"}))

	live, ok := obs.Summary("s1")
	if !ok || live.STTAudioSec != 1.5 || live.ModelTurns != 1 || live.Redactions != 2 {
		t.Fatalf("unexpected running summary %+v", live)
	}

	obs.RecordEvent(event(metrics.EventSessionState, "s1", 1, map[string]string{metrics.TagState: "closed"}))
	if _, ok := obs.Summary("s1"); ok {
		t.Fatalf("summary must be dropped after close")
	}
	b, err := os.ReadFile(filepath.Join(dir, "s1.usage.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var got UsageSummary
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.STTAudioSec != 1.5 || got.RecordedAtUTC == "" {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestLatencyObserverCompletesTurn(t *testing.T) {
	obs := NewLatencyObserver(nil)
	for _, name := range []string{metrics.EventSTTAudioIn, metrics.EventSTTFinal, metrics.EventLLMFirstToken, metrics.EventLLMDone} {
		obs.RecordEvent(event(name, "s1", 0, nil))
	}
	if obs.Pending() != 1 {
		t.Fatalf("expected a turn in progress")
	}
	obs.RecordEvent(event(metrics.EventTTSFirstAudio, "s1", 0, nil))
	if obs.Pending() != 0 {
		t.Fatalf("turn should be complete after first audio")
	}
	// Audio for a later sentence of the same answer must not open a turn.
	obs.RecordEvent(event(metrics.EventTTSFirstAudio, "s1", 0, nil))
	if obs.Pending() != 0 {
		t.Fatalf("stray audio event opened a turn")
	}
}

func TestPurgeArtifacts(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	_ = os.Chtimes(old, past, past)
	_ = os.Chtimes(other, past, past)

	n, err := PurgeArtifacts(dir, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected one removal, got %d %v", n, err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("non artifact removed")
	}
	if n, err := PurgeArtifacts(filepath.Join(dir, "missing"), time.Hour); err != nil || n != 0 {
		t.Fatalf("missing dir should be a no-op, got %d %v", n, err)
	}
}
