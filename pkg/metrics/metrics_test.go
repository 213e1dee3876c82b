package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAsyncObserverDeliversBeforeClose(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, 8)
	for i := 0; i < 5; i++ {
		a.RecordEvent(MetricsEvent{Name: EventFrameIn})
	}
	a.Close()
	if got := len(mem.Named(EventFrameIn)); got+int(a.Dropped()) != 5 {
		t.Fatalf("expected 5 events delivered or dropped, got %d delivered %d dropped", got, a.Dropped())
	}
	a.RecordEvent(MetricsEvent{Name: EventFrameIn})
	a.Close()
}

func TestRecordNilObserver(t *testing.T) {
	Record(nil, EventFrameIn, 1, nil)
	mem := NewMemoryObserver()
	Record(mem, EventRedaction, 2, map[string]string{TagCategory: "email"})
	evs := mem.Named(EventRedaction)
	if len(evs) != 1 || evs[0].Value != 2 || evs[0].Time.IsZero() {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestPrometheusObserverCounters(t *testing.T) {
	p := NewPrometheusObserver("checky")
	p.RecordEvent(MetricsEvent{Name: EventRedaction, Value: 2, Tags: map[string]string{TagCategory: "email"}})
	p.RecordEvent(MetricsEvent{Name: EventRedaction, Value: 1, Tags: map[string]string{TagCategory: "email"}})
	if got := testutil.ToFloat64(p.redactions.WithLabelValues("email")); got != 3 {
		t.Fatalf("expected 3 redactions, got %v", got)
	}

	p.RecordEvent(MetricsEvent{Name: EventSessionState, Tags: map[string]string{TagState: "active", TagFrom: "config_validating"}})
	p.RecordEvent(MetricsEvent{Name: EventSessionState, Tags: map[string]string{TagState: "active", TagFrom: "config_validating"}})
	p.RecordEvent(MetricsEvent{Name: EventSessionState, Tags: map[string]string{TagState: "idle_timed_out", TagFrom: "active"}})
	if got := testutil.ToFloat64(p.sessionsActive); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}

	now := time.Now()
	p.RecordEvent(MetricsEvent{Name: EventSTTFinal, Time: now, Tags: map[string]string{TagSessionID: "s1"}})
	p.RecordEvent(MetricsEvent{Name: EventTTSFirstAudio, Time: now.Add(time.Second), Tags: map[string]string{TagSessionID: "s1"}})
	if got := testutil.CollectAndCount(p.ttfb); got != 1 {
		t.Fatalf("expected ttfb histogram to be collected, got %d", got)
	}
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	p := NewPrometheusObserver("checky")
	p.RecordEvent(MetricsEvent{Name: EventFrameIn, Tags: map[string]string{TagStage: "input", TagKind: "audio", TagDirection: "downstream"}})
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "checky_pipeline_frames_total") {
		t.Fatalf("expected namespaced metric in output")
	}
}
