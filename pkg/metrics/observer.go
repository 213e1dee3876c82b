package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Event names emitted by the pipeline and the session controller.
const (
	EventFrameIn       = "frame_in"
	EventFrameOut      = "frame_out"
	EventFrameDrop     = "frame_drop"
	EventStageLatency  = "stage_latency_us"
	EventStageError    = "stage_error"
	EventRedaction     = "pii_redacted"
	EventSessionState  = "session_state"
	EventSTTAudioIn    = "stt_audio_in"
	EventSTTFinal      = "stt_final"
	EventLLMFirstToken = "llm_first_token"
	EventLLMDone       = "llm_done"
	EventTTSFirstAudio = "tts_first_audio"
	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
)

// Tag keys.
const (
	TagSessionID = "session_id"
	TagStage     = "stage"
	TagKind      = "kind"
	TagDirection = "direction"
	TagCategory  = "category"
	TagState     = "state"
	TagFrom      = "from"
	TagReason    = "reason_code"
)

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record stamps and forwards an event. A nil observer is allowed.
func Record(o Observer, name string, value float64, tags map[string]string) {
	if o == nil {
		return
	}
	o.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}
