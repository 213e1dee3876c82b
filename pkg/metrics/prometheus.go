package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver turns pipeline and session events into collectors on a
// dedicated registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	transitions    *prometheus.CounterVec
	frames         *prometheus.CounterVec
	drops          *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec
	redactions     *prometheus.CounterVec
	ttfb           prometheus.Histogram

	mu         sync.Mutex
	firstFinal map[string]time.Time
}

func NewPrometheusObserver(namespace string) *PrometheusObserver {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PrometheusObserver{
		registry: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently in the Active state",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Lifecycle transitions by target state",
		}, []string{"state"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_frames_total",
			Help:      "Frames delivered to a stage",
		}, []string{"stage", "kind", "direction"}),
		drops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_frames_dropped_total",
			Help:      "Frames discarded after cancellation",
		}, []string{"stage"}),
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Per-stage handling latency",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		}, []string{"stage"}),
		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Stage errors converted to error signals",
		}, []string{"stage", "reason_code"}),
		redactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_redactions_total",
			Help:      "Spans replaced by the PII redactor",
		}, []string{"category"}),
		ttfb: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_ttfb_seconds",
			Help:      "Final transcript to first synthesized audio",
			Buckets:   []float64{0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
		}),
		firstFinal: make(map[string]time.Time),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	tags := ev.Tags
	switch ev.Name {
	case EventFrameIn:
		p.frames.WithLabelValues(tags[TagStage], tags[TagKind], tags[TagDirection]).Inc()
	case EventFrameDrop:
		p.drops.WithLabelValues(tags[TagStage]).Inc()
	case EventStageLatency:
		p.stageLatency.WithLabelValues(tags[TagStage]).Observe(ev.Value / 1e6)
	case EventStageError:
		p.stageErrors.WithLabelValues(tags[TagStage], tags[TagReason]).Inc()
	case EventRedaction:
		p.redactions.WithLabelValues(tags[TagCategory]).Add(ev.Value)
	case EventSessionState:
		p.transitions.WithLabelValues(tags[TagState]).Inc()
		if tags[TagState] == "active" {
			p.sessionsActive.Inc()
		} else if tags[TagFrom] == "active" {
			p.sessionsActive.Dec()
		}
		if tags[TagState] == "closed" {
			p.mu.Lock()
			delete(p.firstFinal, tags[TagSessionID])
			p.mu.Unlock()
		}
	case EventSTTFinal:
		p.mu.Lock()
		if _, ok := p.firstFinal[tags[TagSessionID]]; !ok {
			p.firstFinal[tags[TagSessionID]] = ev.Time
		}
		p.mu.Unlock()
	case EventTTSFirstAudio:
		p.mu.Lock()
		at, ok := p.firstFinal[tags[TagSessionID]]
		delete(p.firstFinal, tags[TagSessionID])
		p.mu.Unlock()
		if ok {
			p.ttfb.Observe(ev.Time.Sub(at).Seconds())
		}
	}
}

func (p *PrometheusObserver) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
