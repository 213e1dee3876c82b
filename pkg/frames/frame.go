package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindAudio         Kind = "audio"
	KindTranscript    Kind = "transcript"
	KindRedacted      Kind = "redacted_text"
	KindModelRequest  Kind = "model_turn_request"
	KindModelResponse Kind = "model_turn_response"
	KindSynthesized   Kind = "synthesized_audio"
	KindControl       Kind = "control"
	KindError         Kind = "error"
)

const (
	MetaSessionID = "session_id"
	MetaTraceID   = "trace_id"
	MetaSource    = "source"
	MetaReason    = "reason"
)

// Frame is the unit of pipeline traffic. The set of implementations is closed
// to this package so stages can switch exhaustively over the variants.
type Frame interface {
	Kind() Kind
	SessionID() string
	PTS() int64
	Meta() map[string]string
	frame()
}

type Direction int

const (
	Downstream Direction = iota
	Upstream
)

func (d Direction) String() string {
	if d == Upstream {
		return "upstream"
	}
	return "downstream"
}

func (d Direction) Reverse() Direction {
	if d == Upstream {
		return Downstream
	}
	return Upstream
}

// NaturalDirection reports the direction a frame travels when it enters the
// pipeline from outside.
func NaturalDirection(f Frame) Direction {
	if _, ok := f.(ErrorSignal); ok {
		return Upstream
	}
	return Downstream
}

type header struct {
	sessionID string
	pts       int64
	meta      map[string]string
}

func newHeader(sessionID string, pts int64, meta map[string]string) header {
	return header{sessionID: sessionID, pts: pts, meta: mergeMeta(sessionID, meta)}
}

func (h header) SessionID() string       { return h.sessionID }
func (h header) PTS() int64              { return h.pts }
func (h header) Meta() map[string]string { return cloneMeta(h.meta) }
func (header) frame()                    {}

type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(sessionID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[sessionID] + time.Millisecond.Nanoseconds()
	g.value[sessionID] = v
	return v
}

func (g *PTSGen) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.value, sessionID)
	g.mu.Unlock()
}

func mergeMeta(sessionID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 1+len(meta))
	for k, v := range meta {
		out[k] = v
	}
	if sessionID != "" {
		out[MetaSessionID] = sessionID
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
