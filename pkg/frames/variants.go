package frames

type AudioChunk struct {
	header
	data []byte
	rate int
}

func NewAudioChunk(sessionID string, pts int64, data []byte, rate int, meta map[string]string) AudioChunk {
	return AudioChunk{
		header: newHeader(sessionID, pts, meta),
		data:   append([]byte(nil), data...),
		rate:   rate,
	}
}

func (AudioChunk) Kind() Kind { return KindAudio }

// Data returns a copy of the audio payload.
func (a AudioChunk) Data() []byte { return append([]byte(nil), a.data...) }

// RawPayload exposes the payload without copying. Callers must not modify it.
func (a AudioChunk) RawPayload() []byte { return a.data }
func (a AudioChunk) SampleRate() int    { return a.rate }
func (a AudioChunk) Len() int           { return len(a.data) }

type TranscriptText struct {
	header
	text    string
	isFinal bool
}

func NewTranscriptText(sessionID string, pts int64, text string, isFinal bool, meta map[string]string) TranscriptText {
	return TranscriptText{header: newHeader(sessionID, pts, meta), text: text, isFinal: isFinal}
}

func (TranscriptText) Kind() Kind      { return KindTranscript }
func (t TranscriptText) Text() string  { return t.text }
func (t TranscriptText) IsFinal() bool { return t.isFinal }

type RedactedText struct {
	header
	text    string
	isFinal bool
}

func NewRedactedText(sessionID string, pts int64, text string, isFinal bool, meta map[string]string) RedactedText {
	return RedactedText{header: newHeader(sessionID, pts, meta), text: text, isFinal: isFinal}
}

func (RedactedText) Kind() Kind      { return KindRedacted }
func (r RedactedText) Text() string  { return r.text }
func (r RedactedText) IsFinal() bool { return r.isFinal }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

type ModelTurnRequest struct {
	header
	snapshot []Turn
}

func NewModelTurnRequest(sessionID string, pts int64, snapshot []Turn, meta map[string]string) ModelTurnRequest {
	return ModelTurnRequest{
		header:   newHeader(sessionID, pts, meta),
		snapshot: append([]Turn(nil), snapshot...),
	}
}

func (ModelTurnRequest) Kind() Kind { return KindModelRequest }

// Snapshot returns a copy of the conversation handed to the model.
func (m ModelTurnRequest) Snapshot() []Turn { return append([]Turn(nil), m.snapshot...) }

type ModelTurnResponseChunk struct {
	header
	text    string
	isFinal bool
}

func NewModelTurnResponseChunk(sessionID string, pts int64, text string, isFinal bool, meta map[string]string) ModelTurnResponseChunk {
	return ModelTurnResponseChunk{header: newHeader(sessionID, pts, meta), text: text, isFinal: isFinal}
}

func (ModelTurnResponseChunk) Kind() Kind      { return KindModelResponse }
func (m ModelTurnResponseChunk) Text() string  { return m.text }
func (m ModelTurnResponseChunk) IsFinal() bool { return m.isFinal }

type SynthesizedAudio struct {
	header
	data []byte
	rate int
}

func NewSynthesizedAudio(sessionID string, pts int64, data []byte, rate int, meta map[string]string) SynthesizedAudio {
	return SynthesizedAudio{
		header: newHeader(sessionID, pts, meta),
		data:   append([]byte(nil), data...),
		rate:   rate,
	}
}

func (SynthesizedAudio) Kind() Kind           { return KindSynthesized }
func (s SynthesizedAudio) Data() []byte       { return append([]byte(nil), s.data...) }
func (s SynthesizedAudio) RawPayload() []byte { return s.data }
func (s SynthesizedAudio) SampleRate() int    { return s.rate }

type ControlKind string

const (
	ControlClientConnected    ControlKind = "client_connected"
	ControlClientDisconnected ControlKind = "client_disconnected"
	ControlIdleTimeout        ControlKind = "idle_timeout"
	ControlCancel             ControlKind = "cancel"
)

type ControlSignal struct {
	header
	kind ControlKind
}

func NewControlSignal(sessionID string, pts int64, kind ControlKind, meta map[string]string) ControlSignal {
	return ControlSignal{header: newHeader(sessionID, pts, meta), kind: kind}
}

func (ControlSignal) Kind() Kind            { return KindControl }
func (c ControlSignal) Control() ControlKind { return c.kind }

type ErrorSignal struct {
	header
	cause error
	stage string
}

func NewErrorSignal(sessionID string, pts int64, cause error, stage string, meta map[string]string) ErrorSignal {
	return ErrorSignal{header: newHeader(sessionID, pts, meta), cause: cause, stage: stage}
}

func (ErrorSignal) Kind() Kind          { return KindError }
func (e ErrorSignal) Cause() error      { return e.cause }
func (e ErrorSignal) StageName() string { return e.stage }

func (e ErrorSignal) Error() string {
	if e.cause == nil {
		return e.stage + ": unknown error"
	}
	return e.stage + ": " + e.cause.Error()
}

func (e ErrorSignal) Unwrap() error { return e.cause }

var (
	_ Frame = AudioChunk{}
	_ Frame = TranscriptText{}
	_ Frame = RedactedText{}
	_ Frame = ModelTurnRequest{}
	_ Frame = ModelTurnResponseChunk{}
	_ Frame = SynthesizedAudio{}
	_ Frame = ControlSignal{}
	_ Frame = ErrorSignal{}
)
