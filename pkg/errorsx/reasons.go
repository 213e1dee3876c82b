package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfigMissing     ReasonCode = "config_missing"
	ReasonConfigInvalid     ReasonCode = "config_invalid"
	ReasonCredentialMissing ReasonCode = "credential_missing"
	ReasonStoreQuery        ReasonCode = "store_query"
	ReasonAuthFailed        ReasonCode = "auth_failed"

	ReasonSTTConnect   ReasonCode = "stt_connect"
	ReasonSTTSend      ReasonCode = "stt_send"
	ReasonSTTRateLimit ReasonCode = "stt_rate_limit"

	ReasonTTSConnect     ReasonCode = "tts_connect"
	ReasonTTSSynthesize  ReasonCode = "tts_synthesize"
	ReasonTTSRateLimit   ReasonCode = "tts_rate_limit"
	ReasonTTSCircuitOpen ReasonCode = "tts_circuit_open"

	ReasonLLMStream      ReasonCode = "llm_stream"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"

	ReasonStagePanic    ReasonCode = "stage_panic"
	ReasonTransportSend ReasonCode = "transport_send"
)
