package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonMailSend     ReasonCode = "mail_send"
	ReasonMailRead     ReasonCode = "mail_read"
	ReasonMailSearch   ReasonCode = "mail_search"
	ReasonMailReply    ReasonCode = "mail_reply"
	ReasonMailMarkRead ReasonCode = "mail_mark_read"

	ReasonIntentClassify ReasonCode = "intent_classify"
	ReasonLLMGenerate    ReasonCode = "llm_generate"
	ReasonLLMStructured  ReasonCode = "llm_structured"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"
	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSSend    ReasonCode = "tts_send"

	ReasonSessionStore ReasonCode = "session_store"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"
	ReasonRoomCreate                ReasonCode = "room_create"
	ReasonTokenCreate               ReasonCode = "token_create"
)
