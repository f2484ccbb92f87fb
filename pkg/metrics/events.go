package metrics

// Well-known event names shared by processors and observers.
const (
	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"

	EventSTTFinal      = "stt_final"
	EventAgentReply    = "agent_reply"
	EventTTSFirstAudio = "tts_first_audio"
)
