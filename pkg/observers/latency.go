package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voxmail/voxmail/pkg/metrics"
)

// LatencyObserver correlates per-stream pipeline events into a single
// turn latency record: transcript finalized -> agent reply -> first audio.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*turnTrace
	log    *slog.Logger
}

type turnTrace struct {
	sttFinal   time.Time
	agentReply time.Time
	ttsFirst   time.Time
	traceID    string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*turnTrace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	streamID := ""
	if ev.Tags != nil {
		streamID = ev.Tags["stream_id"]
	}
	if streamID == "" {
		return
	}
	o.mu.Lock()
	t := o.traces[streamID]
	if t == nil {
		t = &turnTrace{}
		o.traces[streamID] = t
	}
	switch ev.Name {
	case "stt_final":
		if t.sttFinal.IsZero() {
			t.sttFinal = ev.Time
		}
		if t.traceID == "" && ev.Tags != nil {
			t.traceID = ev.Tags["trace_id"]
		}
	case "agent_reply":
		t.agentReply = ev.Time
	case "tts_first_audio":
		if t.ttsFirst.IsZero() {
			t.ttsFirst = ev.Time
		}
	}
	if !t.agentReply.IsZero() && !t.ttsFirst.IsZero() {
		o.logTurnLocked(streamID, t)
		delete(o.traces, streamID)
	}
	o.mu.Unlock()
}

func (o *LatencyObserver) logTurnLocked(streamID string, t *turnTrace) {
	o.log.Info("turn_latency",
		"stream_id", streamID,
		"trace_id", t.traceID,
		"agent_ms", durationMs(t.sttFinal, t.agentReply),
		"tts_first_audio_ms", durationMs(t.agentReply, t.ttsFirst),
		"ttfb_ms", durationMs(t.sttFinal, t.ttsFirst),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
