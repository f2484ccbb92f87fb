package processors

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voxmail/voxmail/pkg/conversation"
	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/metrics"
	"github.com/voxmail/voxmail/pkg/pipeline"
	"github.com/voxmail/voxmail/pkg/redact"
	"github.com/voxmail/voxmail/pkg/turn"
)

// AgentProcessor bridges the frame pipeline to the conversation manager.
// Exactly one lives in each session's pipeline, owning that session's
// conversation state. Only finalized transcripts start a turn, and only
// one turn runs at a time; finals arriving mid-turn are dropped rather
// than queued, since a stale answer is worse than none.
type AgentProcessor struct {
	manager  *conversation.Manager
	fsm      *turn.FSM
	ctx      context.Context
	obs      metrics.Observer
	inflight atomic.Bool
}

func NewAgentProcessor(manager *conversation.Manager, fsm *turn.FSM) *AgentProcessor {
	return &AgentProcessor{
		manager: manager,
		fsm:     fsm,
		ctx:     context.Background(),
	}
}

func (p *AgentProcessor) Name() string { return "agent_processor" }

func (p *AgentProcessor) SetObserver(obs metrics.Observer) { p.obs = obs }

func (p *AgentProcessor) SetContext(ctx context.Context) {
	if ctx != nil {
		p.ctx = ctx
	}
}

func (p *AgentProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	switch f.Kind() {
	case frames.KindSystem:
		return p.handleSystem(f.(frames.SystemFrame)), nil
	case frames.KindText:
		return p.handleText(f.(frames.TextFrame)), nil
	default:
		return []frames.Frame{f}, nil
	}
}

func (p *AgentProcessor) handleSystem(sf frames.SystemFrame) []frames.Frame {
	meta := sf.Meta()
	switch sf.Name() {
	case "call_start":
		if p.fsm != nil {
			p.fsm.OnUserSpeechStart()
		}
		if greeting := meta[frames.MetaGreetingText]; greeting != "" {
			reply := frames.NewTextFrame(meta[frames.MetaStreamID], time.Now().UnixNano(), greeting,
				map[string]string{frames.MetaSource: "agent"})
			return []frames.Frame{sf, reply}
		}
	case "call_end":
		// Remote party is gone; drop any in-flight work silently.
		p.manager.Reset()
		if p.fsm != nil {
			p.fsm.Hangup(meta[frames.MetaCallEndReason])
		}
	}
	return []frames.Frame{sf}
}

func (p *AgentProcessor) handleText(tf frames.TextFrame) []frames.Frame {
	meta := tf.Meta()
	if !frames.IsFinal(meta) {
		// Interim transcripts pass through untouched.
		return []frames.Frame{tf}
	}
	if meta[frames.MetaSource] == "agent" {
		return []frames.Frame{tf}
	}

	if !p.inflight.CompareAndSwap(false, true) {
		return nil
	}
	defer p.inflight.Store(false)

	if p.fsm != nil {
		p.fsm.OnTranscriptFinal()
	}

	response := p.manager.ProcessTurn(p.ctx, tf.Text())

	streamID := meta[frames.MetaStreamID]
	slog.Debug("agent_turn",
		"stream_id", streamID,
		"transcript", redactedPreview(tf.Text()),
		"phase", p.manager.State().Phase)
	if p.fsm != nil {
		if response == "" {
			p.fsm.OnTurnAbandoned()
		} else {
			p.fsm.OnReplyReady()
		}
	}
	if response == "" {
		return nil
	}

	p.record(streamID, meta[frames.MetaTraceID])

	replyMeta := map[string]string{
		frames.MetaSource: "agent",
		frames.MetaPhase:  p.manager.State().Phase.String(),
	}
	if callSID := meta[frames.MetaCallSID]; callSID != "" {
		replyMeta[frames.MetaCallSID] = callSID
	}
	if traceID := meta[frames.MetaTraceID]; traceID != "" {
		replyMeta[frames.MetaTraceID] = traceID
	}
	return []frames.Frame{frames.NewTextFrame(streamID, time.Now().UnixNano(), response, replyMeta)}
}

func (p *AgentProcessor) record(streamID, traceID string) {
	if p.obs == nil {
		return
	}
	tags := map[string]string{frames.MetaStreamID: streamID, "component": "agent"}
	if traceID != "" {
		tags[frames.MetaTraceID] = traceID
	}
	p.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventAgentReply, Time: time.Now(), Tags: tags})
}

// redactedPreview is used by debug logging call sites to avoid putting
// raw transcripts, which may contain addresses, into logs.
func redactedPreview(text string) string {
	return redact.Text(text)
}

var _ pipeline.FrameProcessor = (*AgentProcessor)(nil)
