package processors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxmail/voxmail/pkg/adapters/stt"
	"github.com/voxmail/voxmail/pkg/errorsx"
	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/metrics"
	"github.com/voxmail/voxmail/pkg/pipeline"
	"github.com/voxmail/voxmail/pkg/resilience"
)

// STTProcessor streams caller audio to a speech-to-text vendor and turns
// its transcripts into text frames. One vendor session per stream.
type STTProcessor struct {
	mu             sync.Mutex
	sessions       map[string]stt.StreamingSTT
	factory        func(callSID, streamID string) stt.StreamingSTT
	streamCall     map[string]string
	trace          map[string]string
	forwardInterim bool

	ctx     context.Context
	obs     metrics.Observer
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

func NewSTTProcessor(factory func(callSID, streamID string) stt.StreamingSTT) *STTProcessor {
	return &STTProcessor{
		sessions:   make(map[string]stt.StreamingSTT),
		factory:    factory,
		streamCall: make(map[string]string),
		trace:      make(map[string]string),
		ctx:        context.Background(),
		retry:      resilience.NewRetryPolicy(2, 50*time.Millisecond),
		breaker:    resilience.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (p *STTProcessor) Name() string { return "stt_processor" }

func (p *STTProcessor) SetObserver(obs metrics.Observer) { p.obs = obs }

func (p *STTProcessor) SetContext(ctx context.Context) {
	if ctx != nil {
		p.ctx = ctx
	}
}

// SetForwardInterim toggles emitting interim transcripts downstream.
// They never trigger turn processing either way; the agent stage skips
// anything not marked final.
func (p *STTProcessor) SetForwardInterim(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forwardInterim = enabled
}

func (p *STTProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	if f.Kind() == frames.KindSystem {
		sf := f.(frames.SystemFrame)
		if sf.Name() == "call_end" {
			if streamID := sf.Meta()[frames.MetaStreamID]; streamID != "" {
				p.CloseStream(streamID)
			}
			return []frames.Frame{f}, nil
		}
		return []frames.Frame{f}, nil
	}
	if f.Kind() != frames.KindAudio {
		return []frames.Frame{f}, nil
	}

	af := f.(frames.AudioFrame)
	meta := af.Meta()
	streamID := meta[frames.MetaStreamID]
	callSID := meta[frames.MetaCallSID]
	p.track(streamID, callSID, meta[frames.MetaTraceID])

	if !p.breaker.Allow() {
		p.record(metrics.EventBreakerDenied, streamID)
		frames.ReleaseAudioFrame(f)
		return []frames.Frame{frames.NewControlFrame(streamID, time.Now().UnixNano(), frames.ControlFallback, meta)}, nil
	}

	session, err := p.getOrCreate(streamID, callSID)
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonSTTConnect)
		slog.Info("stt_session_error", "stream_id", streamID, "call_sid", callSID,
			"reason_code", string(errorsx.Reason(err)), "error", err.Error())
		p.breaker.OnError(err)
		frames.ReleaseAudioFrame(f)
		return []frames.Frame{frames.NewControlFrame(streamID, time.Now().UnixNano(), frames.ControlFallback, meta)}, nil
	}

	if err := session.SendAudio(af); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonSTTSend)
		slog.Info("stt_send_error", "stream_id", streamID, "call_sid", callSID,
			"reason_code", string(errorsx.Reason(err)), "error", err.Error())
		retryErr := p.retry.Do(func() error {
			p.CloseStream(streamID)
			session, err = p.getOrCreate(streamID, callSID)
			if err != nil {
				return err
			}
			return session.SendAudio(af)
		})
		if retryErr != nil {
			if resilience.IsRateLimit(retryErr) {
				p.record(metrics.EventRateLimit, streamID)
			}
			p.breaker.OnError(retryErr)
			frames.ReleaseAudioFrame(f)
			return []frames.Frame{frames.NewControlFrame(streamID, time.Now().UnixNano(), frames.ControlFallback, meta)}, nil
		}
	}
	p.breaker.OnSuccess()
	frames.ReleaseAudioFrame(f)

	out := p.drain(session.Results(), streamID)
	return out, nil
}

func (p *STTProcessor) getOrCreate(streamID, callSID string) (stt.StreamingSTT, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[streamID]; ok {
		return session, nil
	}
	session := p.factory(callSID, streamID)
	if err := session.Start(p.ctx); err != nil {
		return nil, err
	}
	p.sessions[streamID] = session
	return session, nil
}

func (p *STTProcessor) CloseStream(streamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[streamID]; ok {
		_ = session.Close()
		delete(p.sessions, streamID)
	}
	delete(p.streamCall, streamID)
	delete(p.trace, streamID)
}

func (p *STTProcessor) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, session := range p.sessions {
		_ = session.Close()
		delete(p.sessions, id)
	}
	p.streamCall = make(map[string]string)
	p.trace = make(map[string]string)
}

func (p *STTProcessor) drain(ch <-chan frames.Frame, streamID string) []frames.Frame {
	var out []frames.Frame
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			if f.Kind() == frames.KindText {
				tf := f.(frames.TextFrame)
				if !frames.IsFinal(tf.Meta()) {
					p.mu.Lock()
					forward := p.forwardInterim
					p.mu.Unlock()
					if forward {
						out = append(out, tf)
					}
					continue
				}
				slog.Debug("stt_final", "stream_id", streamID)
				p.record(metrics.EventSTTFinal, streamID)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func (p *STTProcessor) track(streamID, callSID, traceID string) {
	if streamID == "" {
		return
	}
	p.mu.Lock()
	if callSID != "" {
		p.streamCall[streamID] = callSID
	}
	if traceID != "" {
		p.trace[streamID] = traceID
	}
	p.mu.Unlock()
}

func (p *STTProcessor) record(name, streamID string) {
	if p.obs == nil {
		return
	}
	tags := map[string]string{frames.MetaStreamID: streamID, "component": "stt"}
	p.mu.Lock()
	if callSID := p.streamCall[streamID]; callSID != "" {
		tags[frames.MetaCallSID] = callSID
	}
	if traceID := p.trace[streamID]; traceID != "" {
		tags[frames.MetaTraceID] = traceID
	}
	p.mu.Unlock()
	p.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: tags})
}

var _ pipeline.FrameProcessor = (*STTProcessor)(nil)
