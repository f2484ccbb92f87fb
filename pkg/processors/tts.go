package processors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxmail/voxmail/pkg/adapters/tts"
	"github.com/voxmail/voxmail/pkg/errorsx"
	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/metrics"
	"github.com/voxmail/voxmail/pkg/pipeline"
	"github.com/voxmail/voxmail/pkg/turn"
)

// TTSProcessor synthesizes agent utterances into audio frames. Only text
// frames tagged source=agent are spoken; transcripts pass through.
type TTSProcessor struct {
	mu         sync.Mutex
	sessions   map[string]tts.StreamingTTS
	factory    func(callSID, streamID string) tts.StreamingTTS
	firstAudio map[string]bool

	ctx context.Context
	obs metrics.Observer
	fsm *turn.FSM
}

func NewTTSProcessor(factory func(callSID, streamID string) tts.StreamingTTS) *TTSProcessor {
	return &TTSProcessor{
		sessions:   make(map[string]tts.StreamingTTS),
		factory:    factory,
		firstAudio: make(map[string]bool),
		ctx:        context.Background(),
	}
}

func (p *TTSProcessor) Name() string { return "tts_processor" }

func (p *TTSProcessor) SetObserver(obs metrics.Observer) { p.obs = obs }
func (p *TTSProcessor) SetTurnFSM(fsm *turn.FSM)         { p.fsm = fsm }

func (p *TTSProcessor) SetContext(ctx context.Context) {
	if ctx != nil {
		p.ctx = ctx
	}
}

func (p *TTSProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	meta := f.Meta()
	streamID := meta[frames.MetaStreamID]

	switch f.Kind() {
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		switch cf.Code() {
		case frames.ControlStartInterruption, frames.ControlCancel:
			p.flush(streamID)
		}
		return []frames.Frame{f}, nil

	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		if sf.Name() == "call_end" && streamID != "" {
			p.CloseStream(streamID)
		}
		return []frames.Frame{f}, nil

	case frames.KindText:
		if meta[frames.MetaSource] != "agent" {
			return []frames.Frame{f}, nil
		}
		return p.speak(f.(frames.TextFrame), streamID, meta)

	default:
		return []frames.Frame{f}, nil
	}
}

func (p *TTSProcessor) speak(tf frames.TextFrame, streamID string, meta map[string]string) ([]frames.Frame, error) {
	session, err := p.getOrCreate(streamID, meta[frames.MetaCallSID])
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonTTSConnect)
		slog.Info("tts_session_error", "stream_id", streamID,
			"reason_code", string(errorsx.Reason(err)), "error", err.Error())
		// Pass the text through so the transport can fall back to a
		// non-audio delivery if it has one.
		return []frames.Frame{tf}, nil
	}

	if err := session.SendText(tf.Text()); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonTTSSend)
		slog.Info("tts_send_error", "stream_id", streamID,
			"reason_code", string(errorsx.Reason(err)), "error", err.Error())
		p.CloseStream(streamID)
		return []frames.Frame{tf}, nil
	}

	out := p.drain(session.Results(), streamID)
	return out, nil
}

func (p *TTSProcessor) drain(ch <-chan frames.Frame, streamID string) []frames.Frame {
	var out []frames.Frame
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			if f.Kind() == frames.KindAudio {
				p.mu.Lock()
				first := !p.firstAudio[streamID]
				p.firstAudio[streamID] = true
				p.mu.Unlock()
				if first {
					p.record(metrics.EventTTSFirstAudio, streamID)
					if p.fsm != nil {
						p.fsm.OnReplyReady()
					}
				}
			}
			if f.Kind() == frames.KindControl {
				cf := f.(frames.ControlFrame)
				if cf.Code() == frames.ControlAudioReady && p.fsm != nil {
					p.fsm.OnAudioComplete()
				}
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func (p *TTSProcessor) getOrCreate(streamID, callSID string) (tts.StreamingTTS, error) {
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

func (p *TTSProcessor) flush(streamID string) {
	p.mu.Lock()
	session, ok := p.sessions[streamID]
	p.mu.Unlock()
	if ok {
		session.Flush()
	}
}

func (p *TTSProcessor) CloseStream(streamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[streamID]; ok {
		_ = session.Close()
		delete(p.sessions, streamID)
	}
	delete(p.firstAudio, streamID)
}

func (p *TTSProcessor) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, session := range p.sessions {
		_ = session.Close()
		delete(p.sessions, id)
	}
	p.firstAudio = make(map[string]bool)
}

func (p *TTSProcessor) record(name, streamID string) {
	if p.obs == nil {
		return
	}
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{frames.MetaStreamID: streamID, "component": "tts"},
	})
}

var _ pipeline.FrameProcessor = (*TTSProcessor)(nil)
