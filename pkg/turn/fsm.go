package turn

import (
	"sync"
	"time"

	"github.com/voxmail/voxmail/pkg/frames"
)

// StateChange is one observed transition.
type StateChange struct {
	From      State
	To        State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn transitions.
type StateListener interface {
	OnStateChange(event StateChange)
}

// InterruptEmitter pushes control frames upstream when the caller barges
// in over the assistant's speech.
type InterruptEmitter interface {
	Emit(frame frames.Frame) error
}

const defaultBargeInThreshold = 500 * time.Millisecond

// FSM tracks turn-taking for one session. Safe for concurrent use; the
// transport, STT and TTS paths all report into it.
type FSM struct {
	mu        sync.RWMutex
	current   State
	listeners []StateListener

	bargeInThreshold time.Duration
	emitter          InterruptEmitter

	speakingSince  time.Time
	listeningSince time.Time
}

func NewFSM(bargeInThreshold time.Duration, emitter InterruptEmitter) *FSM {
	if bargeInThreshold <= 0 {
		bargeInThreshold = defaultBargeInThreshold
	}
	return &FSM{
		current:          StateIdle,
		bargeInThreshold: bargeInThreshold,
		emitter:          emitter,
	}
}

func (f *FSM) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *FSM) AddListener(l StateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// Transition moves to a new state, rejecting moves the cycle forbids.
// Listeners run outside the lock.
func (f *FSM) Transition(to State, reason string) error {
	f.mu.Lock()
	from := f.current
	if !transitionValid(from, to) {
		f.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	f.current = to
	switch to {
	case StateListening:
		f.listeningSince = time.Now()
	case StateSpeaking:
		f.speakingSince = time.Now()
	}
	listeners := make([]StateListener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	event := StateChange{From: from, To: to, Timestamp: time.Now(), Reason: reason}
	for _, l := range listeners {
		l.OnStateChange(event)
	}
	return nil
}

// OnUserSpeechStart marks the caller talking.
func (f *FSM) OnUserSpeechStart() {
	if f.State() == StateIdle {
		_ = f.Transition(StateListening, "user speech started")
	}
}

// OnTranscriptFinal marks the end of the caller's turn.
func (f *FSM) OnTranscriptFinal() {
	if f.State() == StateListening {
		_ = f.Transition(StateThinking, "final transcript received")
	}
}

// OnReplyReady marks the reply computed and speech starting.
func (f *FSM) OnReplyReady() {
	if f.State() == StateThinking {
		_ = f.Transition(StateSpeaking, "reply ready")
	}
}

// OnTurnAbandoned returns Thinking to Listening without speaking, used
// when a turn produces nothing to say.
func (f *FSM) OnTurnAbandoned() {
	if f.State() == StateThinking {
		_ = f.Transition(StateListening, "turn abandoned")
	}
}

// OnAudioComplete marks playback done and hands the floor back.
func (f *FSM) OnAudioComplete() {
	if f.State() == StateSpeaking {
		_ = f.Transition(StateListening, "audio playback complete")
	}
}

// OnSTTInput watches incoming speech duration while the assistant talks.
// Sustained caller speech past the threshold is a barge-in: an interrupt
// frame is emitted and the floor is yielded.
func (f *FSM) OnSTTInput(duration time.Duration) {
	f.mu.RLock()
	current := f.current
	threshold := f.bargeInThreshold
	emitter := f.emitter
	f.mu.RUnlock()

	if current != StateSpeaking || duration <= threshold {
		return
	}
	if emitter != nil {
		_ = emitter.Emit(NewInterruptFrame("", time.Now().UnixNano()))
	}
	_ = f.Transition(StateListening, "barge-in detected")
}

// Hangup forces the machine back to Idle from any state.
func (f *FSM) Hangup(reason string) {
	f.mu.Lock()
	from := f.current
	f.current = StateIdle
	listeners := make([]StateListener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	if from == StateIdle {
		return
	}
	event := StateChange{From: from, To: StateIdle, Timestamp: time.Now(), Reason: reason}
	for _, l := range listeners {
		l.OnStateChange(event)
	}
}

func NewFlushFrame(streamID string, pts int64) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlFlush, nil)
}

func NewCancelFrame(streamID string, pts int64) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlCancel, nil)
}

func NewInterruptFrame(streamID string, pts int64) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlStartInterruption, nil)
}
