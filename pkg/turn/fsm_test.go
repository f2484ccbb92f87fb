package turn

import (
	"sync"
	"testing"
	"time"

	"github.com/voxmail/voxmail/pkg/frames"
)

type captureEmitter struct {
	mu     sync.Mutex
	frames []frames.Frame
}

func (c *captureEmitter) Emit(frame frames.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureEmitter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestTurnCycle(t *testing.T) {
	f := NewFSM(0, nil)

	f.OnUserSpeechStart()
	if f.State() != StateListening {
		t.Fatalf("state = %s, want LISTENING", f.State())
	}
	f.OnTranscriptFinal()
	if f.State() != StateThinking {
		t.Fatalf("state = %s, want THINKING", f.State())
	}
	f.OnReplyReady()
	if f.State() != StateSpeaking {
		t.Fatalf("state = %s, want SPEAKING", f.State())
	}
	f.OnAudioComplete()
	if f.State() != StateListening {
		t.Fatalf("state = %s, want LISTENING after playback", f.State())
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	f := NewFSM(0, nil)

	err := f.Transition(StateSpeaking, "skipping ahead")
	if err == nil {
		t.Fatalf("expected invalid transition error")
	}
	if _, ok := err.(*InvalidTransitionError); !ok {
		t.Fatalf("error type = %T", err)
	}
	if f.State() != StateIdle {
		t.Fatalf("rejected transition mutated state to %s", f.State())
	}
}

func TestBargeInThreshold(t *testing.T) {
	emitter := &captureEmitter{}
	f := NewFSM(50*time.Millisecond, emitter)

	if err := f.Transition(StateListening, "test listening"); err != nil {
		t.Fatalf("transition error: %v", err)
	}
	if err := f.Transition(StateThinking, "test thinking"); err != nil {
		t.Fatalf("transition error: %v", err)
	}
	if err := f.Transition(StateSpeaking, "test speaking"); err != nil {
		t.Fatalf("transition error: %v", err)
	}

	f.OnSTTInput(20 * time.Millisecond)
	if emitter.Count() != 0 {
		t.Fatalf("expected no interruption below threshold")
	}

	f.OnSTTInput(80 * time.Millisecond)
	if emitter.Count() != 1 {
		t.Fatalf("expected interruption emitted above threshold")
	}
	if f.State() != StateListening {
		t.Fatalf("expected state LISTENING after barge-in, got %s", f.State())
	}
}

type recordingListener struct {
	mu     sync.Mutex
	events []StateChange
}

func (r *recordingListener) OnStateChange(ev StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestHangupFromAnyState(t *testing.T) {
	listener := &recordingListener{}
	f := NewFSM(0, nil)
	f.AddListener(listener)

	_ = f.Transition(StateListening, "test")
	_ = f.Transition(StateThinking, "test")
	f.Hangup("remote disconnected")

	if f.State() != StateIdle {
		t.Fatalf("state = %s, want IDLE after hangup", f.State())
	}
	listener.mu.Lock()
	defer listener.mu.Unlock()
	last := listener.events[len(listener.events)-1]
	if last.To != StateIdle || last.Reason != "remote disconnected" {
		t.Fatalf("last event = %+v", last)
	}
}
