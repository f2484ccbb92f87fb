package voxmail

import (
	"context"
	"testing"
	"time"

	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/pipeline"
	"github.com/voxmail/voxmail/pkg/session"
	mocktransport "github.com/voxmail/voxmail/pkg/transports/mock"
)

func testEngineConfig() Config {
	cfg := mockVendorsConfig()
	cfg.Pipeline = pipeline.DefaultConfig()
	cfg.Pipeline.Async = true
	cfg.Pipeline.StageBuffer = 64
	cfg.Transports = TransportsConfig{Provider: "mock"}
	cfg.Session = SessionConfig{Store: "memory", TTLHours: 1}
	cfg.Turn = TurnConfig{BargeInThresholdMS: 500}
	cfg.Greeting = "Hi, this is your inbox."
	cfg.LogLevel = "error"
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *mocktransport.Transport) {
	t.Helper()
	transport := mocktransport.New()
	eng, err := NewEngine(EngineOptions{
		Config:    testEngineConfig(),
		Transport: transport,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, transport
}

func waitForFrame(t *testing.T, ch <-chan frames.Frame, match func(frames.Frame) bool) frames.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatal("transport closed before expected frame")
			}
			if match(f) {
				return f
			}
		case <-deadline:
			t.Fatal("timed out waiting for frame")
		}
	}
}

func callStart(callSID, streamID string) frames.Frame {
	return frames.NewSystemFrame(streamID, time.Now().UnixNano(), "call_start", map[string]string{
		frames.MetaCallSID: callSID,
	})
}

func callEnd(callSID, streamID string) frames.Frame {
	return frames.NewSystemFrame(streamID, time.Now().UnixNano(), "call_end", map[string]string{
		frames.MetaCallSID: callSID,
	})
}

func TestEngineSpeaksGreetingOnCallStart(t *testing.T) {
	eng, transport := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	transport.Push(callStart("CA1", "S1"))

	waitForFrame(t, transport.Sent(), func(f frames.Frame) bool {
		return f.Kind() == frames.KindAudio
	})
	if eng.Registry().Count() != 1 {
		t.Fatalf("active calls = %d, want 1", eng.Registry().Count())
	}
	if eng.Manager("CA1") == nil {
		t.Fatal("expected a live conversation manager for the call")
	}
}

func TestEngineAnswersCallerTurn(t *testing.T) {
	eng, transport := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	transport.Push(callStart("CA2", "S2"))
	waitForFrame(t, transport.Sent(), func(f frames.Frame) bool {
		return f.Kind() == frames.KindAudio
	})

	// Caller audio runs the whole loop: the mock recognizer finalizes
	// "send an email", the agent asks for a recipient, and the mock
	// synthesizer renders the reply.
	transport.Push(frames.NewAudioFrame("S2", time.Now().UnixNano(), make([]byte, 160), 8000, 1, map[string]string{
		frames.MetaCallSID: "CA2",
	}))

	waitForFrame(t, transport.Sent(), func(f frames.Frame) bool {
		return f.Kind() == frames.KindAudio
	})
}

func TestEnginePersistsStateOnCallEnd(t *testing.T) {
	eng, transport := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	transport.Push(callStart("CA3", "S3"))
	waitForFrame(t, transport.Sent(), func(f frames.Frame) bool {
		return f.Kind() == frames.KindAudio
	})

	transport.Push(callEnd("CA3", "S3"))

	deadline := time.Now().Add(2 * time.Second)
	var snap *session.Snapshot
	for time.Now().Before(deadline) {
		var err error
		snap, err = eng.SessionStore().Get(context.Background(), "CA3")
		if err != nil {
			t.Fatalf("store get: %v", err)
		}
		if snap != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if snap == nil {
		t.Fatal("expected a persisted snapshot after call end")
	}
	if snap.State == nil {
		t.Fatal("snapshot missing conversation state")
	}
	if eng.Manager("CA3") != nil {
		t.Fatal("manager should be released after call end")
	}
}
