package pipeline

import (
	"runtime"
	"testing"
	"time"

	"github.com/voxmail/voxmail/pkg/frames"
)

type passthrough struct{}

func (passthrough) Process(f frames.Frame) ([]frames.Frame, error) {
	return []frames.Frame{f}, nil
}

func (passthrough) Name() string { return "passthrough" }

func TestStopReleasesGoroutines(t *testing.T) {
	for _, async := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.Async = async

		before := runtime.NumGoroutine()
		for i := 0; i < 10; i++ {
			o := NewChain(cfg, passthrough{})
			if err := o.Start(); err != nil {
				t.Fatalf("async=%v: Start: %v", async, err)
			}
			if err := o.Stop(); err != nil {
				t.Fatalf("async=%v: Stop: %v", async, err)
			}
		}

		deadline := time.Now().Add(2 * time.Second)
		for runtime.NumGoroutine() > before+1 {
			if time.Now().After(deadline) {
				t.Fatalf("async=%v: goroutines did not settle after ten start/stop cycles: before=%d after=%d",
					async, before, runtime.NumGoroutine())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestSinkReceivesProcessedFrames(t *testing.T) {
	cfg := DefaultConfig()
	o := NewChain(cfg, passthrough{})

	got := make(chan frames.Frame, 1)
	o.SetSink(func(f frames.Frame) { got <- f })
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	o.In() <- frames.NewTextFrame("MZ1", time.Now().UnixNano(), "hello", nil)
	select {
	case f := <-got:
		if f.Kind() != frames.KindText {
			t.Fatalf("sink frame kind = %s", f.Kind())
		}
	case <-time.After(time.Second):
		t.Fatalf("frame never reached the sink")
	}
}
