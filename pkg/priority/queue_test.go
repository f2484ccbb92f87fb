package priority

import (
	"testing"
	"time"
)

func TestPopPrefersHighLane(t *testing.T) {
	q := New(4, 4, 3)
	if !q.TryPushLow("low") || !q.TryPushHigh("high") {
		t.Fatalf("push failed on an empty queue")
	}

	done := make(chan struct{})
	f, ok := q.Pop(done)
	if !ok || f != "high" {
		t.Fatalf("Pop = %v, %v, want the high lane first", f, ok)
	}
	f, ok = q.Pop(done)
	if !ok || f != "low" {
		t.Fatalf("Pop = %v, %v, want the remaining low item", f, ok)
	}

	stats := q.Stats()
	if stats.HighPop != 1 || stats.LowPop != 1 {
		t.Fatalf("pop stats = %+v", stats)
	}
}

func TestPopUnblocksOnDone(t *testing.T) {
	q := New(1, 1, 3)
	done := make(chan struct{})
	ret := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(done)
		ret <- ok
	}()

	close(done)
	select {
	case ok := <-ret:
		if ok {
			t.Fatalf("Pop reported an item from an empty queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop still blocked after done closed")
	}
}

func TestTryPushRejectsWhenFull(t *testing.T) {
	q := New(1, 1, 3)
	if !q.TryPushHigh(1) || !q.TryPushLow(2) {
		t.Fatalf("first push per lane should succeed")
	}
	if q.TryPushHigh(3) || q.TryPushLow(4) {
		t.Fatalf("full lanes must reject instead of blocking")
	}
}
