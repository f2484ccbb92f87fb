package priority

import "sync/atomic"

// Stats counts queue traffic by lane.
type Stats struct {
	HighPush int64
	LowPush  int64
	HighPop  int64
	LowPop   int64
}

// Queue is a two-lane frame queue. Control traffic rides the high lane
// so interrupts and hangups overtake buffered media.
type Queue struct {
	high     chan any
	low      chan any
	fairness int

	highPush, lowPush int64
	highPop, lowPop   int64
}

func New(highCap, lowCap, fairness int) *Queue {
	if fairness <= 0 {
		fairness = 3
	}
	return &Queue{
		high:     make(chan any, highCap),
		low:      make(chan any, lowCap),
		fairness: fairness,
	}
}

func (q *Queue) TryPushHigh(f any) bool {
	select {
	case q.high <- f:
		atomic.AddInt64(&q.highPush, 1)
		return true
	default:
		return false
	}
}

func (q *Queue) TryPushLow(f any) bool {
	select {
	case q.low <- f:
		atomic.AddInt64(&q.lowPush, 1)
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available, preferring the high lane. It
// returns false once done closes, so callers tied to a session context
// can unwind instead of waiting on an abandoned queue.
func (q *Queue) Pop(done <-chan struct{}) (any, bool) {
	select {
	case f := <-q.high:
		atomic.AddInt64(&q.highPop, 1)
		return f, true
	default:
	}
	select {
	case f := <-q.high:
		atomic.AddInt64(&q.highPop, 1)
		return f, true
	case f := <-q.low:
		atomic.AddInt64(&q.lowPop, 1)
		return f, true
	case <-done:
		return nil, false
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		HighPush: atomic.LoadInt64(&q.highPush),
		LowPush:  atomic.LoadInt64(&q.lowPush),
		HighPop:  atomic.LoadInt64(&q.highPop),
		LowPop:   atomic.LoadInt64(&q.lowPop),
	}
}
