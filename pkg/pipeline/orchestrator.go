package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/metrics"
	"github.com/voxmail/voxmail/pkg/priority"
)

// maxAudioLag is how stale an audio frame may get before it is dropped
// instead of processed. Text and control frames are never lag-dropped.
const maxAudioLag = 500 * time.Millisecond

type orchestrator struct {
	in      chan frames.Frame
	out     chan frames.Frame
	pq      *priority.Queue
	procs   []FrameProcessor
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	stageCh []chan frames.Frame
	sink    func(frames.Frame)
	obs     metrics.Observer
}

func New(cfg Config) Orchestrator {
	o := &orchestrator{
		in:  make(chan frames.Frame, cfg.HighCapacity+cfg.LowCapacity),
		out: make(chan frames.Frame, cfg.HighCapacity+cfg.LowCapacity),
		cfg: cfg,
	}
	o.pq = priority.New(cfg.HighCapacity, cfg.LowCapacity, cfg.FairnessRatio)
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// NewChain builds an orchestrator with its processors already attached,
// logging the stage order once.
func NewChain(cfg Config, procs ...FrameProcessor) Orchestrator {
	o := New(cfg)
	if len(procs) > 0 {
		names := make([]string, 0, len(procs))
		for _, p := range procs {
			names = append(names, p.Name())
		}
		slog.Info("pipeline", "order", strings.Join(names, " -> "))
	}
	for _, p := range procs {
		_ = o.AddProcessor(p)
	}
	return o
}

func (o *orchestrator) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
}

func (o *orchestrator) In() chan frames.Frame            { return o.in }
func (o *orchestrator) Out() chan frames.Frame           { return o.out }
func (o *orchestrator) SetSink(sink func(frames.Frame))  { o.sink = sink }
func (o *orchestrator) SetObserver(obs metrics.Observer) { o.obs = obs }

func (o *orchestrator) AddProcessor(p FrameProcessor) error {
	o.procs = append(o.procs, p)
	return nil
}

func (o *orchestrator) Start() error {
	go o.feed()
	if o.cfg.Async {
		return o.startAsync()
	}
	return o.startSync()
}

func (o *orchestrator) Stop() error {
	o.cancel()
	// allow goroutines to exit and drain
	time.Sleep(5 * time.Millisecond)
	close(o.out)
	return nil
}

// feed moves inbound frames onto the two-lane queue. Control frames take
// the high lane so interrupts beat queued audio.
func (o *orchestrator) feed() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case f := <-o.in:
			var pushed bool
			if f.Kind() == frames.KindControl {
				pushed = o.pq.TryPushHigh(f)
			} else {
				pushed = o.pq.TryPushLow(f)
			}
			if !pushed {
				frames.ReleaseAudioFrame(f)
				o.record("frame_drop", f, nil)
				continue
			}
			o.record("frame_in", f, nil)
		}
	}
}

func (o *orchestrator) startSync() error {
	go func() {
		for {
			fAny, ok := o.pq.Pop(o.ctx.Done())
			if !ok {
				return
			}
			f := fAny.(frames.Frame)
			if laggedOut(f) {
				frames.ReleaseAudioFrame(f)
				o.record("frame_drop", f, nil)
				continue
			}
			batch := []frames.Frame{f}
			for _, p := range o.procs {
				var next []frames.Frame
				for _, cur := range batch {
					next = append(next, o.runStage(p, cur)...)
				}
				batch = next
				if batch == nil {
					break
				}
			}
			for _, e := range batch {
				o.record("frame_out", e, nil)
				o.emit(e)
			}
		}
	}()
	return nil
}

func (o *orchestrator) startAsync() error {
	o.stageCh = make([]chan frames.Frame, len(o.procs)+1)
	for i := range o.stageCh {
		o.stageCh[i] = make(chan frames.Frame, o.cfg.StageBuffer)
	}
	for i, p := range o.procs {
		go func(proc FrameProcessor, in, out chan frames.Frame) {
			for {
				select {
				case <-o.ctx.Done():
					return
				case f := <-in:
					for _, e := range o.runStage(proc, f) {
						o.push(out, e)
					}
				}
			}
		}(p, o.stageCh[i], o.stageCh[i+1])
	}
	go func() {
		for {
			fAny, ok := o.pq.Pop(o.ctx.Done())
			if !ok {
				return
			}
			f := fAny.(frames.Frame)
			if laggedOut(f) {
				frames.ReleaseAudioFrame(f)
				o.record("frame_drop", f, nil)
				continue
			}
			o.push(o.stageCh[0], f)
		}
	}()
	go func() {
		final := o.stageCh[len(o.stageCh)-1]
		for {
			select {
			case <-o.ctx.Done():
				return
			case e := <-final:
				o.record("frame_out", e, nil)
				o.emit(e)
			}
		}
	}()
	return nil
}

func (o *orchestrator) runStage(p FrameProcessor, f frames.Frame) []frames.Frame {
	start := time.Now()
	out, err := p.Process(f)
	if err != nil || out == nil {
		frames.ReleaseAudioFrame(f)
		return nil
	}
	if o.obs != nil {
		o.obs.RecordEvent(metrics.MetricsEvent{
			Name:  "stage_latency_us",
			Time:  time.Now(),
			Value: float64(time.Since(start).Microseconds()),
			Tags:  frameTags(f, map[string]string{"processor": p.Name()}),
		})
	}
	return out
}

func (o *orchestrator) emit(f frames.Frame) {
	if o.sink != nil {
		o.sink(f)
		frames.ReleaseAudioFrame(f)
		return
	}
	o.push(o.out, f)
}

func (o *orchestrator) push(ch chan frames.Frame, f frames.Frame) {
	if laggedOut(f) {
		frames.ReleaseAudioFrame(f)
		o.record("frame_drop", f, nil)
		return
	}
	switch o.cfg.Backpressure {
	case BackpressureWait:
		select {
		case <-o.ctx.Done():
			frames.ReleaseAudioFrame(f)
		case ch <- f:
		}
	default:
		select {
		case ch <- f:
		default:
			frames.ReleaseAudioFrame(f)
			o.record("frame_drop", f, nil)
		}
	}
}

func (o *orchestrator) record(name string, f frames.Frame, extra map[string]string) {
	if o.obs == nil {
		return
	}
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: frameTags(f, extra),
	})
}

func frameTags(f frames.Frame, extra map[string]string) map[string]string {
	tags := map[string]string{}
	if f != nil {
		tags["kind"] = string(f.Kind())
		meta := f.Meta()
		for _, key := range []string{frames.MetaStreamID, frames.MetaCallSID, frames.MetaTraceID, frames.MetaSource} {
			if v := meta[key]; v != "" {
				tags[key] = v
			}
		}
		switch fr := f.(type) {
		case frames.ControlFrame:
			tags["control_code"] = string(fr.Code())
		case frames.SystemFrame:
			tags["system_name"] = fr.Name()
		}
	}
	for k, v := range extra {
		if v != "" {
			tags[k] = v
		}
	}
	return tags
}

// laggedOut drops audio whose capture timestamp is too old to be worth
// relaying. PTS values that are not wall-clock nanos are left alone.
func laggedOut(f frames.Frame) bool {
	if f == nil || f.Kind() != frames.KindAudio {
		return false
	}
	pts := f.PTS()
	if pts < 1_000_000_000_000 {
		return false
	}
	return time.Since(time.Unix(0, pts)) > maxAudioLag
}
