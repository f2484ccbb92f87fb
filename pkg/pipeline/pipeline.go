package pipeline

import (
	"context"

	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/metrics"
)

// FrameProcessor is one stage of a session pipeline. A stage may emit
// zero, one, or many frames per input; a nil result swallows the frame.
type FrameProcessor interface {
	Process(frames.Frame) ([]frames.Frame, error)
	Name() string
}

type BackpressureMode int

const (
	BackpressureDrop BackpressureMode = iota
	BackpressureWait
)

type Config struct {
	Async         bool
	StageBuffer   int
	HighCapacity  int
	LowCapacity   int
	FairnessRatio int
	Backpressure  BackpressureMode
}

// DefaultConfig sizes the queues for one phone call's worth of audio.
func DefaultConfig() Config {
	return Config{
		StageBuffer:   64,
		HighCapacity:  32,
		LowCapacity:   256,
		FairnessRatio: 3,
	}
}

// Orchestrator runs frames through an ordered processor chain for one
// session.
type Orchestrator interface {
	Start() error
	Stop() error
	In() chan frames.Frame
	Out() chan frames.Frame
	AddProcessor(p FrameProcessor) error
	SetContext(ctx context.Context)
	SetSink(sink func(frames.Frame))
	SetObserver(obs metrics.Observer)
}
