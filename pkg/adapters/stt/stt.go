package stt

import (
	"context"

	"github.com/voxmail/voxmail/pkg/frames"
)

// StreamingSTT is the contract any speech-to-text vendor implements.
type StreamingSTT interface {
	// Name returns the adapter name for logging/metrics.
	Name() string
	// Start opens the streaming connection.
	Start(ctx context.Context) error
	// Close shuts the connection down.
	Close() error
	// SendAudio forwards caller audio to the service.
	SendAudio(frame frames.AudioFrame) error
	// Results yields transcript and control frames. Interim transcripts
	// carry is_final=false metadata; only finals end a turn.
	Results() <-chan frames.Frame
}

// Config is vendor-agnostic STT configuration.
type Config struct {
	StreamID   string
	CallSID    string
	TraceID    string
	SampleRate int
	Language   string
}
