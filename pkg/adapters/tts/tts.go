package tts

import (
	"context"

	"github.com/voxmail/voxmail/pkg/frames"
)

// StreamingTTS is the contract any text-to-speech vendor implements.
type StreamingTTS interface {
	// Name returns the adapter name for logging/metrics.
	Name() string
	// Start opens the streaming connection.
	Start(ctx context.Context) error
	// Close shuts the connection down.
	Close() error
	// SendText queues text for synthesis.
	SendText(text string) error
	// Flush aborts current synthesis and clears buffers, used on barge-in.
	Flush()
	// Results yields synthesized audio and control frames.
	Results() <-chan frames.Frame
}

// Config is vendor-agnostic TTS configuration.
type Config struct {
	StreamID   string
	CallSID    string
	SampleRate int
	Channels   int
}
