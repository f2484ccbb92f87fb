package transports

import (
	"context"

	"github.com/voxmail/voxmail/pkg/frames"
)

// Transport is the vendor-agnostic call I/O boundary. Implementations
// own their network lifecycle and surface call events as frames.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// OutboundDialer lets a transport place outbound calls.
type OutboundDialer interface {
	Dial(ctx context.Context, to, from, url string) (callSID string, err error)
}

// ReadyReporter exposes readiness metadata such as webhook URLs. Used
// for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
