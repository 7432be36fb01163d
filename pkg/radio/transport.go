package radio

import (
	"context"

	"github.com/backkem/rf24relay/pkg/frame"
)

// FrameHandler receives each frame read from the radio. It is called from
// the transport's read loop and must not block; Queue.Push is the usual
// handler.
type FrameHandler func(raw [frame.Size]byte)

// Transport sends and receives radio frames.
type Transport interface {
	// Start begins delivering received frames to the configured handler.
	Start() error

	// Stop closes the transport and waits for the read loop to exit.
	Stop() error

	// Send writes one frame to dest. frame.AddressBroadcast selects the
	// broadcast pipe.
	Send(ctx context.Context, raw [frame.Size]byte, dest frame.Address) error
}

// HalfDuplex is implemented by transports that cannot receive while they
// transmit. The sender brackets every write with StopListening and
// StartListening.
type HalfDuplex interface {
	StopListening() error
	StartListening() error
}
