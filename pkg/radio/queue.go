package radio

import (
	"errors"
	"io"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/packetio"
)

// DefaultQueueLimit is the receive FIFO capacity in frames.
const DefaultQueueLimit = 100

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Limit is the maximum number of queued frames.
	// Default: DefaultQueueLimit
	Limit int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Queue is the bounded receive FIFO between the radio read loop and the
// protocol worker. Frames pushed while the queue is full are dropped.
type Queue struct {
	buf *packetio.Buffer
	log logging.LeveledLogger
}

// NewQueue creates a receive queue.
func NewQueue(config QueueConfig) *Queue {
	if config.Limit <= 0 {
		config.Limit = DefaultQueueLimit
	}
	q := &Queue{buf: packetio.NewBuffer()}
	q.buf.SetLimitCount(config.Limit)
	if config.LoggerFactory != nil {
		q.log = config.LoggerFactory.NewLogger("radio-queue")
	}
	return q
}

// Push enqueues a frame. It satisfies FrameHandler through Handle.
func (q *Queue) Push(raw [frame.Size]byte) error {
	if _, err := q.buf.Write(raw[:]); err != nil {
		if errors.Is(err, packetio.ErrFull) {
			if q.log != nil {
				q.log.Warn("receive queue full, frame dropped")
			}
			return ErrQueueFull
		}
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Handle is a FrameHandler that pushes into the queue and drops on overflow.
func (q *Queue) Handle(raw [frame.Size]byte) {
	_ = q.Push(raw)
}

// Pop blocks until a frame is available, the deadline passes or the queue
// is closed. A zero deadline waits indefinitely.
func (q *Queue) Pop(deadline time.Time) ([frame.Size]byte, error) {
	var raw [frame.Size]byte
	if err := q.buf.SetReadDeadline(deadline); err != nil {
		return raw, err
	}
	n, err := q.buf.Read(raw[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return raw, ErrClosed
		}
		return raw, err
	}
	if n != frame.Size {
		return raw, frame.ErrMalformedFrame
	}
	return raw, nil
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return q.buf.Count()
}

// Close wakes blocked readers. Queued frames can still be popped.
func (q *Queue) Close() error {
	return q.buf.Close()
}
