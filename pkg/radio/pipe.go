package radio

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures radio impairments applied to frames sent by
// the device end of a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a frame (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each frame.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each frame.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of sending a frame twice (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic frame delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for frames.
	// Default: 1ms
	ProcessInterval time.Duration

	// Seed seeds the impairment generator. Zero uses the current time.
	Seed int64
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe is an in-memory radio link between the relay (endpoint 0) and a
// simulated device (endpoint 1). It wraps pion's test.Bridge.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(seed)),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetCondition configures impairments for frames sent by the device end.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// ReorderNext reverses the order of the next n frames sent by the device end.
func (p *Pipe) ReorderNext(n int) {
	p.bridge.ReorderNextNWrites(1, n)
}

// DropNext drops the next n frames sent by the device end.
func (p *Pipe) DropNext(n int) {
	p.bridge.DropNextNWrites(1, n)
}

// Conn0 returns the raw connection of the relay end.
func (p *Pipe) Conn0() net.Conn {
	return p.bridge.GetConn0()
}

// Conn1 returns the raw connection of the device end.
func (p *Pipe) Conn1() net.Conn {
	return p.bridge.GetConn1()
}

// Tick delivers one packet in each direction if a reader is waiting.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Close stops auto-processing and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	// Either end may already be closed by its transport.
	_ = p.bridge.GetConn0().Close()
	_ = p.bridge.GetConn1().Close()
	p.bridge.Tick()
	return nil
}

// PipeTransportConfig configures the relay end of a Pipe.
type PipeTransportConfig struct {
	// FrameHandler is called for each received frame.
	// Required.
	FrameHandler FrameHandler

	// DropWhileTransmitting discards frames that arrive while listening is
	// suspended, as a half-duplex radio would.
	DropWhileTransmitting bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// PipeTransport is the relay end of a Pipe. It implements Transport and
// HalfDuplex.
type PipeTransport struct {
	conn    net.Conn
	handler FrameHandler
	dropTx  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	listening atomic.Bool
	switches  atomic.Int64
	dropped   atomic.Int64

	mu      sync.RWMutex
	started bool
	closed  bool
}

// Relay creates the transport for the relay end of the pipe.
func (p *Pipe) Relay(config PipeTransportConfig) (*PipeTransport, error) {
	if config.FrameHandler == nil {
		return nil, ErrNoHandler
	}
	t := &PipeTransport{
		conn:    p.Conn0(),
		handler: config.FrameHandler,
		dropTx:  config.DropWhileTransmitting,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("radio-pipe")
	}
	return t, nil
}

// Start begins the read loop.
func (t *PipeTransport) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	t.listening.Store(true)
	t.wg.Add(1)
	go t.readLoop()
	return nil
}

// Stop closes the relay end and waits for the read loop to exit.
func (t *PipeTransport) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	started := t.started
	t.mu.Unlock()

	close(t.closeCh)
	t.conn.SetReadDeadline(time.Now())
	if started {
		t.wg.Wait()
	}
	return nil
}

// Send writes a frame towards the device end. The destination is carried
// in front of the frame so the device end can tell broadcast from unicast.
func (t *PipeTransport) Send(ctx context.Context, raw [frame.Size]byte, dest frame.Address) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := make([]byte, 1+frame.Size)
	b[0] = byte(dest)
	copy(b[1:], raw[:])
	if _, err := t.conn.Write(b); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// StopListening implements HalfDuplex.
func (t *PipeTransport) StopListening() error {
	t.listening.Store(false)
	t.switches.Add(1)
	return nil
}

// StartListening implements HalfDuplex.
func (t *PipeTransport) StartListening() error {
	t.listening.Store(true)
	return nil
}

// Listening reports whether the transport is currently receiving.
func (t *PipeTransport) Listening() bool {
	return t.listening.Load()
}

// Suspensions returns how many times listening was suspended.
func (t *PipeTransport) Suspensions() int64 {
	return t.switches.Load()
}

// Dropped returns the number of frames discarded by the transport.
func (t *PipeTransport) Dropped() int64 {
	return t.dropped.Load()
}

func (t *PipeTransport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, 64)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
			}
			if t.log != nil {
				t.log.Warnf("pipe read error: %v", err)
			}
			return
		}

		if n != frame.Size {
			t.dropped.Add(1)
			if t.log != nil {
				t.log.Debugf("dropping %d-byte packet", n)
			}
			continue
		}
		if t.dropTx && !t.listening.Load() {
			t.dropped.Add(1)
			continue
		}

		var raw [frame.Size]byte
		copy(raw[:], buf[:n])
		t.handler(raw)
	}
}

var (
	_ Transport  = (*PipeTransport)(nil)
	_ HalfDuplex = (*PipeTransport)(nil)
)

// PipeDevice is the device end of a Pipe.
type PipeDevice struct {
	pipe *Pipe
	conn net.Conn
}

// Device returns the device end of the pipe.
func (p *Pipe) Device() *PipeDevice {
	return &PipeDevice{pipe: p, conn: p.Conn1()}
}

// Send transmits a frame to the relay, subject to the pipe's network
// condition.
func (d *PipeDevice) Send(raw [frame.Size]byte) error {
	d.pipe.mu.RLock()
	cond := d.pipe.condition
	d.pipe.mu.RUnlock()

	d.pipe.mu.Lock()
	drop := cond.DropRate > 0 && d.pipe.rng.Float64() < cond.DropRate
	dup := cond.DuplicateRate > 0 && d.pipe.rng.Float64() < cond.DuplicateRate
	var delay time.Duration
	if cond.DelayMax > 0 {
		delay = cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(d.pipe.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
	}
	d.pipe.mu.Unlock()

	if drop {
		return nil
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if dup {
		if _, err := d.conn.Write(raw[:]); err != nil {
			return err
		}
	}
	_, err := d.conn.Write(raw[:])
	return err
}

// Receive waits for the next frame sent by the relay and returns it with its
// destination.
func (d *PipeDevice) Receive(timeout time.Duration) ([frame.Size]byte, frame.Address, error) {
	var raw [frame.Size]byte
	if err := d.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return raw, 0, err
	}
	buf := make([]byte, 64)
	n, err := d.conn.Read(buf)
	if err != nil {
		return raw, 0, err
	}
	if n != 1+frame.Size {
		return raw, 0, fmt.Errorf("%w: %d-byte packet", frame.ErrMalformedFrame, n)
	}
	copy(raw[:], buf[1:n])
	return raw, frame.Address(buf[0]), nil
}
