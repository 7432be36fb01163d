package radio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/pion/logging"
	"go.bug.st/serial"
)

// Serial defaults.
const (
	DefaultBaudRate    = 115200
	DefaultSendTimeout = 100 * time.Millisecond
)

// SerialConfig configures the serial bridge transport.
//
// The bridge is a microcontroller driving an nRF24L01. On Start the host
// sends a Config record (channel, reading pipe) and a Listen record. Each
// Send is a Transmit record (writing pipe, frame) answered by a Status
// record. Received frames arrive as Receive records.
type SerialConfig struct {
	// Port is an open connection to the bridge.
	// If nil, Device is opened with BaudRate.
	Port io.ReadWriteCloser

	// Device is the serial device path (e.g., "/dev/ttyACM0").
	Device string

	// BaudRate of the serial line.
	// Default: DefaultBaudRate
	BaudRate int

	// Channel is the RF channel.
	Channel Channel

	// Server is the server address; the relay reads on ServerPipe(Server).
	Server [frame.ServerAddressSize]byte

	// Network is the network address used to build device pipes.
	Network [frame.NetworkAddressSize]byte

	// FrameHandler is called for each received frame.
	// Required.
	FrameHandler FrameHandler

	// SendTimeout bounds the wait for the bridge's transmit status.
	// Default: DefaultSendTimeout
	SendTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Serial is a Transport over a serial radio bridge. It implements HalfDuplex.
type Serial struct {
	port    io.ReadWriteCloser
	config  SerialConfig
	router  Router
	statusC chan byte
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	writeMu sync.Mutex

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewSerial creates a serial transport, opening the device if no port is
// provided.
func NewSerial(config SerialConfig) (*Serial, error) {
	if config.FrameHandler == nil {
		return nil, ErrNoHandler
	}
	if config.Channel > MaxChannel {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, config.Channel)
	}
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = DefaultSendTimeout
	}

	s := &Serial{
		port:    config.Port,
		config:  config,
		router:  Router{Network: config.Network},
		statusC: make(chan byte, 1),
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("radio-serial")
	}

	if s.port == nil {
		mode := &serial.Mode{
			BaudRate: config.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(config.Device, mode)
		if err != nil {
			return nil, fmt.Errorf("radio: open serial port %s: %w", config.Device, err)
		}
		s.port = port
	}
	return s, nil
}

// Start configures the bridge and begins the read loop.
func (s *Serial) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	pipe := ServerPipe(s.config.Server)
	if s.log != nil {
		s.log.Infof("starting serial radio on channel %s, reading pipe %s", s.config.Channel, pipe)
	}

	cfg := append([]byte{byte(s.config.Channel)}, pipe[:]...)
	if err := s.write(encodeRecord(recordConfig, cfg...)); err != nil {
		return err
	}
	if err := s.StartListening(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.readLoop()
	return nil
}

// Stop closes the port and waits for the read loop to exit.
func (s *Serial) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("stopping serial radio")
	}
	close(s.closeCh)
	err := s.port.Close()
	if started {
		s.wg.Wait()
	}
	return err
}

// Send transmits one frame and waits for the bridge's status.
func (s *Serial) Send(ctx context.Context, raw [frame.Size]byte, dest frame.Address) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	pipe := s.router.Pipe(dest)
	payload := make([]byte, 0, PipeAddressSize+frame.Size)
	payload = append(payload, pipe[:]...)
	payload = append(payload, raw[:]...)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Discard a status left over from a send that timed out.
	select {
	case <-s.statusC:
	default:
	}

	if err := s.write(encodeRecord(recordTransmit, payload...)); err != nil {
		return err
	}

	timer := time.NewTimer(s.config.SendTimeout)
	defer timer.Stop()
	select {
	case ok := <-s.statusC:
		if ok == 0 {
			return fmt.Errorf("%w: no acknowledgement on pipe %s", ErrSendFailed, pipe)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: bridge status timeout on pipe %s", ErrSendFailed, pipe)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closeCh:
		return ErrClosed
	}
}

// StopListening implements HalfDuplex.
func (s *Serial) StopListening() error {
	return s.write(encodeRecord(recordListen, 0))
}

// StartListening implements HalfDuplex.
func (s *Serial) StartListening() error {
	return s.write(encodeRecord(recordListen, 1))
}

func (s *Serial) write(b []byte) error {
	if _, err := s.port.Write(b); err != nil {
		if s.log != nil {
			s.log.Warnf("serial write failed: %v", err)
		}
		return fmt.Errorf("radio: serial write: %w", err)
	}
	return nil
}

func (s *Serial) readLoop() {
	defer s.wg.Done()

	var dec recordDecoder
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			if s.log != nil {
				s.log.Errorf("serial read error: %v", err)
			}
			return
		}

		for _, c := range buf[:n] {
			r, err := dec.decode(c)
			if err != nil {
				if s.log != nil {
					s.log.Warnf("%v", err)
				}
				continue
			}
			if r != nil {
				s.dispatch(r)
			}
		}
	}
}

func (s *Serial) dispatch(r *record) {
	switch r.kind {
	case recordReceive:
		if len(r.payload) != frame.Size {
			if s.log != nil {
				s.log.Warnf("dropping %d-byte frame from bridge", len(r.payload))
			}
			return
		}
		var raw [frame.Size]byte
		copy(raw[:], r.payload)
		s.config.FrameHandler(raw)
	case recordStatus:
		if len(r.payload) != 1 {
			return
		}
		select {
		case s.statusC <- r.payload[0]:
		default:
		}
	default:
		if s.log != nil {
			s.log.Debugf("ignoring %s record from bridge", r.kind)
		}
	}
}

var (
	_ Transport  = (*Serial)(nil)
	_ HalfDuplex = (*Serial)(nil)
)
