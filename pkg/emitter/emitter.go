package emitter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/radio"
	"github.com/pion/logging"
)

// Stats counts emitter activity.
type Stats struct {
	Beacons uint64 `json:"beacons"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
}

// Emitter sends beacons and queued outbound frames.
type Emitter struct {
	config Config
	beacon [frame.Size]byte
	queue  chan frame.Outbound
	log    logging.LeveledLogger

	beacons atomic.Uint64
	sent    atomic.Uint64
	failed  atomic.Uint64

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates an emitter. Frames may be queued before Start.
func New(config Config) (*Emitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	beacon, err := frame.Encode(&frame.Beacon{Server: config.Server})
	if err != nil {
		return nil, err
	}

	e := &Emitter{
		config: config,
		beacon: beacon,
		queue:  make(chan frame.Outbound, config.QueueSize),
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("emitter")
	}
	return e, nil
}

// Start launches the transmit goroutine. It runs until Stop or until ctx
// is cancelled.
func (e *Emitter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.run(ctx)

	if e.log != nil {
		e.log.Infof("emitter started, beacon every %v", e.config.BeaconInterval)
	}
	return nil
}

// Stop ends the transmit goroutine. Queued frames are discarded.
func (e *Emitter) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	e.stopped = true
	e.mu.Unlock()

	e.stopOnce.Do(e.cancel)
	e.wg.Wait()

	if e.log != nil {
		e.log.Info("emitter stopped")
	}
	return nil
}

// Enqueue queues a frame for transmission. It never blocks.
func (e *Emitter) Enqueue(f frame.Outbound) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	select {
	case e.queue <- f:
		return nil
	default:
		if e.log != nil {
			e.log.Warnf("outbound queue full, dropping %s to %d", f.Type(), f.Destination())
		}
		return ErrQueueFull
	}
}

// Pending returns the number of queued frames.
func (e *Emitter) Pending() int {
	return len(e.queue)
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Beacons: e.beacons.Load(),
		Sent:    e.sent.Load(),
		Failed:  e.failed.Load(),
	}
}

func (e *Emitter) run(ctx context.Context) {
	defer e.wg.Done()

	var beaconC <-chan time.Time
	if e.config.BeaconInterval > 0 {
		ticker := time.NewTicker(e.config.BeaconInterval)
		defer ticker.Stop()
		beaconC = ticker.C
		e.sendBeacon(ctx)
	}

	throttle := time.NewTimer(0)
	defer throttle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-beaconC:
			e.sendBeacon(ctx)
		case f := <-e.queue:
			// Leave the radio listening for a while before each write.
			throttle.Reset(e.config.Throttle)
			select {
			case <-ctx.Done():
				return
			case <-throttle.C:
			}
			e.sendFrame(ctx, f)
		}
	}
}

func (e *Emitter) sendBeacon(ctx context.Context) {
	if err := e.transmit(ctx, e.beacon, frame.AddressBroadcast); err != nil {
		if e.log != nil {
			e.log.Debugf("beacon failed: %v", err)
		}
		return
	}
	e.beacons.Add(1)
}

func (e *Emitter) sendFrame(ctx context.Context, f frame.Outbound) {
	raw, err := frame.Encode(f)
	if err != nil {
		e.failed.Add(1)
		if e.log != nil {
			e.log.Warnf("cannot encode %s: %v", f.Type(), err)
		}
		return
	}
	if err := e.transmit(ctx, raw, f.Destination()); err != nil {
		e.failed.Add(1)
		if e.log != nil {
			e.log.Debugf("%s to %d failed: %v", f.Type(), f.Node(), err)
		}
		return
	}
	e.sent.Add(1)
	if e.log != nil {
		e.log.Tracef("sent %s to %d", f.Type(), f.Node())
	}
}

// transmit writes one frame, suspending listening on half-duplex radios.
func (e *Emitter) transmit(ctx context.Context, raw [frame.Size]byte, dest frame.Address) error {
	if hd, ok := e.config.Transport.(radio.HalfDuplex); ok {
		if err := hd.StopListening(); err != nil {
			return err
		}
		defer func() {
			if err := hd.StartListening(); err != nil && e.log != nil {
				e.log.Warnf("cannot resume listening: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.SendTimeout)
	defer cancel()
	return e.config.Transport.Send(ctx, raw, dest)
}
