package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/assembler"
	"github.com/backkem/rf24relay/pkg/emitter"
	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/keyexchange"
	"github.com/backkem/rf24relay/pkg/radio"
	"github.com/backkem/rf24relay/pkg/reading"
	"github.com/backkem/rf24relay/pkg/registry"
)

// publishBuffer is the number of batches waiting for the sink before new
// batches are dropped.
const publishBuffer = 64

// Stats are the gateway counters.
type Stats struct {
	Frames        uint64 `json:"frames"`
	Malformed     uint64 `json:"malformed"`
	Delivered     uint64 `json:"delivered"`
	Rejected      uint64 `json:"rejected"`
	Grants        uint64 `json:"grants"`
	KeyExchanges  uint64 `json:"key_exchanges"`
	Published     uint64 `json:"published"`
	PublishFailed uint64 `json:"publish_failed"`
	PublishDrops  uint64 `json:"publish_drops"`

	Emitter emitter.Stats `json:"emitter"`
}

type counters struct {
	frames, malformed, delivered, rejected atomic.Uint64
	grants, keyExchanges                   atomic.Uint64
	published, publishFailed, publishDrops atomic.Uint64
}

// Gateway is the relay engine.
type Gateway struct {
	config    Config
	queue     *radio.Queue
	registry  *registry.Registry
	assembler *assembler.Assembler
	exchange  *keyexchange.Exchange
	emitter   *emitter.Emitter
	log       logging.LeveledLogger
	stats     counters

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	publishC chan *reading.Batch
	pubDone  chan struct{}
}

// New creates a gateway.
func New(config Config) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	g := &Gateway{
		config:   config,
		queue:    config.Queue,
		registry: config.Registry,
		state:    StateInitialized,
	}
	if config.LoggerFactory != nil {
		g.log = config.LoggerFactory.NewLogger("gateway")
	}

	var err error
	g.assembler, err = assembler.New(assembler.Config{
		Devices:         config.Registry,
		AssemblyTimeout: config.AssemblyTimeout,
		LoggerFactory:   config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	g.exchange, err = keyexchange.New(keyexchange.Config{
		Keys:          config.Identity.Keys,
		Store:         config.Registry,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	g.emitter, err = emitter.New(emitter.Config{
		Transport:      config.Transport,
		Server:         config.Identity.Server,
		BeaconInterval: config.BeaconInterval,
		Throttle:       config.Throttle,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Start loads the registry and starts the radio, the emitter and the
// worker.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrAlreadyStopped
	}

	if err := g.registry.Load(); err != nil {
		return err
	}
	if err := g.config.Transport.Start(); err != nil {
		return err
	}
	if err := g.emitter.Start(ctx); err != nil {
		_ = g.config.Transport.Stop()
		return err
	}

	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	g.publishC = make(chan *reading.Batch, publishBuffer)
	g.pubDone = make(chan struct{})
	go g.run(ctx)
	go g.publishLoop()

	g.state = StateRunning
	if g.log != nil {
		g.log.Infof("gateway started, server %x network %x, %d devices",
			g.config.Identity.Server, g.config.Identity.Network, g.registry.Len())
	}
	return nil
}

// Stop stops the worker, flushes pending batches to the sink, then stops
// the emitter and the radio. The receive queue is closed.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateInitialized:
		return ErrNotStarted
	case StateStopped:
		return ErrAlreadyStopped
	}

	g.cancel()
	_ = g.queue.Close()
	<-g.done

	close(g.publishC)
	<-g.pubDone

	var errs []error
	if err := g.emitter.Stop(); err != nil && !errors.Is(err, emitter.ErrNotStarted) {
		errs = append(errs, err)
	}
	if err := g.config.Transport.Stop(); err != nil {
		errs = append(errs, err)
	}

	g.state = StateStopped
	if g.log != nil {
		g.log.Info("gateway stopped")
	}
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Devices returns a snapshot of the device table.
func (g *Gateway) Devices() []*registry.Device {
	return g.registry.Devices()
}

// Stats returns the gateway counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Frames:        g.stats.frames.Load(),
		Malformed:     g.stats.malformed.Load(),
		Delivered:     g.stats.delivered.Load(),
		Rejected:      g.stats.rejected.Load(),
		Grants:        g.stats.grants.Load(),
		KeyExchanges:  g.stats.keyExchanges.Load(),
		Published:     g.stats.published.Load(),
		PublishFailed: g.stats.publishFailed.Load(),
		PublishDrops:  g.stats.publishDrops.Load(),
		Emitter:       g.emitter.Stats(),
	}
}

// run is the worker. It owns the assembler.
func (g *Gateway) run(ctx context.Context) {
	defer close(g.done)

	nextExpire := time.Now().Add(g.config.ExpireInterval)
	for ctx.Err() == nil {
		raw, err := g.queue.Pop(nextExpire)
		now := time.Now()
		switch {
		case err == nil:
			g.handle(raw, now)
		case errors.Is(err, radio.ErrClosed):
			return
		case isTimeout(err):
		default:
			g.stats.malformed.Add(1)
			g.warnf("receive queue: %v", err)
		}

		if !now.Before(nextExpire) {
			if n := g.assembler.Expire(now); n > 0 && g.log != nil {
				g.log.Debugf("expired %d stalled assemblies", n)
			}
			nextExpire = now.Add(g.config.ExpireInterval)
		}
	}
}

// handle dispatches one received frame.
func (g *Gateway) handle(raw [frame.Size]byte, now time.Time) {
	g.stats.frames.Add(1)

	p, err := frame.ParsePrefix(raw[:])
	if err != nil {
		g.stats.malformed.Add(1)
		if g.log != nil {
			g.log.Debugf("dropping frame: %v", err)
		}
		return
	}

	if p.Seq != frame.SeqHeader {
		res, err := g.assembler.Receive(raw, now)
		g.complete(p.Node, res, err)
		return
	}

	f, err := frame.Decode(raw[:])
	if err != nil {
		g.stats.malformed.Add(1)
		return
	}
	switch f := f.(type) {
	case *frame.AddressRequest:
		g.grantAddress(f)
	case *frame.Header:
		if err := g.assembler.Begin(f, now); err != nil {
			g.warnf("address %d: %v", f.From, err)
		}
	case *frame.Single:
		res, err := g.assembler.Single(f, now)
		g.complete(f.From, res, err)
	}
}

func (g *Gateway) grantAddress(req *frame.AddressRequest) {
	addr, err := g.registry.ReserveAddress(req.UUID)
	if err != nil {
		g.warnf("address request from %s: %v", req.UUID, err)
		return
	}
	g.stats.grants.Add(1)
	if g.log != nil {
		g.log.Infof("device %s assigned address %d", req.UUID, addr)
	}
	g.enqueue(&frame.AddressGrant{To: addr, Network: g.config.Identity.Network})
}

// complete acts on the outcome of an assembler call.
func (g *Gateway) complete(addr frame.Address, res *assembler.Result, err error) {
	if err != nil {
		if errors.Is(err, assembler.ErrNoAssembly) {
			if g.log != nil {
				g.log.Debugf("address %d: %v", addr, err)
			}
			return
		}
		g.stats.rejected.Add(1)
		g.warnf("address %d: message rejected: %v", addr, err)
		return
	}
	if res == nil {
		return
	}

	g.stats.delivered.Add(1)
	if g.config.OnResult != nil {
		g.config.OnResult(res)
	}

	switch res.Kind {
	case assembler.KindReadings:
		if res.Ack != nil {
			g.enqueue(res.Ack)
		}
		g.publish(res.Batch)
	case assembler.KindKeyExchange:
		k1, k2, err := g.exchange.Complete(keyexchange.Request{
			UUID:    res.UUID,
			Address: res.Address,
			Part1:   res.Part1,
			Part2:   res.Part2,
		})
		if err != nil {
			g.stats.rejected.Add(1)
			g.warnf("address %d: key exchange failed: %v", addr, err)
			return
		}
		g.stats.keyExchanges.Add(1)
		g.enqueue(k1)
		g.enqueue(k2)
	case assembler.KindIVExchange:
		if g.log != nil {
			g.log.Debugf("address %d: iv candidate %x recorded", addr, res.IV)
		}
	}
}

func (g *Gateway) enqueue(f frame.Outbound) {
	if err := g.emitter.Enqueue(f); err != nil {
		g.warnf("cannot queue %s to %d: %v", f.Type(), f.Destination(), err)
	}
}

// publish hands a batch to the publisher without blocking the worker.
func (g *Gateway) publish(b *reading.Batch) {
	if b == nil || b.Len() == 0 {
		return
	}
	if g.log != nil {
		g.log.Debugf("device %s: %d readings", b.UUID, b.Len())
	}
	if g.config.Sink == nil {
		return
	}
	select {
	case g.publishC <- b:
	default:
		g.stats.publishDrops.Add(1)
		g.warnf("sink backlog full, dropping batch from %s", b.UUID)
	}
}

func (g *Gateway) publishLoop() {
	defer close(g.pubDone)
	for b := range g.publishC {
		ctx, cancel := context.WithTimeout(context.Background(), g.config.PublishTimeout)
		err := g.config.Sink.Publish(ctx, b)
		cancel()
		if err != nil {
			g.stats.publishFailed.Add(1)
			g.warnf("publish batch from %s: %v", b.UUID, err)
			continue
		}
		g.stats.published.Add(1)
	}
}

func (g *Gateway) warnf(format string, args ...interface{}) {
	if g.log != nil {
		g.log.Warnf(format, args...)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
