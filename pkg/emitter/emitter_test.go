package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/radio"
)

type sent struct {
	raw  [frame.Size]byte
	dest frame.Address
	at   time.Time
}

// fakeRadio records writes and listening switches.
type fakeRadio struct {
	mu     sync.Mutex
	sends  []sent
	events []string
	err    error
}

func (r *fakeRadio) Start() error { return nil }
func (r *fakeRadio) Stop() error  { return nil }

func (r *fakeRadio) Send(ctx context.Context, raw [frame.Size]byte, dest frame.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sent{raw: raw, dest: dest, at: time.Now()})
	r.events = append(r.events, "send")
	return r.err
}

func (r *fakeRadio) StopListening() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "stop")
	return nil
}

func (r *fakeRadio) StartListening() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start")
	return nil
}

func (r *fakeRadio) snapshot() ([]sent, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sends...), append([]string(nil), r.events...)
}

// unicast filters out beacons.
func (r *fakeRadio) unicast() []sent {
	all, _ := r.snapshot()
	var out []sent
	for _, s := range all {
		if f, err := frame.DecodeServer(s.raw[:]); err == nil && f.Type() != frame.TypeBeacon {
			out = append(out, s)
		}
	}
	return out
}

var _ radio.HalfDuplex = (*fakeRadio)(nil)

func startEmitter(t *testing.T, config Config) *Emitter {
	t.Helper()
	e, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { e.Stop() })
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBeacons(t *testing.T) {
	r := &fakeRadio{}
	server := [frame.ServerAddressSize]byte{0x11, 0x22, 0x33}
	e := startEmitter(t, Config{Transport: r, Server: server, BeaconInterval: 10 * time.Millisecond})

	waitFor(t, "three beacons", func() bool { return e.Stats().Beacons >= 3 })

	sends, _ := r.snapshot()
	for _, s := range sends {
		if s.dest != frame.AddressBroadcast {
			t.Errorf("beacon sent to %d, want broadcast", s.dest)
		}
		f, err := frame.DecodeServer(s.raw[:])
		if err != nil {
			t.Fatalf("DecodeServer() error = %v", err)
		}
		b, ok := f.(*frame.Beacon)
		if !ok || b.Server != server {
			t.Errorf("beacon = %#v, want server %x", f, server)
		}
	}
}

func TestFirstBeaconImmediate(t *testing.T) {
	r := &fakeRadio{}
	e := startEmitter(t, Config{Transport: r, BeaconInterval: time.Hour})
	waitFor(t, "first beacon", func() bool { return e.Stats().Beacons == 1 })
}

func TestThrottle(t *testing.T) {
	r := &fakeRadio{}
	throttle := 20 * time.Millisecond
	e, err := New(Config{Transport: r, BeaconInterval: -1, Throttle: throttle})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := e.Enqueue(&frame.Ack{To: frame.Address(10 + i)}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	start := time.Now()
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	waitFor(t, "three frames", func() bool { return e.Stats().Sent == 3 })

	sends, _ := r.snapshot()
	if len(sends) != 3 {
		t.Fatalf("sent %d frames, want 3 (no beacons)", len(sends))
	}
	prev := start
	for i, s := range sends {
		if gap := s.at.Sub(prev); gap < throttle {
			t.Errorf("frame %d sent %v after the previous write, want >= %v", i, gap, throttle)
		}
		if s.dest != frame.Address(10+i) {
			t.Errorf("frame %d sent to %d, want %d", i, s.dest, 10+i)
		}
		prev = s.at
	}
}

func TestDestinations(t *testing.T) {
	r := &fakeRadio{}
	e := startEmitter(t, Config{Transport: r, BeaconInterval: -1, Throttle: time.Millisecond})

	var pub [frame.PublicKeySize]byte
	k1, k2 := frame.NewServerKeyFrames(7, pub)
	frames := []frame.Outbound{
		&frame.AddressGrant{To: 5},
		k1,
		k2,
		&frame.Ack{To: 7},
	}
	want := []frame.Address{frame.AddressBroadcast, 7, 7, 7}
	for _, f := range frames {
		if err := e.Enqueue(f); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "all frames", func() bool { return e.Stats().Sent == uint64(len(frames)) })

	sends := r.unicast()
	for i, s := range sends {
		if s.dest != want[i] {
			t.Errorf("%s sent to %d, want %d", frames[i].Type(), s.dest, want[i])
		}
	}
}

func TestHalfDuplex(t *testing.T) {
	r := &fakeRadio{}
	e := startEmitter(t, Config{Transport: r, BeaconInterval: 15 * time.Millisecond, Throttle: time.Millisecond})
	_ = e.Enqueue(&frame.Ack{To: 3})

	waitFor(t, "traffic", func() bool {
		s := e.Stats()
		return s.Sent == 1 && s.Beacons >= 2
	})
	e.Stop()

	_, events := r.snapshot()
	if len(events)%3 != 0 {
		t.Fatalf("events = %v, want stop/send/start triples", events)
	}
	for i := 0; i < len(events); i += 3 {
		if events[i] != "stop" || events[i+1] != "send" || events[i+2] != "start" {
			t.Fatalf("events[%d:%d] = %v, want [stop send start]", i, i+3, events[i:i+3])
		}
	}
}

func TestNoRetry(t *testing.T) {
	r := &fakeRadio{err: radio.ErrSendFailed}
	e := startEmitter(t, Config{Transport: r, BeaconInterval: -1, Throttle: time.Millisecond})
	_ = e.Enqueue(&frame.Ack{To: 3})

	waitFor(t, "failure", func() bool { return e.Stats().Failed == 1 })
	time.Sleep(20 * time.Millisecond)

	sends, _ := r.snapshot()
	if len(sends) != 1 {
		t.Errorf("frame written %d times, want 1", len(sends))
	}
	if e.Stats().Sent != 0 {
		t.Errorf("Sent = %d, want 0", e.Stats().Sent)
	}
}

func TestQueueFull(t *testing.T) {
	e, err := New(Config{Transport: &fakeRadio{}, QueueSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	_ = e.Enqueue(&frame.Ack{To: 1})
	_ = e.Enqueue(&frame.Ack{To: 2})
	if err := e.Enqueue(&frame.Ack{To: 3}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() error = %v, want %v", err, ErrQueueFull)
	}
	if e.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", e.Pending())
	}
}

func TestLifecycle(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v, want %v", err, ErrInvalidConfig)
	}

	e, err := New(Config{Transport: &fakeRadio{}, BeaconInterval: -1})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want %v", err, ErrNotStarted)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := e.Enqueue(&frame.Ack{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Enqueue() after Stop error = %v, want %v", err, ErrStopped)
	}
	if err := e.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want %v", err, ErrStopped)
	}
}
