package assembler

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/crypto"
	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/reading"
	"github.com/backkem/rf24relay/pkg/registry"
)

// Result is the outcome of a verified message.
type Result struct {
	Kind    Kind
	Address frame.Address
	UUID    frame.UUID

	// Batch holds the readings; nil for messages without readings.
	Batch *reading.Batch

	// Ack is set when the device expects an acknowledgement.
	Ack *frame.Ack

	// Part1 and Part2 are the device key frames of a key exchange.
	Part1 *frame.KeyPart1
	Part2 *frame.KeyPart2

	// IV is the IV carried by the message, nil when unencrypted.
	IV []byte

	// IVConfirmed reports that at least one frame was consumed after the
	// IV frame.
	IVConfirmed bool
}

type assembly struct {
	header  *frame.Header
	uuid    frame.UUID
	state   State
	started time.Time
	seen    time.Time

	// next is the sequence number of the next frame to consume.
	next     uint16
	consumed []frame.Frame
	pending  map[uint16][frame.Size]byte

	encrypted   bool
	iv          []byte
	cipher      *crypto.Acorn128
	ivConfirmed bool
}

// Assembler reassembles multi-frame transmissions per device address.
type Assembler struct {
	devices    Devices
	timeout    time.Duration
	maxPending int
	log        logging.LeveledLogger

	arena [256]*assembly
}

// New creates an Assembler.
func New(config Config) (*Assembler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	a := &Assembler{
		devices:    config.Devices,
		timeout:    config.AssemblyTimeout,
		maxPending: config.MaxPending,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("assembler")
	}
	return a, nil
}

// Begin opens an assembly for the header's address. An assembly already in
// progress for that address is discarded.
func (a *Assembler) Begin(h *frame.Header, now time.Time) error {
	if !h.MsgType.MultiFrame() {
		return fmt.Errorf("%w: %s", ErrNotMultiFrame, h.MsgType)
	}
	if prev := a.arena[h.From]; prev != nil && a.log != nil {
		a.log.Debugf("address %d: header supersedes assembly in state %s", h.From, prev.state)
	}

	uuid := h.UUID
	if uuid == (frame.UUID{}) {
		if d, ok := a.devices.ByAddress(h.From); ok {
			uuid = d.UUID
		}
	}

	a.arena[h.From] = &assembly{
		header:  h,
		uuid:    uuid,
		state:   StateCollecting,
		started: now,
		seen:    now,
		next:    1,
		pending: make(map[uint16][frame.Size]byte),
	}
	if a.log != nil {
		a.log.Tracef("address %d: assembling %s (kind %s) for %s", h.From, h.MsgType, h.Kind, uuid)
	}
	return nil
}

// State returns the assembly state for addr.
func (a *Assembler) State(addr frame.Address) State {
	if as := a.arena[addr]; as != nil {
		return as.state
	}
	return StateAwaitingHeader
}

// InFlight returns the number of open assemblies.
func (a *Assembler) InFlight() int {
	n := 0
	for _, as := range a.arena {
		if as != nil {
			n++
		}
	}
	return n
}

// Receive processes a payload frame (sequence >= 1). It returns a Result
// when the frame completes a verified message, and nil while the message is
// still being collected. Any error other than ErrNoAssembly discards the
// assembly.
func (a *Assembler) Receive(raw [frame.Size]byte, now time.Time) (*Result, error) {
	p, err := frame.ParsePrefix(raw[:])
	if err != nil {
		return nil, err
	}
	if p.Seq == frame.SeqHeader {
		return nil, fmt.Errorf("%w: header frame passed as payload", frame.ErrMalformedFrame)
	}
	as := a.arena[p.Node]
	if as == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoAssembly, p.Node)
	}
	as.seen = now

	// Once the cipher runs, the type field is ciphertext and only the
	// sequence number identifies the final frame.
	if p.Seq == frame.SeqFinal || (as.cipher == nil && p.Type == frame.TypeFinal) {
		f, err := frame.Decode(raw[:])
		if err != nil {
			return nil, err
		}
		fin, ok := f.(*frame.Final)
		if !ok {
			return nil, fmt.Errorf("%w: final frame decoded as %T", frame.ErrMalformedFrame, f)
		}
		return a.finish(p.Node, as, fin)
	}

	if p.Seq < as.next {
		return nil, nil
	}
	if p.Seq > as.next {
		if _, dup := as.pending[p.Seq]; dup {
			return nil, nil
		}
		if len(as.pending) >= a.maxPending {
			a.drop(p.Node)
			as.state = StateRejected
			return nil, fmt.Errorf("%w: address %d frame %d arrived with %d frames already waiting",
				ErrSequenceGap, p.Node, p.Seq, len(as.pending))
		}
		as.pending[p.Seq] = raw
		return nil, nil
	}

	if err := a.consume(p.Node, as, raw); err != nil {
		return nil, err
	}
	for {
		next, ok := as.pending[as.next]
		if !ok {
			break
		}
		delete(as.pending, as.next)
		if err := a.consume(p.Node, as, next); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// consume decrypts and decodes the next frame in sequence.
func (a *Assembler) consume(addr frame.Address, as *assembly, raw [frame.Size]byte) error {
	plain := raw
	if as.cipher != nil {
		as.cipher.Decrypt(plain[4:], raw[4:])
		as.ivConfirmed = true
	}

	f, err := frame.Decode(plain[:])
	if err != nil {
		a.drop(addr)
		return err
	}

	if iv, ok := f.(*frame.IV); ok && !as.encrypted {
		as.encrypted = true
		as.iv = append([]byte(nil), iv.IV[:]...)

		d, found := a.device(as)
		if !found || !d.HasSecret() {
			a.drop(addr)
			return fmt.Errorf("%w: address %d uuid %s", ErrNoSharedSecret, addr, as.uuid)
		}
		c, err := crypto.NewAcorn128(d.CipherKey(), as.iv)
		if err != nil {
			a.drop(addr)
			return err
		}
		c.AddAuthData(as.header.AAD())
		as.cipher = c
		as.state = StateDecrypting
	}

	as.consumed = append(as.consumed, f)
	as.next++
	return nil
}

// finish verifies a completed transmission and builds its result. The
// assembly is removed whatever the outcome.
func (a *Assembler) finish(addr frame.Address, as *assembly, fin *frame.Final) (*Result, error) {
	a.drop(addr)
	as.state = StateVerifying

	if len(as.pending) > 0 || (fin.Count != 0 && fin.Count != as.next) {
		as.state = StateRejected
		return nil, fmt.Errorf("%w: address %d consumed %d frames, %d waiting, final declares %d",
			ErrSequenceGap, addr, as.next, len(as.pending), fin.Count)
	}

	if as.encrypted {
		if as.cipher == nil {
			as.state = StateRejected
			return nil, fmt.Errorf("%w: address %d", ErrNoSharedSecret, addr)
		}
		if !as.cipher.CheckTag(fin.Tag[:]) {
			as.state = StateRejected
			return nil, fmt.Errorf("%w: address %d uuid %s", ErrAuthentication, addr, as.uuid)
		}
	}

	// Frames of an unknown type cannot be attributed to any reading. In an
	// unencrypted message this also catches a corrupted IV frame.
	for _, f := range as.consumed {
		if u, ok := f.(*frame.Payload); ok {
			as.state = StateRejected
			return nil, fmt.Errorf("%w: address %d frame %d has type %s", ErrUnknownFrame, addr, u.Seq, u.MsgType)
		}
	}
	as.state = StateDelivered

	res := &Result{
		Address:     addr,
		UUID:        as.uuid,
		IV:          as.iv,
		IVConfirmed: as.ivConfirmed,
	}

	if as.iv != nil {
		if err := a.devices.UpdateIV(as.uuid, as.iv); err != nil {
			a.warnf("address %d: cannot record iv candidate: %v", addr, err)
		}
	}

	switch as.header.Kind {
	case frame.TypeNewKey:
		res.Kind = KindKeyExchange
		for _, f := range as.consumed {
			switch k := f.(type) {
			case *frame.KeyPart1:
				res.Part1 = k
			case *frame.KeyPart2:
				res.Part2 = k
			}
		}
	case frame.TypeIVExchange, frame.TypeIVMessage:
		res.Kind = KindIVExchange
	default:
		res.Kind = KindReadings
		res.Batch = reading.NewBatch(addr, as.uuid)
		for _, f := range as.consumed {
			res.Batch.Add(reading.FromFrame(f, as.started)...)
		}
		res.Ack = &frame.Ack{To: addr, Tag: fin.Tag}
	}

	if a.log != nil {
		a.log.Debugf("address %d: delivered %s with %d frames", addr, res.Kind, len(as.consumed))
	}
	return res, nil
}

// Single processes a self-contained message.
func (a *Assembler) Single(s *frame.Single, now time.Time) (*Result, error) {
	d, ok := a.devices.ByAddress(s.From)
	if !ok {
		return nil, fmt.Errorf("%w: address %d", ErrUnknownDevice, s.From)
	}
	if !d.HasSecret() {
		return nil, fmt.Errorf("%w: address %d uuid %s", ErrNoSharedSecret, s.From, d.UUID)
	}
	raw, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}

	if s.MsgType == frame.TypeIVMessage {
		return a.ivMessage(d, raw)
	}

	n := reading.PayloadSize(s.MsgType)
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessage, s.MsgType)
	}
	ct := raw[6 : 6+n]
	tag := raw[6+n : min(6+n+crypto.AcornTagSize, frame.Size)]
	aad := raw[0:6]

	var plain, iv []byte
	for _, candidate := range [][]byte{d.IVCandidate, d.IV} {
		if candidate == nil {
			continue
		}
		pt, err := crypto.AcornOpen(d.CipherKey(), candidate, aad, ct, tag)
		if err != nil {
			continue
		}
		plain, iv = pt, candidate
		break
	}
	if plain == nil {
		return nil, fmt.Errorf("%w: address %d uuid %s", ErrAuthentication, s.From, d.UUID)
	}

	if err := a.devices.PromoteIV(d.UUID, iv); err != nil {
		a.warnf("address %d: cannot promote iv: %v", s.From, err)
	}

	rs, err := reading.FromSingle(s.MsgType, plain, now)
	if err != nil {
		return nil, err
	}
	batch := reading.NewBatch(s.From, d.UUID)
	batch.Add(rs...)
	return &Result{Kind: KindReadings, Address: s.From, UUID: d.UUID, Batch: batch, IV: iv, IVConfirmed: true}, nil
}

// ivMessage verifies a self-contained IV announcement and records the
// carried IV as candidate.
func (a *Assembler) ivMessage(d *registry.Device, raw []byte) (*Result, error) {
	iv := raw[6 : 6+frame.IVSize]
	tag := raw[6+frame.IVSize : frame.Size]
	if _, err := crypto.AcornOpen(d.CipherKey(), iv, raw[0:6+frame.IVSize], nil, tag); err != nil {
		return nil, fmt.Errorf("%w: iv message from address %d", ErrAuthentication, d.Address)
	}
	iv = append([]byte(nil), iv...)
	if err := a.devices.UpdateIV(d.UUID, iv); err != nil {
		a.warnf("address %d: cannot record iv candidate: %v", d.Address, err)
	}
	return &Result{Kind: KindIVExchange, Address: d.Address, UUID: d.UUID, IV: iv, IVConfirmed: true}, nil
}

// Expire drops assemblies idle since before now minus the assembly timeout
// and returns how many were dropped.
func (a *Assembler) Expire(now time.Time) int {
	if a.timeout < 0 {
		return 0
	}
	n := 0
	for addr, as := range a.arena {
		if as == nil || now.Sub(as.seen) <= a.timeout {
			continue
		}
		a.arena[addr] = nil
		n++
		if a.log != nil {
			a.log.Debugf("address %d: assembly expired in state %s", addr, as.state)
		}
	}
	return n
}

// device resolves the sender by header UUID. Only a header without UUID
// falls back to the sender address.
func (a *Assembler) device(as *assembly) (*registry.Device, bool) {
	if as.uuid != (frame.UUID{}) {
		return a.devices.ByUUID(as.uuid)
	}
	d, ok := a.devices.ByAddress(as.header.From)
	if ok {
		as.uuid = d.UUID
	}
	return d, ok
}

func (a *Assembler) drop(addr frame.Address) {
	a.arena[addr] = nil
}

func (a *Assembler) warnf(format string, args ...interface{}) {
	if a.log != nil {
		a.log.Warnf(format, args...)
	}
}
