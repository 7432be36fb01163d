package frame

import (
	"encoding/binary"
	"fmt"
)

// Frame is a decoded radio frame.
type Frame interface {
	// Type returns the message type carried by the frame.
	Type() MessageType

	// Node returns the device address the frame comes from or is sent to.
	Node() Address

	// MarshalBinary encodes the frame into its Size-byte wire form.
	MarshalBinary() ([]byte, error)
}

// Sequenced is implemented by the payload frames of a multi-frame transmission.
type Sequenced interface {
	Frame
	Sequence() uint16
}

// Prefix holds the leading fields shared by every device frame.
type Prefix struct {
	Version uint8
	Node    Address
	Seq     uint16
	Type    MessageType
}

// ParsePrefix reads the version, address, sequence and type fields of a device
// frame without interpreting the payload.
func ParsePrefix(b []byte) (Prefix, error) {
	if len(b) != Size {
		return Prefix{}, fmt.Errorf("%w: length %d", ErrMalformedFrame, len(b))
	}
	p := Prefix{
		Version: b[0],
		Node:    Address(b[1]),
		Seq:     binary.LittleEndian.Uint16(b[2:4]),
		Type:    MessageType(binary.LittleEndian.Uint16(b[4:6])),
	}
	if p.Version != ProtocolVersion {
		return p, fmt.Errorf("%w: version %d", ErrMalformedFrame, p.Version)
	}
	return p, nil
}

// AddressRequest is sent by an unpaired device to obtain a dynamic address.
type AddressRequest struct {
	From Address
	UUID UUID
}

// Header opens a multi-frame transmission.
type Header struct {
	From    Address
	MsgType MessageType
	// Kind is the transmission kind; it selects what the assembled
	// message is used for (readings, new key, IV exchange).
	Kind MessageType
	UUID UUID
}

// AAD returns the header bytes bound as associated data when the
// transmission is encrypted.
func (h *Header) AAD() []byte {
	b, _ := h.MarshalBinary()
	return b[:22]
}

// Single is a self-contained message (class 0x02). Body holds bytes 6 to 32
// of the frame: ciphertext and tag, or an IV and tag.
type Single struct {
	From    Address
	MsgType MessageType
	Body    [Size - 6]byte
}

// IV carries the initialization vector of an encrypted transmission.
type IV struct {
	From Address
	Seq  uint16
	IV   [IVSize]byte
}

// Final closes a transmission. Count is the sequence number of the final
// frame, one more than the number of payload frames.
type Final struct {
	From  Address
	Count uint16
	Tag   [TagSize]byte
}

// KeyPart1 carries the first 26 bytes of a device public key.
type KeyPart1 struct {
	From Address
	Seq  uint16
	Key  [26]byte
}

// KeyPart2 carries the last 6 bytes of a device public key and the CRC-32 of
// uuid || public key.
type KeyPart2 struct {
	From     Address
	Seq      uint16
	KeyTail  [6]byte
	Checksum uint32
}

// TH is a temperature/humidity payload. Temperature is in tenths of a degree,
// humidity in tenths of a percent.
type TH struct {
	From        Address
	Seq         uint16
	Temperature int16
	Humidity    uint16
}

// TP is a temperature/pressure payload. Pressure is in hundredths of a kPa.
type TP struct {
	From        Address
	Seq         uint16
	Temperature int16
	Pressure    uint16
}

// Power is a battery payload.
type Power struct {
	From      Address
	Seq       uint16
	Millivolt uint32
	Reserve   uint8
	Alert     uint8
}

// Onewire is a onewire probe payload: the probe ROM address and its raw
// scratchpad bytes.
type Onewire struct {
	From   Address
	Seq    uint16
	Device [8]byte
	Data   [12]byte
}

// Antenna reports link quality as seen by the device.
type Antenna struct {
	From    Address
	Seq     uint16
	Signal  uint8
	Power   uint8
	Channel uint8
}

// Payload is a payload frame of unknown type, or one whose content is still
// ciphertext.
type Payload struct {
	From    Address
	Seq     uint16
	MsgType MessageType
	Data    [Size - 6]byte
}

// Decode parses a frame received from a device.
//
// Sequence 0 frames decode to *AddressRequest, *Header or *Single depending
// on the message type. Other frames decode to a payload variant selected by
// the message type; unknown types decode to *Payload. A frame whose bytes are
// still ciphertext decodes to a meaningless variant: callers holding a cipher
// decrypt first and call Decode on the plaintext.
func Decode(b []byte) (Frame, error) {
	p, err := ParsePrefix(b)
	if err != nil {
		return nil, err
	}

	if p.Seq == SeqHeader {
		switch {
		case p.Type == TypeAddressRequest:
			f := &AddressRequest{From: p.Node}
			copy(f.UUID[:], b[6:22])
			return f, nil
		case !p.Type.MultiFrame():
			f := &Single{From: p.Node, MsgType: p.Type}
			copy(f.Body[:], b[6:])
			return f, nil
		default:
			f := &Header{
				From:    p.Node,
				MsgType: p.Type,
				Kind:    MessageType(binary.LittleEndian.Uint16(b[6:8])),
			}
			copy(f.UUID[:], b[8:24])
			return f, nil
		}
	}

	if p.Seq == SeqFinal || p.Type == TypeFinal {
		f := &Final{From: p.Node, Count: binary.LittleEndian.Uint16(b[6:8])}
		copy(f.Tag[:], b[8:24])
		return f, nil
	}

	d := b[6:]
	switch p.Type {
	case TypeIV:
		f := &IV{From: p.Node, Seq: p.Seq}
		copy(f.IV[:], d[:IVSize])
		return f, nil
	case TypeDeviceKey1:
		f := &KeyPart1{From: p.Node, Seq: p.Seq}
		copy(f.Key[:], d)
		return f, nil
	case TypeDeviceKey2:
		f := &KeyPart2{From: p.Node, Seq: p.Seq, Checksum: binary.LittleEndian.Uint32(d[6:10])}
		copy(f.KeyTail[:], d[:6])
		return f, nil
	case TypeTH:
		return &TH{
			From:        p.Node,
			Seq:         p.Seq,
			Temperature: int16(binary.LittleEndian.Uint16(d[0:2])),
			Humidity:    binary.LittleEndian.Uint16(d[2:4]),
		}, nil
	case TypeTP:
		return &TP{
			From:        p.Node,
			Seq:         p.Seq,
			Temperature: int16(binary.LittleEndian.Uint16(d[0:2])),
			Pressure:    binary.LittleEndian.Uint16(d[2:4]),
		}, nil
	case TypePower:
		return &Power{
			From:      p.Node,
			Seq:       p.Seq,
			Millivolt: binary.LittleEndian.Uint32(d[0:4]),
			Reserve:   d[4],
			Alert:     d[5],
		}, nil
	case TypeOnewire:
		f := &Onewire{From: p.Node, Seq: p.Seq}
		copy(f.Device[:], d[0:8])
		copy(f.Data[:], d[8:20])
		return f, nil
	case TypeAntenna:
		return &Antenna{From: p.Node, Seq: p.Seq, Signal: d[0], Power: d[1], Channel: d[2]}, nil
	default:
		f := &Payload{From: p.Node, Seq: p.Seq, MsgType: p.Type}
		copy(f.Data[:], d)
		return f, nil
	}
}

// JoinPublicKey rebuilds a device public key from its two key frames.
func JoinPublicKey(p1 *KeyPart1, p2 *KeyPart2) [PublicKeySize]byte {
	var k [PublicKeySize]byte
	copy(k[:26], p1.Key[:])
	copy(k[26:], p2.KeyTail[:])
	return k
}

func deviceFrame(node Address, seq uint16, t MessageType) []byte {
	b := make([]byte, Size)
	b[0] = ProtocolVersion
	b[1] = byte(node)
	binary.LittleEndian.PutUint16(b[2:4], seq)
	binary.LittleEndian.PutUint16(b[4:6], uint16(t))
	return b
}

// Type implements Frame.
func (f *AddressRequest) Type() MessageType { return TypeAddressRequest }

// Node implements Frame.
func (f *AddressRequest) Node() Address { return f.From }

// MarshalBinary implements Frame.
func (f *AddressRequest) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, SeqHeader, TypeAddressRequest)
	copy(b[6:22], f.UUID[:])
	return b, nil
}

// Type implements Frame.
func (f *Header) Type() MessageType { return f.MsgType }

// Node implements Frame.
func (f *Header) Node() Address { return f.From }

// MarshalBinary implements Frame.
func (f *Header) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, SeqHeader, f.MsgType)
	binary.LittleEndian.PutUint16(b[6:8], uint16(f.Kind))
	copy(b[8:24], f.UUID[:])
	return b, nil
}

// Type implements Frame.
func (f *Single) Type() MessageType { return f.MsgType }

// Node implements Frame.
func (f *Single) Node() Address { return f.From }

// MarshalBinary implements Frame.
func (f *Single) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, SeqHeader, f.MsgType)
	copy(b[6:], f.Body[:])
	return b, nil
}

// Type implements Frame.
func (f *IV) Type() MessageType { return TypeIV }

// Node implements Frame.
func (f *IV) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *IV) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *IV) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeIV)
	copy(b[6:22], f.IV[:])
	return b, nil
}

// Type implements Frame.
func (f *Final) Type() MessageType { return TypeFinal }

// Node implements Frame.
func (f *Final) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *Final) Sequence() uint16 { return SeqFinal }

// MarshalBinary implements Frame.
func (f *Final) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, SeqFinal, TypeFinal)
	binary.LittleEndian.PutUint16(b[6:8], f.Count)
	copy(b[8:24], f.Tag[:])
	return b, nil
}

// Type implements Frame.
func (f *KeyPart1) Type() MessageType { return TypeDeviceKey1 }

// Node implements Frame.
func (f *KeyPart1) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *KeyPart1) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *KeyPart1) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeDeviceKey1)
	copy(b[6:], f.Key[:])
	return b, nil
}

// Type implements Frame.
func (f *KeyPart2) Type() MessageType { return TypeDeviceKey2 }

// Node implements Frame.
func (f *KeyPart2) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *KeyPart2) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *KeyPart2) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeDeviceKey2)
	copy(b[6:12], f.KeyTail[:])
	binary.LittleEndian.PutUint32(b[12:16], f.Checksum)
	return b, nil
}

// Type implements Frame.
func (f *TH) Type() MessageType { return TypeTH }

// Node implements Frame.
func (f *TH) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *TH) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *TH) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeTH)
	binary.LittleEndian.PutUint16(b[6:8], uint16(f.Temperature))
	binary.LittleEndian.PutUint16(b[8:10], f.Humidity)
	return b, nil
}

// Type implements Frame.
func (f *TP) Type() MessageType { return TypeTP }

// Node implements Frame.
func (f *TP) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *TP) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *TP) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeTP)
	binary.LittleEndian.PutUint16(b[6:8], uint16(f.Temperature))
	binary.LittleEndian.PutUint16(b[8:10], f.Pressure)
	return b, nil
}

// Type implements Frame.
func (f *Power) Type() MessageType { return TypePower }

// Node implements Frame.
func (f *Power) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *Power) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *Power) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypePower)
	binary.LittleEndian.PutUint32(b[6:10], f.Millivolt)
	b[10] = f.Reserve
	b[11] = f.Alert
	return b, nil
}

// Type implements Frame.
func (f *Onewire) Type() MessageType { return TypeOnewire }

// Node implements Frame.
func (f *Onewire) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *Onewire) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *Onewire) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeOnewire)
	copy(b[6:14], f.Device[:])
	copy(b[14:26], f.Data[:])
	return b, nil
}

// Type implements Frame.
func (f *Antenna) Type() MessageType { return TypeAntenna }

// Node implements Frame.
func (f *Antenna) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *Antenna) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *Antenna) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, TypeAntenna)
	b[6] = f.Signal
	b[7] = f.Power
	b[8] = f.Channel
	return b, nil
}

// Type implements Frame.
func (f *Payload) Type() MessageType { return f.MsgType }

// Node implements Frame.
func (f *Payload) Node() Address { return f.From }

// Sequence implements Sequenced.
func (f *Payload) Sequence() uint16 { return f.Seq }

// MarshalBinary implements Frame.
func (f *Payload) MarshalBinary() ([]byte, error) {
	b := deviceFrame(f.From, f.Seq, f.MsgType)
	copy(b[6:], f.Data[:])
	return b, nil
}
