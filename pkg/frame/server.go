package frame

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Outbound is implemented by frames the relay transmits.
type Outbound interface {
	Frame
	// Destination returns the address the frame must be sent to.
	// AddressBroadcast selects the broadcast pipe.
	Destination() Address
}

// ServerAddressSize is the length of the server address advertised by beacons.
const ServerAddressSize = 3

// NetworkAddressSize is the length of the network address handed out in
// address grants.
const NetworkAddressSize = 4

// Beacon advertises the server address on the broadcast pipe.
type Beacon struct {
	Server [ServerAddressSize]byte
}

// AddressGrant answers an AddressRequest. It is sent on the broadcast pipe
// because the device does not listen on its own pipe yet.
type AddressGrant struct {
	To      Address
	Network [NetworkAddressSize]byte
}

// ServerKey1 carries the first 28 bytes of the server public key.
type ServerKey1 struct {
	To  Address
	Key [28]byte
}

// ServerKey2 carries the last 4 bytes of the server public key and the CRC-32
// of the full key.
type ServerKey2 struct {
	To       Address
	KeyTail  [4]byte
	Checksum uint32
}

// Ack acknowledges a verified transmission by echoing its tag.
type Ack struct {
	To  Address
	Tag [TagSize]byte
}

// NewServerKeyFrames splits a server public key into its two reply frames.
func NewServerKeyFrames(to Address, pub [PublicKeySize]byte) (*ServerKey1, *ServerKey2) {
	k1 := &ServerKey1{To: to}
	copy(k1.Key[:], pub[:28])
	k2 := &ServerKey2{To: to, Checksum: crc32.ChecksumIEEE(pub[:])}
	copy(k2.KeyTail[:], pub[28:])
	return k1, k2
}

// JoinServerKey rebuilds the server public key from its reply frames and
// reports whether the checksum matches.
func JoinServerKey(k1 *ServerKey1, k2 *ServerKey2) ([PublicKeySize]byte, bool) {
	var pub [PublicKeySize]byte
	copy(pub[:28], k1.Key[:])
	copy(pub[28:], k2.KeyTail[:])
	return pub, crc32.ChecksumIEEE(pub[:]) == k2.Checksum
}

// DecodeServer parses a frame emitted by the relay. It is the device-side
// counterpart of the Outbound encoders.
func DecodeServer(b []byte) (Outbound, error) {
	if len(b) != Size {
		return nil, fmt.Errorf("%w: length %d", ErrMalformedFrame, len(b))
	}
	if b[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedFrame, b[0])
	}
	t := MessageType(binary.LittleEndian.Uint16(b[1:3]))
	to := Address(b[3])

	switch t {
	case TypeBeacon:
		f := &Beacon{}
		copy(f.Server[:], b[3:6])
		return f, nil
	case TypeAddressGrant:
		f := &AddressGrant{To: to}
		copy(f.Network[:], b[4:8])
		return f, nil
	case TypeServerKey1:
		f := &ServerKey1{To: to}
		copy(f.Key[:], b[4:32])
		return f, nil
	case TypeServerKey2:
		f := &ServerKey2{To: to, Checksum: binary.LittleEndian.Uint32(b[8:12])}
		copy(f.KeyTail[:], b[4:8])
		return f, nil
	case TypeAck:
		f := &Ack{To: to}
		copy(f.Tag[:], b[4:20])
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

// Encode marshals an outbound frame into a fixed-size array.
func Encode(f Frame) ([Size]byte, error) {
	var out [Size]byte
	b, err := f.MarshalBinary()
	if err != nil {
		return out, err
	}
	if len(b) > Size {
		return out, fmt.Errorf("%w: encoded length %d", ErrMalformedFrame, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func serverFrame(to Address, t MessageType) []byte {
	b := make([]byte, Size)
	b[0] = ProtocolVersion
	binary.LittleEndian.PutUint16(b[1:3], uint16(t))
	b[3] = byte(to)
	return b
}

// Type implements Frame.
func (f *Beacon) Type() MessageType { return TypeBeacon }

// Node implements Frame.
func (f *Beacon) Node() Address { return AddressBroadcast }

// Destination implements Outbound.
func (f *Beacon) Destination() Address { return AddressBroadcast }

// MarshalBinary implements Frame. The beacon has no address byte: the server
// address directly follows the message type.
func (f *Beacon) MarshalBinary() ([]byte, error) {
	b := make([]byte, Size)
	b[0] = ProtocolVersion
	binary.LittleEndian.PutUint16(b[1:3], uint16(TypeBeacon))
	copy(b[3:6], f.Server[:])
	return b, nil
}

// Type implements Frame.
func (f *AddressGrant) Type() MessageType { return TypeAddressGrant }

// Node implements Frame.
func (f *AddressGrant) Node() Address { return f.To }

// Destination implements Outbound.
func (f *AddressGrant) Destination() Address { return AddressBroadcast }

// MarshalBinary implements Frame.
func (f *AddressGrant) MarshalBinary() ([]byte, error) {
	b := serverFrame(f.To, TypeAddressGrant)
	copy(b[4:8], f.Network[:])
	return b, nil
}

// Type implements Frame.
func (f *ServerKey1) Type() MessageType { return TypeServerKey1 }

// Node implements Frame.
func (f *ServerKey1) Node() Address { return f.To }

// Destination implements Outbound.
func (f *ServerKey1) Destination() Address { return f.To }

// MarshalBinary implements Frame.
func (f *ServerKey1) MarshalBinary() ([]byte, error) {
	b := serverFrame(f.To, TypeServerKey1)
	copy(b[4:32], f.Key[:])
	return b, nil
}

// Type implements Frame.
func (f *ServerKey2) Type() MessageType { return TypeServerKey2 }

// Node implements Frame.
func (f *ServerKey2) Node() Address { return f.To }

// Destination implements Outbound.
func (f *ServerKey2) Destination() Address { return f.To }

// MarshalBinary implements Frame.
func (f *ServerKey2) MarshalBinary() ([]byte, error) {
	b := serverFrame(f.To, TypeServerKey2)
	copy(b[4:8], f.KeyTail[:])
	binary.LittleEndian.PutUint32(b[8:12], f.Checksum)
	return b, nil
}

// Type implements Frame.
func (f *Ack) Type() MessageType { return TypeAck }

// Node implements Frame.
func (f *Ack) Node() Address { return f.To }

// Destination implements Outbound.
func (f *Ack) Destination() Address { return f.To }

// MarshalBinary implements Frame.
func (f *Ack) MarshalBinary() ([]byte, error) {
	b := serverFrame(f.To, TypeAck)
	copy(b[4:20], f.Tag[:])
	return b, nil
}
