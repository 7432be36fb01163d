package frame

import (
	"encoding/hex"
	"fmt"
)

// Wire constants.
const (
	// Size is the fixed length of every radio frame.
	Size = 32

	// ProtocolVersion is the only protocol version accepted by Decode.
	ProtocolVersion = 9

	// UUIDSize is the length of a device identity.
	UUIDSize = 16

	// IVSize is the length of a cipher initialization vector.
	IVSize = 16

	// TagSize is the length of a full authentication tag.
	TagSize = 16

	// PublicKeySize is the length of an X25519 public key.
	PublicKeySize = 32

	// SeqHeader is the sequence number of a header frame.
	SeqHeader uint16 = 0x0000

	// SeqFinal is the sequence number of the frame closing a transmission.
	SeqFinal uint16 = 0xFFFF
)

// MessageType identifies the content of a frame.
type MessageType uint16

// Message types.
const (
	TypeAddressRequest MessageType = 0x0001
	TypeAddressGrant   MessageType = 0x0002
	TypeBeacon         MessageType = 0x0003
	TypeDeviceKey1     MessageType = 0x0004
	TypeDeviceKey2     MessageType = 0x0005
	TypeServerKey1     MessageType = 0x0006
	TypeServerKey2     MessageType = 0x0007
	TypeNewKey         MessageType = 0x0008
	TypeAck            MessageType = 0x0009
	TypeIVExchange     MessageType = 0x000A

	TypeCombinedReadings MessageType = 0x0101
	TypeTH               MessageType = 0x0102
	TypeTP               MessageType = 0x0103
	TypePower            MessageType = 0x0104
	TypeOnewire          MessageType = 0x0105
	TypeAntenna          MessageType = 0x0106

	TypeTHAntennaPower MessageType = 0x0202
	TypeTPAntennaPower MessageType = 0x0203
	TypeOnewireSingle  MessageType = 0x0204
	TypeIVMessage      MessageType = 0x0205

	TypeIV    MessageType = 0xFFFE
	TypeFinal MessageType = 0xFFFF
)

// ClassSingleFrame is the class of self-contained messages.
const ClassSingleFrame uint8 = 0x02

// Class returns the coarse category of the message type.
func (t MessageType) Class() uint8 {
	return uint8(t >> 8)
}

// MultiFrame reports whether a transmission announced with this type needs
// reassembly.
func (t MessageType) MultiFrame() bool {
	return t.Class() != ClassSingleFrame
}

// String returns a human-readable name for the message type.
func (t MessageType) String() string {
	switch t {
	case TypeAddressRequest:
		return "AddressRequest"
	case TypeAddressGrant:
		return "AddressGrant"
	case TypeBeacon:
		return "Beacon"
	case TypeDeviceKey1:
		return "DeviceKey1"
	case TypeDeviceKey2:
		return "DeviceKey2"
	case TypeServerKey1:
		return "ServerKey1"
	case TypeServerKey2:
		return "ServerKey2"
	case TypeNewKey:
		return "NewKey"
	case TypeAck:
		return "Ack"
	case TypeIVExchange:
		return "IVExchange"
	case TypeCombinedReadings:
		return "CombinedReadings"
	case TypeTH:
		return "TH"
	case TypeTP:
		return "TP"
	case TypePower:
		return "Power"
	case TypeOnewire:
		return "Onewire"
	case TypeAntenna:
		return "Antenna"
	case TypeTHAntennaPower:
		return "THAntennaPower"
	case TypeTPAntennaPower:
		return "TPAntennaPower"
	case TypeOnewireSingle:
		return "OnewireSingle"
	case TypeIVMessage:
		return "IVMessage"
	case TypeIV:
		return "IV"
	case TypeFinal:
		return "Final"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}

// Address is the 1-byte dynamic address assigned to a device.
type Address uint8

// Reserved addresses. Devices are assigned addresses in
// [MinDeviceAddress, MaxDeviceAddress].
const (
	AddressUnassigned Address = 0
	AddressServer     Address = 1
	MinDeviceAddress  Address = 2
	MaxDeviceAddress  Address = 253
	AddressBroadcast  Address = 255
)

// IsDevice reports whether a is in the assignable device range.
func (a Address) IsDevice() bool {
	return a >= MinDeviceAddress && a <= MaxDeviceAddress
}

// UUID is the stable 16-byte identity of a device.
type UUID [UUIDSize]byte

// ParseUUID decodes a hex-encoded UUID.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	b, err := hex.DecodeString(s)
	if err != nil {
		return u, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
	}
	if len(b) != UUIDSize {
		return u, fmt.Errorf("%w: got %d bytes", ErrInvalidUUID, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// String returns the lowercase hex form used by the registry file and the relay.
func (u UUID) String() string {
	return hex.EncodeToString(u[:])
}

// MarshalText implements encoding.TextMarshaler.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(b []byte) error {
	v, err := ParseUUID(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
