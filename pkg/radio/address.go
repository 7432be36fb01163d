package radio

import (
	"encoding/hex"

	"github.com/backkem/rf24relay/pkg/frame"
)

// PipeAddressSize is the width of an nRF24 pipe address.
const PipeAddressSize = 5

// PipeAddress is an nRF24 pipe address in the byte order handed to the radio.
type PipeAddress [PipeAddressSize]byte

// BroadcastPipe carries beacons, address grants and frames of devices that
// have no address yet.
var BroadcastPipe = PipeAddress{0x8B, 0x54, 0x92, 0x0E, 0x29}

// String returns the pipe address as hex.
func (p PipeAddress) String() string {
	return hex.EncodeToString(p[:])
}

// DevicePipe returns the pipe a device listens on: its address followed by
// the network address.
func DevicePipe(addr frame.Address, network [frame.NetworkAddressSize]byte) PipeAddress {
	var p PipeAddress
	p[0] = byte(addr)
	copy(p[1:], network[:])
	return p
}

// ServerPipe returns the pipe the relay reads on: two zero bytes followed by
// the server address advertised in beacons.
func ServerPipe(server [frame.ServerAddressSize]byte) PipeAddress {
	var p PipeAddress
	copy(p[2:], server[:])
	return p
}

// Router maps destinations to writing pipes.
type Router struct {
	Network [frame.NetworkAddressSize]byte
}

// Pipe returns the writing pipe for dest. AddressBroadcast and addresses
// outside the device range go to the broadcast pipe.
func (r Router) Pipe(dest frame.Address) PipeAddress {
	if dest == frame.AddressBroadcast || !dest.IsDevice() {
		return BroadcastPipe
	}
	return DevicePipe(dest, r.Network)
}
