package assembler

import "fmt"

// State is the state of the assembly for one device address.
type State uint8

// Assembly states.
const (
	StateAwaitingHeader State = iota
	StateCollecting
	StateDecrypting
	StateVerifying
	StateDelivered
	StateRejected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "AwaitingHeader"
	case StateCollecting:
		return "Collecting"
	case StateDecrypting:
		return "Decrypting"
	case StateVerifying:
		return "Verifying"
	case StateDelivered:
		return "Delivered"
	case StateRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Kind selects what a completed message is used for.
type Kind uint8

// Result kinds.
const (
	// KindReadings carries a reading batch, usually with an ACK.
	KindReadings Kind = iota
	// KindKeyExchange carries the two device public key frames.
	KindKeyExchange
	// KindIVExchange only updated the device IV bookkeeping.
	KindIVExchange
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindReadings:
		return "Readings"
	case KindKeyExchange:
		return "KeyExchange"
	case KindIVExchange:
		return "IVExchange"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}
