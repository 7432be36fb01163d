package radio

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel is an nRF24 RF channel (2400 MHz + n).
type Channel uint8

// Channels used by the deployment environments.
const (
	ChannelProd Channel = 0x5e
	ChannelInt  Channel = 0x24
	ChannelDev  Channel = 0x0c
)

// MaxChannel is the highest channel an nRF24L01 tunes to.
const MaxChannel Channel = 125

// ParseChannel accepts an environment name (prod, int, dev) or a channel
// number in decimal or 0x-prefixed hex.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod":
		return ChannelProd, nil
	case "int":
		return ChannelInt, nil
	case "dev":
		return ChannelDev, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || Channel(n) > MaxChannel {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	return Channel(n), nil
}

// String returns the environment name for known channels.
func (c Channel) String() string {
	switch c {
	case ChannelProd:
		return "prod"
	case ChannelInt:
		return "int"
	case ChannelDev:
		return "dev"
	default:
		return fmt.Sprintf("0x%02x", uint8(c))
	}
}

// recordKind identifies a serial bridge record.
type recordKind byte

const (
	recordConfig   recordKind = 'C' // host -> bridge: channel and reading pipe
	recordTransmit recordKind = 'T' // host -> bridge: writing pipe and frame
	recordListen   recordKind = 'L' // host -> bridge: start (1) or stop (0) listening
	recordReceive  recordKind = 'R' // bridge -> host: received frame
	recordStatus   recordKind = 'S' // bridge -> host: result of the last transmit
)

// String returns the string representation of the record kind.
func (k recordKind) String() string {
	switch k {
	case recordConfig:
		return "Config"
	case recordTransmit:
		return "Transmit"
	case recordListen:
		return "Listen"
	case recordReceive:
		return "Receive"
	case recordStatus:
		return "Status"
	default:
		return fmt.Sprintf("Unknown(%#02x)", byte(k))
	}
}
