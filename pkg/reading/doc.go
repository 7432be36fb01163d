// Package reading defines the semantic output of the relay: named sensor
// readings decoded from device payloads, grouped per transmission into a
// Batch.
//
// Values use fixed-point encodings on the wire. Each channel reserves a
// sentinel bit pattern meaning "no data"; sentinels decode to a nil Value,
// which consumers must not treat as zero.
//
//	Channel                 Wire            Scale   Sentinel
//	th/temperature          int16           /10     -32768
//	th/humidite             uint16          /10     0x00FF
//	tp/pression             uint16          /100    0x00FF
//	batterie/millivolt      uint32 | uint16 1       0xFFFFFFFF | 0xFFFF
//	batterie/reserve        uint8           1       0xFF
//	onewire/<rom>           int16           /16     0xFFFF
package reading
