// Package frame implements the codec for the 32-byte radio frames exchanged
// between sensor devices and the relay.
//
// Every frame starts with the protocol version and the sender (or recipient)
// dynamic address. Device frames then carry a 16-bit sequence number and a
// 16-bit message type; sequence 0 identifies the header of a transmission.
// Server frames (beacon, address grant, key replies, ACK) use a shorter
// prefix: version, message type, address.
//
// All multi-byte integers are little-endian. Encoded frames are always
// zero-padded to Size bytes.
//
// # Device frames
//
//	header      ver | addr | 0 | msgtype | txkind | uuid[16]
//	payload     ver | addr | seq | type | data[26]
//	final       ver | addr | 0xFFFF | 0xFFFF | count | tag[16]
//
// Decode returns a typed variant for each layout; whether a header starts a
// multi-frame transmission is decided once, from the class (msgtype >> 8).
//
// # Server frames
//
//	beacon      ver | 0x0003 | server address[3]
//	grant       ver | 0x0002 | addr | network address[4]
//	key 1       ver | 0x0006 | addr | public key[0:28]
//	key 2       ver | 0x0007 | addr | public key[28:32] | crc32
//	ack         ver | 0x0009 | addr | tag[16]
package frame
