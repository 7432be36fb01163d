// Package emitter owns the relay's transmit side.
//
// An Emitter broadcasts a beacon carrying the server address on a fixed
// interval and drains a queue of outbound frames (ACKs, server key replies,
// address grants) to the radio, pausing between writes so the radio has
// time to receive. Frames are sent once; a lost ACK is recovered by the
// device retransmitting.
//
// When the transport implements radio.HalfDuplex, listening is suspended
// around every write.
package emitter
