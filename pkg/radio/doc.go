// Package radio moves 32-byte frames between the relay and the nRF24 radio.
//
// A Transport delivers received frames to a FrameHandler and sends outbound
// frames to a device address or to the broadcast pipe. Two transports are
// provided:
//
//   - Serial drives an nRF24L01 attached to a microcontroller bridge over a
//     serial line, using a small record protocol (see SerialConfig).
//   - PipeTransport is an in-memory radio link built on pion's test.Bridge,
//     with optional drop and duplication to exercise the protocol engine.
//
// Queue is the bounded receive FIFO sitting between a transport's read loop
// and the protocol worker. nRF24 radios are half-duplex; transports that
// need it implement HalfDuplex so the sender can suspend listening while it
// writes.
package radio
