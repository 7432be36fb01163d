// Package discovery advertises and finds relays on the local network with
// DNS-SD over mDNS.
//
// A relay registers one _rf24relay._tcp service pointing at its WebSocket
// stream. The TXT record carries the protocol version, the server address,
// the radio channel, the stream path and the batch encoding, so a consumer
// can pick the right relay and connect without configuration.
package discovery
