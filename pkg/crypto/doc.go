// Package crypto provides the ciphers of the radio protocol.
//
// Devices and the relay agree on a shared secret with X25519 (RFC 7748).
// The first 16 bytes of the secret key ACORN-128, which encrypts reading
// payloads and authenticates each transmission with a tag.
package crypto
