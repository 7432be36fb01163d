// Package identity manages the relay's radio identity: the 3-byte server
// address advertised in beacons, the 4-byte network address handed to
// devices, and the static X25519 key pair used for key exchange.
//
// The identity is generated once and stored as JSON. The private key can be
// sealed with a passphrase (scrypt key derivation, ChaCha20-Poly1305).
package identity
