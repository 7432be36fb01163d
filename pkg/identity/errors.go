package identity

import "errors"

// Errors
var (
	// ErrNotFound is returned by Load when the identity file does not exist.
	ErrNotFound = errors.New("identity: not found")

	// ErrPassphraseRequired is returned when loading a sealed identity
	// without a passphrase.
	ErrPassphraseRequired = errors.New("identity: passphrase required")

	// ErrWrongPassphrase is returned when the sealed key cannot be opened.
	ErrWrongPassphrase = errors.New("identity: wrong passphrase or corrupted key")

	// ErrMalformed is returned for unreadable identity files.
	ErrMalformed = errors.New("identity: malformed identity file")

	// ErrUnsupportedVersion is returned for sealed keys of a newer format.
	ErrUnsupportedVersion = errors.New("identity: unsupported sealed key version")
)
