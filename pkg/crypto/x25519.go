package crypto

import (
	"crypto/rand"
	"errors"
	"hash/crc32"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519 sizes.
const (
	// X25519KeySize is the size of private keys, public keys and shared secrets.
	X25519KeySize = 32
)

// Errors
var (
	ErrX25519InvalidKeySize = errors.New("x25519: invalid key size, must be 32 bytes")
	ErrX25519LowOrderPoint  = errors.New("x25519: peer public key is a low order point")
)

// X25519KeyPair is a static X25519 key pair. The server keeps one for its
// lifetime and derives a shared secret with each device public key.
type X25519KeyPair struct {
	private [X25519KeySize]byte
	public  [X25519KeySize]byte
}

// X25519GenerateKeyPair creates a key pair from rand. A nil rand uses
// crypto/rand.
func X25519GenerateKeyPair(r io.Reader) (*X25519KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	var priv [X25519KeySize]byte
	if _, err := io.ReadFull(r, priv[:]); err != nil {
		return nil, err
	}
	return X25519KeyPairFromPrivateKey(priv[:])
}

// X25519KeyPairFromPrivateKey loads a stored private key. The key is clamped
// per RFC 7748 before the public key is computed.
func X25519KeyPairFromPrivateKey(private []byte) (*X25519KeyPair, error) {
	if len(private) != X25519KeySize {
		return nil, ErrX25519InvalidKeySize
	}
	kp := &X25519KeyPair{}
	copy(kp.private[:], private)
	clamp(&kp.private)

	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.public[:], pub)
	return kp, nil
}

// PublicKey returns the public key.
func (kp *X25519KeyPair) PublicKey() [X25519KeySize]byte {
	return kp.public
}

// PrivateKey returns a copy of the clamped private key.
func (kp *X25519KeyPair) PrivateKey() []byte {
	out := make([]byte, X25519KeySize)
	copy(out, kp.private[:])
	return out
}

// SharedSecret performs X25519 with the peer public key. Low order peer keys,
// which yield an all-zero secret, are rejected.
func (kp *X25519KeyPair) SharedSecret(peer []byte) ([]byte, error) {
	if len(peer) != X25519KeySize {
		return nil, ErrX25519InvalidKeySize
	}
	secret, err := curve25519.X25519(kp.private[:], peer)
	if err != nil {
		return nil, ErrX25519LowOrderPoint
	}
	return secret, nil
}

func clamp(k *[X25519KeySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// KeyChecksum returns the CRC-32 (IEEE) a device sends with its public key:
// the checksum of uuid || public key.
func KeyChecksum(uuid, publicKey []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(uuid)
	h.Write(publicKey)
	return h.Sum32()
}
