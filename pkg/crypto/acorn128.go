// ACORN-128 authenticated stream cipher (CAESAR final portfolio, version 3).
//
// The cipher state is 293 bits. Each step clocks one bit of associated data,
// plaintext or padding through six LFSRs and a nonlinear feedback function and
// yields one keystream bit. Bits are taken least significant first within each
// byte, which matches the reference implementation and the sensor firmware.
//
// Unlike an AEAD, the cipher is sequential: associated data must be added
// before the first Encrypt or Decrypt call, and message bytes can be fed in
// any number of chunks. The tag covers everything fed so far.

package crypto

import (
	"crypto/subtle"
	"errors"
)

// ACORN-128 sizes.
const (
	// AcornKeySize is the key size in bytes.
	AcornKeySize = 16

	// AcornIVSize is the initialization vector size in bytes.
	AcornIVSize = 16

	// AcornTagSize is the full authentication tag size in bytes.
	AcornTagSize = 16

	acornStateBits = 293
)

// Errors
var (
	ErrAcornInvalidKeySize = errors.New("acorn128: invalid key size, must be 16 bytes")
	ErrAcornInvalidIVSize  = errors.New("acorn128: invalid iv size, must be 16 bytes")
	ErrAcornInvalidTagSize = errors.New("acorn128: invalid tag size, must be 1 to 16 bytes")
	ErrAcornAuthFailed     = errors.New("acorn128: message authentication failed")
)

const (
	acornPhaseAD = iota
	acornPhaseMessage
	acornPhaseDone
)

// Acorn128 is a running ACORN-128 cipher instance.
// It is not safe for concurrent use.
type Acorn128 struct {
	s     [acornStateBits]uint8
	phase int
	tag   [AcornTagSize]byte
}

// NewAcorn128 loads key and iv and runs the 1792-step initialization.
func NewAcorn128(key, iv []byte) (*Acorn128, error) {
	if len(key) != AcornKeySize {
		return nil, ErrAcornInvalidKeySize
	}
	if len(iv) != AcornIVSize {
		return nil, ErrAcornInvalidIVSize
	}

	c := &Acorn128{}
	for i := 0; i < 1792; i++ {
		var m uint8
		switch {
		case i < 128:
			m = bit(key, i)
		case i < 256:
			m = bit(iv, i-128)
		default:
			m = bit(key, i&127)
			if i == 256 {
				m ^= 1
			}
		}
		c.update(m, 1, 1)
	}
	return c, nil
}

// AddAuthData authenticates ad without encrypting it. It panics if called
// after Encrypt, Decrypt or Tag.
func (c *Acorn128) AddAuthData(ad []byte) {
	if c.phase != acornPhaseAD {
		panic("acorn128: AddAuthData after message data")
	}
	for i := 0; i < len(ad)*8; i++ {
		c.update(bit(ad, i), 1, 1)
	}
}

// Encrypt encrypts src into dst. dst and src may overlap exactly.
func (c *Acorn128) Encrypt(dst, src []byte) {
	c.startMessage(len(dst), len(src))
	for i, p := range src {
		var out byte
		for j := 0; j < 8; j++ {
			pb := (p >> j) & 1
			ks := c.update(pb, 1, 0)
			out |= (pb ^ ks) << j
		}
		dst[i] = out
	}
}

// Decrypt decrypts src into dst. dst and src may overlap exactly.
func (c *Acorn128) Decrypt(dst, src []byte) {
	c.startMessage(len(dst), len(src))
	for i, ct := range src {
		var out byte
		for j := 0; j < 8; j++ {
			ks, f := c.clock(1, 0)
			pb := ((ct >> j) & 1) ^ ks
			c.s[acornStateBits-1] = f ^ pb
			out |= pb << j
		}
		dst[i] = out
	}
}

// Tag finalizes the cipher and returns the 16-byte authentication tag.
// Further calls return the same tag.
func (c *Acorn128) Tag() [AcornTagSize]byte {
	if c.phase == acornPhaseDone {
		return c.tag
	}
	if c.phase == acornPhaseAD {
		c.pad(1)
	}
	c.pad(0)

	for i := 0; i < 768; i++ {
		ks := c.update(0, 1, 1)
		if i >= 768-128 {
			n := i - (768 - 128)
			c.tag[n/8] |= ks << (n % 8)
		}
	}
	c.phase = acornPhaseDone
	return c.tag
}

// CheckTag finalizes the cipher and compares tag with the leading bytes of
// the computed tag in constant time. Truncated tags of 1 to 16 bytes are
// accepted, as sent by devices when the frame has no room for a full tag.
func (c *Acorn128) CheckTag(tag []byte) bool {
	if len(tag) == 0 || len(tag) > AcornTagSize {
		return false
	}
	full := c.Tag()
	return subtle.ConstantTimeCompare(full[:len(tag)], tag) == 1
}

func (c *Acorn128) startMessage(dstLen, srcLen int) {
	if dstLen < srcLen {
		panic("acorn128: output smaller than input")
	}
	switch c.phase {
	case acornPhaseAD:
		c.pad(1)
		c.phase = acornPhaseMessage
	case acornPhaseDone:
		panic("acorn128: cipher used after Tag")
	}
}

// pad runs the 256-step padding that closes the associated data (cb = 1) or
// the message (cb = 0).
func (c *Acorn128) pad(cb uint8) {
	for i := 0; i < 256; i++ {
		var m, ca uint8
		if i == 0 {
			m = 1
		}
		if i < 128 {
			ca = 1
		}
		c.update(m, ca, cb)
	}
}

// update clocks the state with input bit m and returns the keystream bit.
func (c *Acorn128) update(m, ca, cb uint8) uint8 {
	ks, f := c.clock(ca, cb)
	c.s[acornStateBits-1] = f ^ m
	return ks
}

// clock runs the linear feedback, computes the keystream and feedback bits,
// and shifts the state. The caller sets the last state bit.
func (c *Acorn128) clock(ca, cb uint8) (ks, f uint8) {
	s := &c.s
	s[289] ^= s[235] ^ s[230]
	s[230] ^= s[196] ^ s[193]
	s[193] ^= s[160] ^ s[154]
	s[154] ^= s[111] ^ s[107]
	s[107] ^= s[66] ^ s[61]
	s[61] ^= s[23] ^ s[0]

	ks = s[12] ^ s[154] ^ maj(s[235], s[61], s[193]) ^ ch(s[230], s[111], s[66])
	f = s[0] ^ (s[107] ^ 1) ^ maj(s[244], s[23], s[160]) ^ (ca & s[196]) ^ (cb & ks)

	copy(s[:acornStateBits-1], s[1:])
	return ks, f
}

func maj(x, y, z uint8) uint8 {
	return (x & y) ^ (x & z) ^ (y & z)
}

func ch(x, y, z uint8) uint8 {
	return (x & y) ^ ((x ^ 1) & z)
}

func bit(b []byte, i int) uint8 {
	return (b[i/8] >> (i % 8)) & 1
}

// AcornSeal encrypts plaintext under key and iv, authenticating aad, and
// returns the ciphertext and the full tag.
func AcornSeal(key, iv, aad, plaintext []byte) ([]byte, [AcornTagSize]byte, error) {
	c, err := NewAcorn128(key, iv)
	if err != nil {
		return nil, [AcornTagSize]byte{}, err
	}
	c.AddAuthData(aad)
	ct := make([]byte, len(plaintext))
	c.Encrypt(ct, plaintext)
	return ct, c.Tag(), nil
}

// AcornOpen decrypts ciphertext and verifies tag, which may be truncated.
// No plaintext is returned when verification fails.
func AcornOpen(key, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) == 0 || len(tag) > AcornTagSize {
		return nil, ErrAcornInvalidTagSize
	}
	c, err := NewAcorn128(key, iv)
	if err != nil {
		return nil, err
	}
	c.AddAuthData(aad)
	pt := make([]byte, len(ciphertext))
	c.Decrypt(pt, ciphertext)
	if !c.CheckTag(tag) {
		return nil, ErrAcornAuthFailed
	}
	return pt, nil
}
