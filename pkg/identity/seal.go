package identity

import (
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const sealedVersion = 1

// scrypt cost parameters for new sealed keys. Tests lower scryptN.
var (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// sealed is a passphrase-protected private key. The key is derived with
// scrypt from the passphrase and a random salt, so the fixed zero nonce is
// never reused under one key.
type sealed struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	N       int    `json:"scrypt_n"`
	R       int    `json:"scrypt_r"`
	P       int    `json:"scrypt_p"`
	Cipher  []byte `json:"cipher"`
}

func seal(passphrase string, priv, aad []byte) (*sealed, error) {
	s := &sealed{Version: sealedVersion, Salt: make([]byte, 16), N: scryptN, R: scryptR, P: scryptP}
	if _, err := rand.Read(s.Salt); err != nil {
		return nil, err
	}
	aead, err := s.aead(passphrase)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	s.Cipher = aead.Seal(nil, nonce, priv, append(s.Salt[:len(s.Salt):len(s.Salt)], aad...))
	return s, nil
}

func open(passphrase string, s *sealed, aad []byte) ([]byte, error) {
	if s.Version > sealedVersion {
		return nil, ErrUnsupportedVersion
	}
	aead, err := s.aead(passphrase)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	priv, err := aead.Open(nil, nonce, s.Cipher, append(s.Salt[:len(s.Salt):len(s.Salt)], aad...))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return priv, nil
}

func (s *sealed) aead(passphrase string) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), s.Salt, s.N, s.R, s.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, ErrMalformed
	}
	return chacha20poly1305.New(key)
}
