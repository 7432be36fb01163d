package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/backkem/rf24relay/pkg/atomicfile"
	"github.com/backkem/rf24relay/pkg/crypto"
	"github.com/backkem/rf24relay/pkg/frame"
)

// Identity is the relay's radio identity.
type Identity struct {
	Server  [frame.ServerAddressSize]byte
	Network [frame.NetworkAddressSize]byte
	Keys    *crypto.X25519KeyPair
}

// Generate creates a random identity. A nil rand uses crypto/rand.
func Generate(r io.Reader) (*Identity, error) {
	if r == nil {
		r = rand.Reader
	}
	id := &Identity{}
	if _, err := io.ReadFull(r, id.Server[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, id.Network[:]); err != nil {
		return nil, err
	}
	keys, err := crypto.X25519GenerateKeyPair(r)
	if err != nil {
		return nil, err
	}
	id.Keys = keys
	return id, nil
}

// file is the on-disk layout. Exactly one of PrivateKey and Sealed is set.
type file struct {
	Addresses struct {
		Server  string `json:"serveur"`
		Network string `json:"reseau"`
	} `json:"adresses"`
	PrivateKey string  `json:"cle_privee,omitempty"`
	Sealed     *sealed `json:"cle_privee_scellee,omitempty"`
}

// Marshal encodes the identity. A non-empty passphrase seals the private key.
func (id *Identity) Marshal(passphrase string) ([]byte, error) {
	var f file
	f.Addresses.Server = hex.EncodeToString(id.Server[:])
	f.Addresses.Network = hex.EncodeToString(id.Network[:])

	priv := id.Keys.PrivateKey()
	if passphrase == "" {
		f.PrivateKey = hex.EncodeToString(priv)
	} else {
		s, err := seal(passphrase, priv, id.Server[:])
		if err != nil {
			return nil, err
		}
		f.Sealed = s
	}
	return json.MarshalIndent(&f, "", "  ")
}

// Unmarshal decodes an identity. The passphrase is only used when the
// private key is sealed.
func Unmarshal(b []byte, passphrase string) (*Identity, error) {
	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id := &Identity{}
	if err := decodeFixed(id.Server[:], f.Addresses.Server); err != nil {
		return nil, fmt.Errorf("%w: server address: %v", ErrMalformed, err)
	}
	if err := decodeFixed(id.Network[:], f.Addresses.Network); err != nil {
		return nil, fmt.Errorf("%w: network address: %v", ErrMalformed, err)
	}

	var priv []byte
	switch {
	case f.Sealed != nil:
		if passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		var err error
		if priv, err = open(passphrase, f.Sealed, id.Server[:]); err != nil {
			return nil, err
		}
	case f.PrivateKey != "":
		var err error
		if priv, err = hex.DecodeString(f.PrivateKey); err != nil {
			return nil, fmt.Errorf("%w: private key: %v", ErrMalformed, err)
		}
	default:
		return nil, fmt.Errorf("%w: no private key", ErrMalformed)
	}

	keys, err := crypto.X25519KeyPairFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrMalformed, err)
	}
	id.Keys = keys
	return id, nil
}

// Load reads the identity at path.
func Load(path, passphrase string) (*Identity, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	id, err := Unmarshal(b, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return id, nil
}

// Save writes the identity to path with mode 0600.
func (id *Identity) Save(path, passphrase string) error {
	b, err := id.Marshal(passphrase)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, b, 0o600)
}

// LoadOrCreate loads the identity at path, generating and saving a new one
// when the file does not exist. created reports whether it was generated.
func LoadOrCreate(path, passphrase string) (id *Identity, created bool, err error) {
	id, err = Load(path, passphrase)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return id, false, err
	}

	if id, err = Generate(nil); err != nil {
		return nil, false, err
	}
	if err = id.Save(path, passphrase); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// PublicKey returns the X25519 public key.
func (id *Identity) PublicKey() [crypto.X25519KeySize]byte {
	return id.Keys.PublicKey()
}

// String returns the addresses and public key in hex.
func (id *Identity) String() string {
	pub := id.PublicKey()
	return fmt.Sprintf("server=%x network=%x public_key=%x", id.Server, id.Network, pub)
}

func decodeFixed(dst []byte, s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("length %d, want %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}
