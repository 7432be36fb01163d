package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func init() {
	scryptN = 1 << 10
}

func testIdentity(t *testing.T) *Identity {
	t.Helper()
	seed := bytes.Repeat([]byte{0x42}, 64)
	id, err := Generate(bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return id
}

func TestGenerate(t *testing.T) {
	id := testIdentity(t)
	if id.Server != [3]byte{0x42, 0x42, 0x42} {
		t.Errorf("Server = %x", id.Server)
	}
	if id.Network != [4]byte{0x42, 0x42, 0x42, 0x42} {
		t.Errorf("Network = %x", id.Network)
	}
	if id.Keys == nil {
		t.Fatal("Keys = nil")
	}

	if _, err := Generate(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Error("Generate() with short rand succeeded")
	}
}

func TestMarshalPlain(t *testing.T) {
	id := testIdentity(t)
	b, err := id.Marshal("")
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	addrs, _ := doc["adresses"].(map[string]interface{})
	if addrs["serveur"] != "424242" || addrs["reseau"] != "42424242" {
		t.Errorf("adresses = %v", addrs)
	}
	if _, ok := doc["cle_privee"].(string); !ok {
		t.Errorf("cle_privee missing in %s", b)
	}

	back, err := Unmarshal(b, "ignored")
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.PublicKey() != id.PublicKey() || back.Server != id.Server || back.Network != id.Network {
		t.Errorf("Unmarshal() = %s, want %s", back, id)
	}
}

func TestMarshalSealed(t *testing.T) {
	id := testIdentity(t)
	b, err := id.Marshal("correct horse")
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(b), "cle_privee\"") {
		t.Errorf("sealed identity contains a plain key: %s", b)
	}

	back, err := Unmarshal(b, "correct horse")
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.PublicKey() != id.PublicKey() {
		t.Error("sealed round trip changed the key")
	}

	if _, err := Unmarshal(b, ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("Unmarshal() without passphrase error = %v, want %v", err, ErrPassphraseRequired)
	}
	if _, err := Unmarshal(b, "battery staple"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Unmarshal() wrong passphrase error = %v, want %v", err, ErrWrongPassphrase)
	}

	// The addresses are bound to the sealed key.
	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatal(err)
	}
	f.Addresses.Server = "000000"
	tampered, _ := json.Marshal(&f)
	if _, err := Unmarshal(tampered, "correct horse"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Unmarshal() tampered error = %v, want %v", err, ErrWrongPassphrase)
	}

	f.Addresses.Server = "424242"
	f.Sealed.Version = sealedVersion + 1
	future, _ := json.Marshal(&f)
	if _, err := Unmarshal(future, "correct horse"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Unmarshal() future version error = %v, want %v", err, ErrUnsupportedVersion)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "{"},
		{"short server", `{"adresses":{"serveur":"4242","reseau":"42424242"},"cle_privee":"00"}`},
		{"bad network", `{"adresses":{"serveur":"424242","reseau":"zz"},"cle_privee":"00"}`},
		{"no key", `{"adresses":{"serveur":"424242","reseau":"42424242"}}`},
		{"short key", `{"adresses":{"serveur":"424242","reseau":"42424242"},"cle_privee":"0102"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tt.doc), ""); !errors.Is(err, ErrMalformed) {
				t.Errorf("Unmarshal() error = %v, want %v", err, ErrMalformed)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	if _, err := Load(path, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want %v", err, ErrNotFound)
	}

	first, created, err := LoadOrCreate(path, "")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if !created {
		t.Error("first LoadOrCreate() did not create")
	}

	second, created, err := LoadOrCreate(path, "")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if created {
		t.Error("second LoadOrCreate() created a new identity")
	}
	if second.PublicKey() != first.PublicKey() || second.Server != first.Server {
		t.Error("reloaded identity differs")
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", st.Mode().Perm())
	}
}

func TestLoadOrCreateKeepsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadOrCreate(path, ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("LoadOrCreate() error = %v, want %v", err, ErrMalformed)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "{" {
		t.Error("LoadOrCreate() overwrote an unreadable identity")
	}
}
