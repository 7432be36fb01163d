package registry

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/backkem/rf24relay/pkg/atomicfile"
	"github.com/backkem/rf24relay/pkg/frame"
)

// FileStorage persists the table as a JSON object keyed by hex UUID:
//
//	{"0102...10": {"node_id": 2, "cle_publique": "...", "iv": "...", "iv_candidat": "..."}}
//
// Writes go to a temporary file in the same directory which then replaces
// the target, so a crash never leaves a partial table behind.
type FileStorage struct {
	mu   sync.Mutex
	path string
	mode os.FileMode
}

type fileRecord struct {
	NodeID      uint8  `json:"node_id"`
	PublicKey   string `json:"cle_publique,omitempty"`
	IV          string `json:"iv,omitempty"`
	IVCandidate string `json:"iv_candidat,omitempty"`
}

// NewFileStorage creates a storage backed by path. The file is created on
// the first Save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path, mode: 0o600}
}

// Path returns the table file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Load reads the table. A missing file is an empty table.
func (s *FileStorage) Load() ([]*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records map[string]fileRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	out := make([]*Device, 0, len(records))
	for key, rec := range records {
		uuid, err := frame.ParseUUID(key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
		d := &Device{UUID: uuid, Address: frame.Address(rec.NodeID)}
		if d.PublicKey, err = decodeHex(rec.PublicKey); err != nil {
			return nil, fmt.Errorf("%s: device %s public key: %w", s.path, key, err)
		}
		if d.IV, err = decodeHex(rec.IV); err != nil {
			return nil, fmt.Errorf("%s: device %s iv: %w", s.path, key, err)
		}
		if d.IVCandidate, err = decodeHex(rec.IVCandidate); err != nil {
			return nil, fmt.Errorf("%s: device %s iv candidate: %w", s.path, key, err)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].UUID[:], out[j].UUID[:]) < 0 })
	return out, nil
}

// Save writes the full table.
func (s *FileStorage) Save(devices []*Device) error {
	records := make(map[string]fileRecord, len(devices))
	for _, d := range devices {
		records[d.UUID.String()] = fileRecord{
			NodeID:      uint8(d.Address),
			PublicKey:   hex.EncodeToString(d.PublicKey),
			IV:          hex.EncodeToString(d.IV),
			IVCandidate: hex.EncodeToString(d.IVCandidate),
		}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicfile.Write(s.path, b, s.mode)
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
