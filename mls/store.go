package mls

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

// snapshot is the full persisted state of a client.
type snapshot struct {
	InboxID           string          `cbor:"1,keyasint"`
	AccountIdentifier string          `cbor:"2,keyasint"`
	IdentifierKind    IdentifierKind  `cbor:"3,keyasint"`
	InstallationSeed  []byte          `cbor:"4,keyasint"`
	Registered        bool            `cbor:"5,keyasint"`
	Groups            []groupSnapshot `cbor:"6,keyasint"`
	Consent           []ConsentRecord `cbor:"7,keyasint"`
	WelcomeCursor     uint64          `cbor:"8,keyasint"`
}

// groupSnapshot is the persisted form of one conversation.
type groupSnapshot struct {
	ID             string           `cbor:"1,keyasint"`
	Type           ConversationType `cbor:"2,keyasint"`
	CreatedAtNs    int64            `cbor:"3,keyasint"`
	CreatorInboxID string           `cbor:"4,keyasint"`
	AddedByInboxID string           `cbor:"5,keyasint"`
	Name           string           `cbor:"6,keyasint"`
	Description    string           `cbor:"7,keyasint"`
	ImageURL       string           `cbor:"8,keyasint"`
	Members        []GroupMember    `cbor:"9,keyasint"`
	Messages       []StoredMessage  `cbor:"10,keyasint"`
	MessageCursor  uint64           `cbor:"11,keyasint"`
	Active         bool             `cbor:"12,keyasint"`
}

const storeNonceSize = 24

// Store persists client state as a CBOR snapshot, optionally sealed with a
// 32-byte secretbox key. An empty path makes the store ephemeral.
type Store struct {
	path string
	key  *[32]byte
}

// OpenStore prepares a store at path. key must be nil or exactly 32 bytes.
func OpenStore(path string, key []byte) (*Store, error) {
	s := &Store{path: path}
	if key != nil {
		if len(key) != 32 {
			return nil, fmt.Errorf("open store: encryption key must be 32 bytes, got %d", len(key))
		}
		s.key = new([32]byte)
		copy(s.key[:], key)
	}
	return s, nil
}

// Ephemeral reports whether the store writes nothing to disk.
func (s *Store) Ephemeral() bool { return s.path == "" }

// Load reads the snapshot from disk. Returns (nil, nil) when the store is
// ephemeral or the file does not exist yet.
func (s *Store) Load() (*snapshot, error) {
	if s.path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	if s.key != nil {
		if len(raw) < storeNonceSize {
			return nil, fmt.Errorf("load store: ciphertext shorter than nonce")
		}
		var nonce [storeNonceSize]byte
		copy(nonce[:], raw[:storeNonceSize])
		plain, ok := secretbox.Open(nil, raw[storeNonceSize:], &nonce, s.key)
		if !ok {
			return nil, fmt.Errorf("load store: decryption failed (wrong key?)")
		}
		raw = plain
	}
	var snap snapshot
	if err := cbor.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("load store: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot to disk, replacing the previous one atomically so
// a crash mid-write cannot leave a torn file. A no-op for ephemeral stores.
func (s *Store) Save(snap *snapshot) error {
	if s.path == "" {
		return nil
	}
	raw, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save store: encode snapshot: %w", err)
	}
	if s.key != nil {
		var nonce [storeNonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("save store: nonce: %w", err)
		}
		raw = secretbox.Seal(nonce[:], raw, &nonce, s.key)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save store: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Store.Save",
		"path":     s.path,
		"bytes":    len(raw),
	}).Debug("Persisted client snapshot")
	return nil
}
