package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ID is a 32-byte SHA-256 digest.
type ID [32]byte

// Empty is the zero-value ID (all zeros)
var Empty ID

// NewID hashes data into an ID.
func NewID(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// FromString parses a 64-character hex string into an ID.
func FromString(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String converts an ID back to a hex string
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the Empty ID.
func (id ID) IsZero() bool {
	return id == Empty
}

// Bytes returns a copy of the digest bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}
