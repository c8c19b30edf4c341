package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Fingerprint identifies the content of a published score table. Two
// recomputations over unchanged inputs must produce equal fingerprints.
type Fingerprint Hash

// NewFingerprint hashes a canonical encoding of a score table
func NewFingerprint(data []byte) Fingerprint { return Fingerprint(NewHash(data)) }

func (f Fingerprint) String() string            { return Hash(f).String() }
func (f Fingerprint) IsEmpty() bool             { return Hash(f).IsEmpty() }
func (f Fingerprint) Equals(o Fingerprint) bool { return Hash(f).Equals(Hash(o)) }
