// Package ids generates the raw hex identifiers used on the wire
// protocol: file ids and owner tokens. These are deliberately plain
// crypto/rand hex strings rather than google/uuid values -- the wire
// format fixes their lengths (16 hex characters for a file id, 20 for
// an owner token) and a UUID's dashes and version/variant bits don't
// fit that contract.
package ids

import (
	"crypto/rand"
	"encoding/hex"
)

// FileIDBytes is the number of random bytes backing a file id (16 hex
// characters).
const FileIDBytes = 8

// OwnerTokenBytes is the number of random bytes backing an owner token
// (20 hex characters).
const OwnerTokenBytes = 10

// NewFileID returns a new random file id.
func NewFileID() (string, error) {
	return newHexID(FileIDBytes)
}

// NewOwnerToken returns a new random owner token.
func NewOwnerToken() (string, error) {
	return newHexID(OwnerTokenBytes)
}

func newHexID(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
