package utils

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashContent computes the BLAKE3 digest of asset bytes, hex encoded.
// Asset registry keys and capture identities are derived from it so
// that identical content always maps to the same key.
func HashContent(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is HashContent over a string without an extra copy at
// the call site.
func HashString(s string) string {
	return HashContent([]byte(s))
}
