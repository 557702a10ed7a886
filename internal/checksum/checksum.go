// Package checksum fingerprints note bodies so a draft can be compared with
// what was last persisted.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Text is Sum for a string body.
func Text(s string) string {
	return Sum([]byte(s))
}
