// Package checksum computes the content digests used to detect changed documents.
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

// Match reports whether want is empty or equals the digest of data.
// An empty want disables the check, as an absent If-Match header does.
func Match(data []byte, want string) bool {
	return want == "" || want == Sum(data)
}
