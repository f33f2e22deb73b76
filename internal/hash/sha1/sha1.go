// Package sha1 provides the short SHA-1 digest used as the content hash for
// archived assets. The source site identifies page content by the first ten
// hex characters of the SHA-1 of the original file, so the same truncation is
// used here to keep digests comparable with the hashes embedded in page URLs.
package sha1

import (
	"crypto/sha1" //nolint:gosec // content addressing, not authentication
	"encoding/hex"
)

// DigestLen is the number of hex characters kept from the full digest.
const DigestLen = 10

// Hasher implements gallery.Hasher with truncated SHA-1.
type Hasher struct{}

// New returns a truncated SHA-1 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash digests the input and returns the first DigestLen hex characters.
func (h *Hasher) Hash(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])[:DigestLen]
}
