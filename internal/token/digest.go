// Package token derives log-safe digests from auth tokens and api keys.
package token

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Digest returns a short stable digest of a secret token.
//
// Raw tokens group sibling clients and authorize REST calls, so they must
// never reach logs, metric labels, or Redis key names. The digest is stable
// across instances (no seed), which is what lets presence keys derived from
// it match fleet-wide.
//
// xxh3 is not a password hash; the digest only has to be non-reversible
// enough for operational output, and collisions across the handful of
// tokens in one deployment are not a practical concern.
//
// Parameters:
//   - secret: Raw token or api key
//
// Returns:
//   - string: 16 hex characters derived from the 64-bit xxh3 sum
func Digest(secret string) string {
	sum := xxh3.HashString(secret)

	var buf [8]byte
	buf[0] = byte(sum >> 56)
	buf[1] = byte(sum >> 48)
	buf[2] = byte(sum >> 40)
	buf[3] = byte(sum >> 32)
	buf[4] = byte(sum >> 24)
	buf[5] = byte(sum >> 16)
	buf[6] = byte(sum >> 8)
	buf[7] = byte(sum)

	return hex.EncodeToString(buf[:])
}
