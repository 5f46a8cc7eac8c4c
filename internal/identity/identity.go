// Package identity derives the opaque per-user hash that scopes all
// memory operations. The derivation is one-way: the raw identity token
// is hashed once at the API boundary and never stored or logged.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLen is the length in hex characters of a user hash.
const HashLen = 64

// UserHash is a one-way, deterministic derivation of a raw account
// identifier. Two hashes are equal iff the raw identifiers were equal.
type UserHash string

// Hash derives the user hash for a raw identity token.
func Hash(token string) UserHash {
	sum := sha256.Sum256([]byte(token))
	return UserHash(hex.EncodeToString(sum[:]))
}

// Valid reports whether h looks like a well-formed user hash. It guards
// store operations against accidentally receiving a raw identifier.
func (h UserHash) Valid() bool {
	if len(h) != HashLen {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Short returns a log-safe prefix of the hash. Long enough to correlate
// log lines, short enough to keep output readable.
func (h UserHash) Short() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h[:8])
}
