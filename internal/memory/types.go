// Package memory implements the two-tier conversation memory: a
// short-term window of recent turns with a TTL, and a long-term
// semantic store searched by embedding similarity. Both tiers are
// keyed by the one-way user hash so raw identity never reaches a
// storage backend.
package memory

import (
	"errors"
	"time"

	"github.com/fitstack/coach/internal/identity"
)

// ErrUnavailable marks a memory backend failure. Callers treat it as
// a soft error: the turn proceeds without the affected tier.
var ErrUnavailable = errors.New("memory backend unavailable")

// Turn is a single utterance in a conversation, either side.
type Turn struct {
	ID        string            `json:"id"`
	UserHash  identity.UserHash `json:"-"`
	Role      string            `json:"role"`
	Text      string            `json:"text"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Record is a long-term memory entry with its embedding vector.
type Record struct {
	ID        string
	UserHash  identity.UserHash
	Text      string
	Vector    []float32
	CreatedAt time.Time
}

// Result is a long-term record scored against a query vector.
type Result struct {
	Record
	Score float32
}

// Source identifies which tier a context entry came from.
type Source string

const (
	SourceShortTerm Source = "short_term"
	SourceLongTerm  Source = "long_term"
)

// Entry is one piece of assembled conversational context.
type Entry struct {
	Source    Source
	Role      string
	Text      string
	CreatedAt time.Time
	Score     float32 // similarity, long-term entries only
}
