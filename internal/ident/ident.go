// Package ident generates deck and note identifiers for headings without an explicit id.
package ident

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces fresh identifiers.
type Generator interface {
	DeckID() int64
	NoteID() string
}

// Random generates 32-bit deck ids and UUIDv4 note ids.
type Random struct{}

// DeckID returns a random non-negative 32-bit id.
func (Random) DeckID() int64 {
	return int64(rand.Uint32())
}

// NoteID returns a random UUID string.
func (Random) NoteID() string {
	return uuid.NewString()
}

// Sequence generates predictable ids starting at 1. Safe for concurrent use.
type Sequence struct {
	next atomic.Int64
}

// DeckID returns the next number of the sequence.
func (s *Sequence) DeckID() int64 {
	return s.next.Add(1)
}

// NoteID returns the next number of the sequence formatted as "note-N".
func (s *Sequence) NoteID() string {
	return fmt.Sprintf("note-%d", s.next.Add(1))
}

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mdeck"))

// Derived generates ids from a seed and the call order. Parsing the same
// document with the same seed yields the same ids. Safe for concurrent use.
type Derived struct {
	seed  string
	decks atomic.Int64
	notes atomic.Int64
}

// NewDerived returns a generator seeded with seed, usually a document path.
func NewDerived(seed string) *Derived {
	return &Derived{seed: seed}
}

// DeckID returns a non-negative 32-bit id derived from the seed.
func (d *Derived) DeckID() int64 {
	u := uuid.NewSHA1(namespace, fmt.Appendf(nil, "%s#deck-%d", d.seed, d.decks.Add(1)))
	return int64(binary.BigEndian.Uint32(u[:4]))
}

// NoteID returns a name-based (SHA-1) UUID derived from the seed.
func (d *Derived) NoteID() string {
	return uuid.NewSHA1(namespace, fmt.Appendf(nil, "%s#note-%d", d.seed, d.notes.Add(1))).String()
}

var (
	_ Generator = Random{}
	_ Generator = (*Sequence)(nil)
	_ Generator = (*Derived)(nil)
)
