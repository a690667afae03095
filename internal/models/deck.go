// Package models defines the domain types for mdeck.
package models

import (
	"slices"
	"strings"
	"time"
)

// SubdeckSeparator joins the name segments of nested decks: Parent::Child.
const SubdeckSeparator = "::"

// Deck is a named collection of notes parsed from a Markdown heading.
type Deck struct {
	Name          string   `json:"name" yaml:"name"`
	ID            int64    `json:"id" yaml:"id"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Notes         []Note   `json:"notes" yaml:"notes"`
	Tags          []string `json:"tags" yaml:"tags"`
	DocumentOrder int      `json:"document_order" yaml:"document_order"`
	FileDirs      []string `json:"-" yaml:"-"`
}

// Note is a single question/answer card.
type Note struct {
	ID       string   `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Answer   string   `json:"answer" yaml:"answer"`
	Tags     []string `json:"tags" yaml:"tags"`
}

// Segments splits the deck name into its ancestry path.
func (d *Deck) Segments() []string {
	return strings.Split(d.Name, SubdeckSeparator)
}

// Depth returns the nesting level of the deck, 1 for a root deck.
func (d *Deck) Depth() int {
	return len(d.Segments())
}

// Clone returns a copy of the deck without notes. Slices are copied so the
// clone can be mutated independently.
func (d *Deck) Clone() *Deck {
	return &Deck{
		Name:          d.Name,
		ID:            d.ID,
		Description:   d.Description,
		Notes:         []Note{},
		Tags:          slices.Clone(d.Tags),
		DocumentOrder: d.DocumentOrder,
		FileDirs:      slices.Clone(d.FileDirs),
	}
}

// JoinName builds the full name of a subdeck below parent.
func JoinName(parent, title string) string {
	if parent == "" {
		return title
	}
	return parent + SubdeckSeparator + title
}

// MergeTags returns the sorted union of the given tag sets.
func MergeTags(sets ...[]string) []string {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make([]string, 0, n)
	for _, s := range sets {
		out = append(out, s...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// HasTags reports whether every tag of sub is contained in set.
func HasTags(set, sub []string) bool {
	for _, t := range sub {
		if !slices.Contains(set, t) {
			return false
		}
	}
	return true
}

// DocumentSummary describes one indexed Markdown document.
type DocumentSummary struct {
	Path       string `json:"path"`
	Checksum   string `json:"checksum"`
	DeckCount  int    `json:"deck_count"`
	NoteCount  int    `json:"note_count"`
	ParseError string `json:"parse_error,omitempty"`
}

// DocumentMetadata is a lightweight representation returned by storage list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
