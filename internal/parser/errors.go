package parser

import (
	"errors"
	"fmt"
)

// Structural errors. A parse that hits one of them returns no decks.
var (
	ErrNoDeckFound            = errors.New("no deck found")
	ErrRootDeckIsSubdeck      = errors.New("root deck heading cannot be a subdeck")
	ErrUnexpectedNoteDepth    = errors.New("unexpected note depth")
	ErrUnexpectedSubdeckDepth = errors.New("unexpected subdeck depth")
)

// StructureError carries the position and depth details of a structural error.
type StructureError struct {
	Err      error
	Line     int // 1-based line number, or the number of lines read for ErrNoDeckFound
	Text     string
	Depth    int
	MinDepth int
	MaxDepth int
}

func (e *StructureError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNoDeckFound):
		return fmt.Sprintf("parser: %v: no deck heading of depth %d in %d lines", e.Err, e.MinDepth, e.Line)
	case errors.Is(e.Err, ErrRootDeckIsSubdeck):
		return fmt.Sprintf("parser: line %d: %v: %q", e.Line, e.Err, e.Text)
	default:
		return fmt.Sprintf("parser: line %d: %v %d, expected %d..%d: %q",
			e.Line, e.Err, e.Depth, e.MinDepth, e.MaxDepth, e.Text)
	}
}

func (e *StructureError) Unwrap() error {
	return e.Err
}
