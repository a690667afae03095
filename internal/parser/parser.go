// Package parser turns a Markdown document into a list of flashcard decks.
//
// Level-one headings (or the configured initial depth) open the root deck,
// "Subdeck: " headings one level deeper open nested decks, and every other
// deeper heading starts a note whose body is its answer. A line holding only
// "---" moves the text read so far into the question.
package parser

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/starford/mdeck/internal/ident"
	"github.com/starford/mdeck/internal/markup"
	"github.com/starford/mdeck/internal/models"
)

type state int

const (
	stateSeekingRoot state = iota
	stateInsideDeck
	stateNoteQuestion
	stateNoteAnswer
)

func (s state) String() string {
	switch s {
	case stateSeekingRoot:
		return "seeking_root"
	case stateInsideDeck:
		return "inside_deck"
	case stateNoteQuestion:
		return "note_question"
	case stateNoteAnswer:
		return "note_answer"
	}
	return "unknown"
}

// Option configures a parse.
type Option func(*options)

type options struct {
	initialDepth int
	ids          ident.Generator
	logger       *slog.Logger
	fileDirs     []string
}

// WithInitialHeadingDepth sets the heading depth of the root deck. Values
// below 1 are ignored.
func WithInitialHeadingDepth(depth int) Option {
	return func(o *options) {
		if depth >= 1 {
			o.initialDepth = depth
		}
	}
}

// WithIDGenerator sets the generator used for headings without an id.
func WithIDGenerator(g ident.Generator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithLogger sets the logger for advisory warnings and debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFileDirs adds directories searched for assets referenced by the notes.
func WithFileDirs(dirs ...string) Option {
	return func(o *options) {
		o.fileDirs = append(o.fileDirs, dirs...)
	}
}

// openDeck is one stack slot. The slot owns its deck until the deck is
// closed and moved to the output.
type openDeck struct {
	deck   *models.Deck
	title  string
	parent int // index of the parent slot, -1 for the root
}

// Scanner is the line-by-line state machine of a single parse.
// It must not be reused after Finish.
type Scanner struct {
	opts    options
	matcher Matcher
	logger  *slog.Logger

	state      state
	stack      []openDeck
	closed     []*models.Deck
	blankLines int
	nextOrder  int
	line       int
}

// NewScanner creates a Scanner in the root seeking state.
func NewScanner(opts ...Option) *Scanner {
	o := options{
		initialDepth: 1,
		ids:          ident.Random{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scanner{
		opts:    o,
		matcher: Matcher{IDs: o.ids, Logger: o.logger},
		logger:  o.logger,
	}
}

// InitialHeadingDepth returns the heading depth of the root deck.
func (s *Scanner) InitialHeadingDepth() int {
	return s.opts.initialDepth
}

// Parse reads r line by line and returns the decks in document order.
func Parse(r io.Reader, opts ...Option) ([]models.Deck, error) {
	s := NewScanner(opts...)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if stepErr := s.Step(line); stepErr != nil {
				return nil, stepErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return s.Finish()
}

// ParseString parses a whole document held in memory.
func ParseString(doc string, opts ...Option) ([]models.Deck, error) {
	return Parse(strings.NewReader(doc), opts...)
}

// ParseLines parses an already split line sequence. Lines may or may not
// carry their trailing newline.
func ParseLines(lines iter.Seq[string], opts ...Option) ([]models.Deck, error) {
	s := NewScanner(opts...)
	for line := range lines {
		if err := s.Step(line); err != nil {
			return nil, err
		}
	}
	return s.Finish()
}

// Step consumes one line.
func (s *Scanner) Step(line string) error {
	s.line++
	text := strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(text)

	if trimmed == "" {
		s.blankLines++
		return nil
	}
	if s.state == stateSeekingRoot {
		return s.seekRoot(text)
	}

	top := s.stack[len(s.stack)-1].deck
	if h, ok := s.matcher.DeckHeading(text, top.Name); ok && h.IsSubdeck {
		return s.openSubdeck(h, text)
	}
	if h, ok := s.matcher.NoteHeading(text); ok {
		return s.openNote(h, text)
	}

	switch s.state {
	case stateInsideDeck:
		top.Description += s.take(text)
	case stateNoteQuestion:
		note := &top.Notes[len(top.Notes)-1]
		if trimmed == Separator {
			note.Question = strings.TrimRight(note.Question, " \t\r\n") + "\n\n" + strings.TrimLeft(note.Answer, " \t\r\n")
			note.Answer = ""
			s.blankLines = 0
			s.state = stateNoteAnswer
			s.logger.Debug("parser: question separator", slog.Int("line", s.line), slog.String("note", note.ID))
			return nil
		}
		note.Answer += s.take(text)
	case stateNoteAnswer:
		note := &top.Notes[len(top.Notes)-1]
		if trimmed == Separator {
			s.logger.Warn("repeated question separator kept as answer text",
				slog.Int("line", s.line),
				slog.String("note", note.ID))
		}
		note.Answer += s.take(text)
	}
	return nil
}

// Finish flushes the open decks and returns the finalized deck list.
func (s *Scanner) Finish() ([]models.Deck, error) {
	if s.state == stateSeekingRoot {
		return nil, &StructureError{
			Err:      ErrNoDeckFound,
			Line:     s.line,
			MinDepth: s.opts.initialDepth,
			MaxDepth: s.opts.initialDepth,
		}
	}
	for i := range s.stack {
		s.closed = append(s.closed, s.stack[i].deck)
		s.stack[i] = openDeck{}
	}
	s.stack = nil

	decks := finalize(s.closed, s.opts.fileDirs, s.logger)
	s.closed = nil
	s.logger.Debug("parser: done", slog.Int("lines", s.line), slog.Int("decks", len(decks)))
	return decks, nil
}

func (s *Scanner) seekRoot(text string) error {
	h, ok := s.matcher.DeckHeading(text, "")
	if !ok {
		return nil
	}
	if h.Depth != s.opts.initialDepth {
		s.logger.Warn("ignoring deck heading outside the initial depth",
			slog.Int("line", s.line),
			slog.String("name", h.Deck.Name),
			slog.Int("depth", h.Depth),
			slog.Int("initial_depth", s.opts.initialDepth))
		return nil
	}
	if h.IsSubdeck {
		return &StructureError{
			Err:      ErrRootDeckIsSubdeck,
			Line:     s.line,
			Text:     text,
			Depth:    h.Depth,
			MinDepth: s.opts.initialDepth,
			MaxDepth: s.opts.initialDepth,
		}
	}
	s.push(h.Deck, h.Title, -1)
	s.state = stateInsideDeck
	return nil
}

func (s *Scanner) openSubdeck(h DeckHeading, text string) error {
	// After closing deeper decks the stack must hold exactly the ancestors.
	want := h.Depth - s.opts.initialDepth
	if want < 1 || want > len(s.stack) {
		return &StructureError{
			Err:      ErrUnexpectedSubdeckDepth,
			Line:     s.line,
			Text:     text,
			Depth:    h.Depth,
			MinDepth: s.opts.initialDepth + 1,
			MaxDepth: len(s.stack) + s.opts.initialDepth,
		}
	}
	for len(s.stack) > want {
		s.close()
	}

	parent := len(s.stack) - 1
	parentDeck := s.stack[parent].deck
	h.Deck.Name = models.JoinName(parentDeck.Name, h.Title)
	h.Deck.Tags = models.MergeTags(h.Deck.Tags, s.resolvedTags(parentDeck))

	s.push(h.Deck, h.Title, parent)
	s.state = stateInsideDeck
	return nil
}

func (s *Scanner) openNote(h NoteHeading, text string) error {
	lo, hi := s.opts.initialDepth+1, len(s.stack)+s.opts.initialDepth
	if h.Depth < lo || h.Depth > hi {
		return &StructureError{
			Err:      ErrUnexpectedNoteDepth,
			Line:     s.line,
			Text:     text,
			Depth:    h.Depth,
			MinDepth: lo,
			MaxDepth: hi,
		}
	}

	want := h.Depth - s.opts.initialDepth
	if len(s.stack) > want {
		for len(s.stack) > want {
			s.close()
		}
		// The owning deck was interrupted by a subdeck: close it and continue
		// in a fresh fragment so the output keeps the reading order.
		slot := s.stack[len(s.stack)-1]
		s.close()
		s.push(slot.deck.Clone(), slot.title, slot.parent)
	}

	top := s.stack[len(s.stack)-1].deck
	top.Notes = append(top.Notes, h.Note)
	s.blankLines = 0
	s.state = stateNoteQuestion
	s.logger.Debug("parser: note",
		slog.Int("line", s.line),
		slog.String("deck", top.Name),
		slog.String("note", h.Note.ID))
	return nil
}

func (s *Scanner) push(d *models.Deck, title string, parent int) {
	d.DocumentOrder = s.nextOrder
	s.nextOrder++
	s.stack = append(s.stack, openDeck{deck: d, title: title, parent: parent})
	s.blankLines = 0
	s.logger.Debug("parser: open deck",
		slog.Int("line", s.line),
		slog.String("deck", d.Name),
		slog.Int("order", d.DocumentOrder))
}

// close moves the innermost open deck to the output.
func (s *Scanner) close() {
	last := len(s.stack) - 1
	d := s.stack[last].deck
	s.stack[last] = openDeck{}
	s.stack = s.stack[:last]
	s.closed = append(s.closed, d)
	s.logger.Debug("parser: close deck", slog.Int("line", s.line), slog.String("deck", d.Name))
}

// take returns text prefixed with the pending blank lines and resets the counter.
func (s *Scanner) take(text string) string {
	out := strings.Repeat("\n", s.blankLines) + text + "\n"
	s.blankLines = 0
	return out
}

// resolvedTags returns the deck's own tags plus the tags declared in its
// description so far.
func (s *Scanner) resolvedTags(d *models.Deck) []string {
	return models.MergeTags(d.Tags, markup.Tags(s.logger, d.Description))
}
