package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/mdeck/internal/ident"
	"github.com/starford/mdeck/internal/models"
)

const (
	// SubdeckPrefix marks a deck heading as nested below the current deck.
	SubdeckPrefix = "Subdeck: "
	// Separator splits extra question lines from the answer of a note.
	Separator = "---"
)

var (
	// Group 1: depth markers, group 2: name, group 3: optional numeric id.
	deckHeadingRe = regexp.MustCompile(`^(#+)\s+(.+?)(?:\s+\((\d+)\))?\s*$`)
	// Group 1: depth markers, group 2: question, group 3: optional id.
	noteHeadingRe = regexp.MustCompile(`^(##+)\s+(.+?)(?:\s+\(([^()\s]+?)\))?\s*$`)

	defaultMatcher = Matcher{IDs: ident.Random{}}
)

// DeckHeading is a matched deck heading line.
type DeckHeading struct {
	Deck      *models.Deck
	Title     string // own name segment, without prefix and parent
	Depth     int
	IsSubdeck bool
}

// NoteHeading is a matched note heading line.
type NoteHeading struct {
	Note  models.Note
	Depth int
}

// Matcher classifies single lines as deck or note headings.
type Matcher struct {
	IDs    ident.Generator
	Logger *slog.Logger
}

// MatchDeckHeading classifies line with the default matcher.
func MatchDeckHeading(line, parentName string) (DeckHeading, bool) {
	return defaultMatcher.DeckHeading(line, parentName)
}

// MatchNoteHeading classifies line with the default matcher.
func MatchNoteHeading(line string) (NoteHeading, bool) {
	return defaultMatcher.NoteHeading(line)
}

// DeckHeading reports whether line is a deck heading. The deck name of a
// subdeck heading is built relative to parentName.
func (m Matcher) DeckHeading(line, parentName string) (DeckHeading, bool) {
	g := deckHeadingRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if g == nil {
		return DeckHeading{}, false
	}
	logger := m.logger()
	depth := len(g[1])
	title := g[2]

	isSubdeck := strings.HasPrefix(title, SubdeckPrefix)
	if isSubdeck {
		title = strings.TrimPrefix(title, SubdeckPrefix)
	}
	if strings.Contains(title, models.SubdeckSeparator) && (depth == 1 || isSubdeck) {
		fixed := strings.ReplaceAll(title, models.SubdeckSeparator, ":\u200b:")
		logger.Warn("deck heading contains the subdeck separator, use a "+SubdeckPrefix+"heading instead",
			slog.String("name", title))
		title = fixed
	}

	name := title
	if isSubdeck {
		name = models.JoinName(parentName, title)
	}

	return DeckHeading{
		Deck: &models.Deck{
			Name:  name,
			ID:    m.deckID(g[3]),
			Notes: []models.Note{},
			Tags:  []string{},
		},
		Title:     title,
		Depth:     depth,
		IsSubdeck: isSubdeck,
	}, true
}

// NoteHeading reports whether line is a note heading.
func (m Matcher) NoteHeading(line string) (NoteHeading, bool) {
	g := noteHeadingRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if g == nil {
		return NoteHeading{}, false
	}
	id := g[3]
	if id == "" {
		id = m.ids().NoteID()
	}
	return NoteHeading{
		Note: models.Note{
			ID:       id,
			Question: g[2],
			Tags:     []string{},
		},
		Depth: len(g[1]),
	}, true
}

func (m Matcher) deckID(raw string) int64 {
	if raw == "" {
		return m.ids().DeckID()
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger().Warn("deck id out of range, generating a new one", slog.String("id", raw))
		return m.ids().DeckID()
	}
	return id
}

func (m Matcher) ids() ident.Generator {
	if m.IDs == nil {
		return ident.Random{}
	}
	return m.IDs
}

func (m Matcher) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
