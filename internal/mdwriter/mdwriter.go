// Package mdwriter renders parsed decks back into a single Markdown document
// that the parser reads to the same deck tree.
package mdwriter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/starford/mdeck/internal/markup"
	"github.com/starford/mdeck/internal/models"
	"github.com/starford/mdeck/internal/parser"
)

// Option configures the writer.
type Option func(*options)

type options struct {
	initialDepth int
	withoutIDs   bool
	assetDir     string
	rewrite      bool
}

// WithInitialHeadingDepth sets the heading depth of root decks. Values below
// 1 are ignored.
func WithInitialHeadingDepth(depth int) Option {
	return func(o *options) {
		if depth >= 1 {
			o.initialDepth = depth
		}
	}
}

// WithoutIDs omits the "(id)" suffix of deck and note headings.
func WithoutIDs() Option {
	return func(o *options) { o.withoutIDs = true }
}

// WithAssetDir rewrites local image paths of notes to dir/<file name>.
func WithAssetDir(dir string) Option {
	return func(o *options) {
		o.assetDir = dir
		o.rewrite = true
	}
}

// section is one written heading of the current heading path.
type section struct {
	name        string
	id          int64
	description string
}

// Write merges decks into one Markdown document. A deck whose heading path,
// id and description repeat the open heading path is not given a new heading,
// so deck fragments split by subdecks merge back under one heading.
func Write(w io.Writer, decks []models.Deck, opts ...Option) error {
	o := options{initialDepth: 1}
	for _, opt := range opts {
		opt(&o)
	}

	var b strings.Builder
	var open []section
	first := true
	for i := range decks {
		d := &decks[i]
		segments := d.Segments()
		depth := len(segments)

		if !continues(open, segments, d) {
			if !first {
				b.WriteString("\n")
			}
			first = false
			writeDeckHeading(&b, d, segments, o)
			open = nextPath(open, segments, d)
		}
		for _, n := range d.Notes {
			b.WriteString("\n")
			writeNote(&b, n, depth+o.initialDepth, o)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("mdwriter: write: %w", err)
	}
	return nil
}

// String renders decks to a string.
func String(decks []models.Deck, opts ...Option) string {
	var b strings.Builder
	_ = Write(&b, decks, opts...)
	return b.String()
}

func continues(open []section, segments []string, d *models.Deck) bool {
	if len(open) < len(segments) {
		return false
	}
	for i, name := range segments {
		if open[i].name != name {
			return false
		}
	}
	last := open[len(segments)-1]
	return last.id == d.ID && last.description == d.Description
}

func nextPath(open []section, segments []string, d *models.Deck) []section {
	next := make([]section, len(segments))
	for i, name := range segments {
		next[i].name = name
		switch {
		case i == len(segments)-1:
			next[i].id = d.ID
			next[i].description = d.Description
		case i < len(open) && open[i].name == name:
			next[i] = open[i]
		}
	}
	return next
}

func writeDeckHeading(b *strings.Builder, d *models.Deck, segments []string, o options) {
	depth := len(segments)
	b.WriteString(strings.Repeat("#", depth+o.initialDepth-1))
	b.WriteString(" ")
	if depth > 1 {
		b.WriteString(parser.SubdeckPrefix)
	}
	b.WriteString(segments[depth-1])
	if !o.withoutIDs {
		b.WriteString(" (" + strconv.FormatInt(d.ID, 10) + ")")
	}
	b.WriteString("\n")
	if d.Description != "" {
		b.WriteString("\n" + d.Description + "\n")
	}
}

func writeNote(b *strings.Builder, n models.Note, depth int, o options) {
	lines := strings.Split(n.Question, "\n")
	header := strings.TrimRight(lines[0], " \t\r")
	var body string
	switch {
	case len(lines) > 1:
		body = "\n" + strings.Join(lines[1:], "\n") + "\n\n" + parser.Separator
	case hasSeparator(n.Answer):
		// Otherwise the first separator of the answer would end the question.
		body = "\n\n" + parser.Separator
	}
	answer := n.Answer
	if o.rewrite {
		header = markup.RewriteLocalPaths(header, o.assetDir)
		body = markup.RewriteLocalPaths(body, o.assetDir)
		answer = markup.RewriteLocalPaths(answer, o.assetDir)
	}
	content := strings.TrimSpace(body + "\n\n" + answer)

	b.WriteString(strings.Repeat("#", depth))
	b.WriteString(" " + header)
	if !o.withoutIDs && n.ID != "" {
		b.WriteString(" (" + n.ID + ")")
	}
	b.WriteString("\n")
	if content != "" {
		b.WriteString("\n" + content + "\n")
	}
}

func hasSeparator(text string) bool {
	for line := range strings.Lines(text) {
		if strings.TrimSpace(line) == parser.Separator {
			return true
		}
	}
	return false
}
