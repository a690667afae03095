package parser

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/mdeck/internal/markup"
	"github.com/starford/mdeck/internal/models"
)

// finalize trims the accumulated text, resolves tags down to the notes and
// restores the order in which the decks were opened.
func finalize(closed []*models.Deck, fileDirs []string, logger *slog.Logger) []models.Deck {
	out := make([]models.Deck, 0, len(closed))
	for _, d := range closed {
		d.Description = strings.TrimSpace(d.Description)
		d.Tags = models.MergeTags(d.Tags, markup.Tags(logger, d.Description))
		for i := range d.Notes {
			n := &d.Notes[i]
			n.Question = strings.TrimSpace(n.Question)
			n.Answer = strings.TrimSpace(n.Answer)
			n.Tags = models.MergeTags(
				n.Tags,
				markup.Tags(logger, n.Question),
				markup.Tags(logger, n.Answer),
				d.Tags,
			)
		}
		d.FileDirs = append(d.FileDirs, fileDirs...)
		out = append(out, *d)
	}
	slices.SortStableFunc(out, func(a, b models.Deck) int {
		return cmp.Compare(a.DocumentOrder, b.DocumentOrder)
	})
	return out
}
