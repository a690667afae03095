// Package backup writes parsed documents and their assets to a
// self-contained directory.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/mdeck/internal/assets"
	"github.com/starford/mdeck/internal/mdwriter"
	"github.com/starford/mdeck/internal/models"
	"github.com/starford/mdeck/internal/storage"
)

// AssetDir is the directory inside a backup that holds copied assets.
const AssetDir = "assets"

// DocumentName returns the file name of the i-th (0-based) of n documents.
func DocumentName(i, n int) string {
	if n > 1 {
		return fmt.Sprintf("document_part_%02d.md", i+1)
	}
	return "document.md"
}

// Write creates dir and stores every document as merged Markdown with asset
// paths pointing into dir/assets, then copies the referenced assets there.
// It returns the paths written, relative to dir.
func Write(dir string, documents [][]models.Deck, initialDepth int) ([]string, error) {
	store, err := storage.Create(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}

	var written []string
	var files []string
	for i, decks := range documents {
		var b strings.Builder
		err := mdwriter.Write(&b, decks,
			mdwriter.WithInitialHeadingDepth(initialDepth),
			mdwriter.WithAssetDir(AssetDir))
		if err != nil {
			return written, fmt.Errorf("backup: render document %d: %w", i+1, err)
		}
		name := DocumentName(i, len(documents))
		if err := store.Write(name, []byte(b.String())); err != nil {
			return written, fmt.Errorf("backup: %w", err)
		}
		written = append(written, name)

		paths, err := assets.ResolveAll(decks)
		if err != nil {
			return written, fmt.Errorf("backup: %w", err)
		}
		files = append(files, paths...)
	}

	for _, src := range files {
		data, err := os.ReadFile(src)
		if err != nil {
			return written, fmt.Errorf("backup: read asset: %w", err)
		}
		rel := AssetDir + "/" + filepath.Base(src)
		if err := store.Write(rel, data); err != nil {
			return written, fmt.Errorf("backup: %w", err)
		}
		written = append(written, rel)
	}
	return written, nil
}
