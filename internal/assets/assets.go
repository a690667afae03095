// Package assets locates the local files referenced by deck notes and loads
// new assets from URLs and data URIs.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/mdeck/internal/markup"
	"github.com/starford/mdeck/internal/models"
)

// ErrAssetNotFound is returned when a referenced file exists neither as given
// nor in any of the deck's file directories.
var ErrAssetNotFound = errors.New("asset not found")

// Resolve returns the paths of all local files used by the notes of d.
// A path is tried as given first, then relative to each of d.FileDirs.
func Resolve(d models.Deck) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, n := range d.Notes {
		for _, ref := range markup.LocalFiles(n.Question + "\n" + n.Answer) {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}

			p, err := locate(ref, d.FileDirs)
			if err != nil {
				return nil, fmt.Errorf("assets: deck %q: %w", d.Name, err)
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// ResolveAll resolves the assets of every deck, dropping duplicates.
func ResolveAll(decks []models.Deck) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, d := range decks {
		paths, err := Resolve(d)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func locate(ref string, dirs []string) (string, error) {
	local := filepath.FromSlash(ref)
	if isFile(local) {
		return local, nil
	}
	if !filepath.IsAbs(local) {
		for _, dir := range dirs {
			p := filepath.Join(dir, local)
			if isFile(p) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s (searched %v)", ErrAssetNotFound, ref, dirs)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
