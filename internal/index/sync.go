package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/mdeck/internal/apperr"
	"github.com/starford/mdeck/internal/checksum"
	"github.com/starford/mdeck/internal/models"
	"github.com/starford/mdeck/internal/storage"
)

// ParseFunc turns the content of the document at path into decks.
type ParseFunc func(path string, data []byte) ([]models.Deck, error)

// Sync walks the vault and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents that fail to parse are recorded as invalid
//   - documents removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, parse ParseFunc, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if cs, ok := checksums[m.Path]; ok && cs == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, parse, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile parses data and upserts it into the DB. A document that fails to
// parse is recorded as invalid and an error wrapping apperr.ErrInvalidDocument
// is returned.
func IndexFile(db *DB, parse ParseFunc, path string, data []byte) error {
	doc := DocumentRow{
		Path:      path,
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now(),
	}
	decks, err := parse(path, data)
	if err != nil {
		doc.ParseError = err.Error()
		if markErr := db.MarkInvalid(doc); markErr != nil {
			return markErr
		}
		return fmt.Errorf("index: %s: %w: %w", path, apperr.ErrInvalidDocument, err)
	}
	return db.UpsertDocument(doc, decks)
}
