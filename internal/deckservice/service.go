// Package deckservice coordinates vault storage, the deck parser and the
// SQLite index.
package deckservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/mdeck/internal/apperr"
	"github.com/starford/mdeck/internal/checksum"
	"github.com/starford/mdeck/internal/ident"
	"github.com/starford/mdeck/internal/index"
	"github.com/starford/mdeck/internal/mdwriter"
	"github.com/starford/mdeck/internal/models"
	"github.com/starford/mdeck/internal/parser"
	"github.com/starford/mdeck/internal/storage"
)

// AssetDir is the vault directory that receives uploaded assets.
const AssetDir = "assets"

// DocumentDetail is the full representation of a vault document.
type DocumentDetail struct {
	Path       string        `json:"path"`
	Content    string        `json:"content"`
	Checksum   string        `json:"checksum"`
	Decks      []models.Deck `json:"decks"`
	ParseError string        `json:"parse_error,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// DocumentItem is a lightweight item in a document list.
type DocumentItem struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	DeckCount  int       `json:"deck_count"`
	NoteCount  int       `json:"note_count"`
	ParseError string    `json:"parse_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeckItem is an indexed deck.
type DeckItem struct {
	DocumentPath string   `json:"document_path"`
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags"`
	NoteCount    int      `json:"note_count"`
}

// NoteItem is an indexed note.
type NoteItem struct {
	ID           string   `json:"id"`
	DocumentPath string   `json:"document_path"`
	Deck         string   `json:"deck"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	Tags         []string `json:"tags"`
}

// NoteFilter narrows ListNotes.
type NoteFilter struct {
	Limit    int
	Offset   int
	Tag      string
	Deck     string
	Document string
}

// Service coordinates storage, parser and index operations.
type Service struct {
	store  storage.Provider
	db     *index.DB
	logger *slog.Logger
	opts   []parser.Option
}

// NewService creates a new deck service. opts apply to every parse.
func NewService(store storage.Provider, db *index.DB, logger *slog.Logger, opts ...parser.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, logger: logger, opts: opts}
}

// ParseDocument parses the content of the vault document at path. Local
// assets are also looked up next to the document. Headings without an id
// get ids derived from path, so the API and the index agree on them. It
// satisfies index.ParseFunc.
func (s *Service) ParseDocument(path string, data []byte) ([]models.Deck, error) {
	opts := append([]parser.Option{parser.WithLogger(s.logger)}, s.opts...)
	opts = append(opts, parser.WithIDGenerator(ident.NewDerived(path)))
	if abs, err := s.store.Abs(path); err == nil {
		opts = append(opts, parser.WithFileDirs(filepath.Dir(abs)))
	}
	return parser.ParseString(string(data), opts...)
}

// Parse parses raw Markdown outside the vault. Structural errors are
// returned wrapped in apperr.ErrInvalidDocument.
func (s *Service) Parse(_ context.Context, content string) ([]models.Deck, error) {
	opts := append([]parser.Option{parser.WithLogger(s.logger)}, s.opts...)
	decks, err := parser.ParseString(content, opts...)
	if err != nil {
		return nil, invalid(err)
	}
	return decks, nil
}

// GetDocument reads a document from storage and parses it. A document that
// does not parse is returned with ParseError set.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(path, data), nil
}

// CreateDocument writes a new document and indexes it. Content that does
// not parse is rejected.
func (s *Service) CreateDocument(_ context.Context, path string, content []byte) (*DocumentDetail, error) {
	if !storage.IsDocument(path) {
		return nil, fmt.Errorf("deckservice: %s: not a %s document: %w", path, storage.DocumentExt, apperr.ErrInvalidDocument)
	}
	decks, err := s.ParseDocument(path, content)
	if err != nil {
		return nil, invalid(err)
	}
	if err := s.store.WriteNew(path, content); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperr.ErrAlreadyExists
		}
		return nil, err
	}
	return s.upsert(path, content, decks)
}

// UpdateDocument writes updated content with optimistic concurrency: a
// non-empty ifMatch must equal the checksum of the stored content.
func (s *Service) UpdateDocument(_ context.Context, path string, content []byte, ifMatch string) (*DocumentDetail, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	decks, err := s.ParseDocument(path, content)
	if err != nil {
		return nil, invalid(err)
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	return s.upsert(path, content, decks)
}

// DeleteDocument removes a document from storage and index.
func (s *Service) DeleteDocument(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.db.DeleteDocument(path)
}

// MoveDocument renames a document and re-indexes it under the new path.
func (s *Service) MoveDocument(_ context.Context, from, to string) (*DocumentDetail, error) {
	if !storage.IsDocument(to) {
		return nil, fmt.Errorf("deckservice: %s: not a %s document: %w", to, storage.DocumentExt, apperr.ErrInvalidDocument)
	}
	if err := s.store.Move(from, to); err != nil {
		switch {
		case errors.Is(err, fs.ErrExist):
			return nil, apperr.ErrAlreadyExists
		case errors.Is(err, fs.ErrNotExist):
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := s.db.DeleteDocument(from); err != nil {
		return nil, err
	}
	data, err := s.read(to)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document moved", slog.String("from", from), slog.String("to", to))
	decks, err := s.ParseDocument(to, data)
	if err != nil {
		// Stored content that no longer parses is still moved.
		if err := s.IndexFile(to, data); err != nil && !errors.Is(err, apperr.ErrInvalidDocument) {
			return nil, err
		}
		return s.buildDetail(to, data), nil
	}
	return s.upsert(to, data, decks)
}

// ListDocuments returns every indexed document.
func (s *Service) ListDocuments(_ context.Context) ([]DocumentItem, error) {
	rows, err := s.db.ListDocuments()
	if err != nil {
		return nil, err
	}
	items := make([]DocumentItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentItem{
			Path:       r.Path,
			Checksum:   r.Checksum,
			DeckCount:  r.DeckCount,
			NoteCount:  r.NoteCount,
			ParseError: r.ParseError,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return items, nil
}

// ListDecks returns the indexed decks of one document, or of all documents
// when path is empty.
func (s *Service) ListDecks(_ context.Context, path string) ([]DeckItem, error) {
	rows, err := s.db.ListDecks(path)
	if err != nil {
		return nil, err
	}
	items := make([]DeckItem, len(rows))
	for i, r := range rows {
		items[i] = DeckItem{
			DocumentPath: r.DocumentPath,
			ID:           r.ID,
			Name:         r.Name,
			Description:  r.Description,
			Tags:         nonNilSlice(r.Tags),
			NoteCount:    r.NoteCount,
		}
	}
	return items, nil
}

// ListNotes returns a page of notes and the total number of matches.
func (s *Service) ListNotes(_ context.Context, f NoteFilter) ([]NoteItem, int, error) {
	rows, total, err := s.db.ListNotes(index.NoteQuery{
		Limit:        f.Limit,
		Offset:       f.Offset,
		Tag:          f.Tag,
		Deck:         f.Deck,
		DocumentPath: f.Document,
	})
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteItem, len(rows))
	for i, r := range rows {
		items[i] = noteItem(r)
	}
	return items, total, nil
}

// GetNote returns one note by id.
func (s *Service) GetNote(_ context.Context, id string) (*NoteItem, error) {
	row, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	item := noteItem(*row)
	return &item, nil
}

// SearchNotes delegates full-text search to the index.
func (s *Service) SearchNotes(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.SearchNotes(query, limit)
}

// Tags returns every note tag in the index.
func (s *Service) Tags(_ context.Context) ([]string, error) {
	return s.db.Tags()
}

// ExportMarkdown re-emits the decks of a stored document as Markdown.
func (s *Service) ExportMarkdown(_ context.Context, path string, withoutIDs bool) (string, error) {
	data, err := s.read(path)
	if err != nil {
		return "", err
	}
	decks, err := s.ParseDocument(path, data)
	if err != nil {
		return "", invalid(err)
	}
	opts := []mdwriter.Option{mdwriter.WithInitialHeadingDepth(s.initialDepth())}
	if withoutIDs {
		opts = append(opts, mdwriter.WithoutIDs())
	}
	return mdwriter.String(decks, opts...), nil
}

// IndexFile parses data and upserts it into the index.
// Exported so that sync and watcher can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	return index.IndexFile(s.db, s.ParseDocument, path, data)
}

// Sync brings the index up to date with the vault.
func (s *Service) Sync() error {
	return index.Sync(s.db, s.store, s.ParseDocument, s.logger)
}

// StoreAsset writes an asset into the asset directory of the vault and
// returns its vault-relative path.
func (s *Service) StoreAsset(_ context.Context, name string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("deckservice: invalid asset name %q", name)
	}
	if storage.IsDocument(name) {
		return "", fmt.Errorf("deckservice: asset %q must not be a document", name)
	}
	rel := AssetDir + "/" + name
	if err := s.store.Write(rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// AssetExists reports whether an asset with name is already stored.
func (s *Service) AssetExists(name string) bool {
	return s.store.Exists(AssetDir + "/" + name)
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// upsert indexes decks parsed from data and returns the detail built from
// the same decks.
func (s *Service) upsert(path string, data []byte, decks []models.Deck) (*DocumentDetail, error) {
	now := time.Now()
	row := index.DocumentRow{Path: path, Checksum: checksum.Sum(data), UpdatedAt: now}
	if err := s.db.UpsertDocument(row, decks); err != nil {
		return nil, err
	}
	return &DocumentDetail{
		Path:      path,
		Content:   string(data),
		Checksum:  row.Checksum,
		Decks:     decks,
		UpdatedAt: now,
	}, nil
}

func (s *Service) buildDetail(path string, data []byte) *DocumentDetail {
	d := &DocumentDetail{
		Path:      path,
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		Decks:     []models.Deck{},
		UpdatedAt: time.Now(),
	}
	if row, err := s.db.GetDocument(path); err == nil {
		d.UpdatedAt = row.UpdatedAt
	}
	decks, err := s.ParseDocument(path, data)
	if err != nil {
		d.ParseError = err.Error()
		return d
	}
	d.Decks = decks
	return d
}

func (s *Service) initialDepth() int {
	return parser.NewScanner(s.opts...).InitialHeadingDepth()
}

func noteItem(r index.NoteRow) NoteItem {
	return NoteItem{
		ID:           r.ID,
		DocumentPath: r.DocumentPath,
		Deck:         r.DeckName,
		Question:     r.Question,
		Answer:       r.Answer,
		Tags:         nonNilSlice(r.Tags),
	}
}

func invalid(err error) error {
	return fmt.Errorf("deckservice: %w: %w", apperr.ErrInvalidDocument, err)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
