package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/mdeck/internal/apperr"
	"github.com/starford/mdeck/internal/models"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path       string
	Checksum   string
	ParseError string
	DeckCount  int
	NoteCount  int
	UpdatedAt  time.Time
}

// DeckRow represents a row in the decks table.
type DeckRow struct {
	DocumentPath  string
	Position      int
	ID            int64
	Name          string
	Description   string
	Tags          []string
	DocumentOrder int
	NoteCount     int
}

// NoteRow represents a row in the notes table.
type NoteRow struct {
	DocumentPath string
	DeckPosition int
	Position     int
	ID           string
	DeckName     string
	Question     string
	Answer       string
	Tags         []string
}

// NoteQuery filters ListNotes. Deck matches the deck and its subdecks.
type NoteQuery struct {
	Limit        int
	Offset       int
	Tag          string
	Deck         string
	DocumentPath string
}

// SearchResult represents one search hit.
type SearchResult struct {
	DocumentPath string `json:"document_path"`
	NoteID       string `json:"note_id"`
	DeckName     string `json:"deck"`
	Question     string `json:"question"`
	Snippet      string `json:"snippet"`
}

const defaultListLimit = 50

// UpsertDocument replaces a document with its parsed decks, notes and FTS
// entries within a transaction.
func (db *DB) UpsertDocument(doc DocumentRow, decks []models.Deck) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	notes := 0
	for _, d := range decks {
		notes += len(d.Notes)
	}
	doc.ParseError = ""
	doc.DeckCount = len(decks)
	doc.NoteCount = notes
	if err := upsertDocumentRow(tx, doc); err != nil {
		return err
	}
	if err := clearDocument(tx, doc.Path); err != nil {
		return err
	}

	deckStmt, err := tx.Prepare(`
		INSERT INTO decks (document_path, position, deck_id, name, description, tags, document_order, note_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare deck insert: %w", err)
	}
	defer deckStmt.Close()
	noteStmt, err := tx.Prepare(`
		INSERT INTO notes (document_path, deck_position, position, note_id, deck_name, question, answer, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare note insert: %w", err)
	}
	defer noteStmt.Close()

	for i, d := range decks {
		if _, err := deckStmt.Exec(doc.Path, i, d.ID, d.Name, d.Description,
			encodeTags(d.Tags), d.DocumentOrder, len(d.Notes)); err != nil {
			return fmt.Errorf("index: insert deck: %w", err)
		}
		for j, n := range d.Notes {
			row := NoteRow{
				DocumentPath: doc.Path,
				DeckPosition: i,
				Position:     j,
				ID:           n.ID,
				DeckName:     d.Name,
				Question:     n.Question,
				Answer:       n.Answer,
				Tags:         n.Tags,
			}
			if _, err := noteStmt.Exec(row.DocumentPath, row.DeckPosition, row.Position, row.ID,
				row.DeckName, row.Question, row.Answer, encodeTags(row.Tags)); err != nil {
				return fmt.Errorf("index: insert note: %w", err)
			}
			// FTS upsert (no-op when FTS5 tag is absent).
			if err := ftsInsert(tx, row); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// MarkInvalid records a document that failed to parse. Its previously
// indexed decks and notes are removed.
func (db *DB) MarkInvalid(doc DocumentRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc.DeckCount, doc.NoteCount = 0, 0
	if doc.ParseError == "" {
		doc.ParseError = "invalid document"
	}
	if err := upsertDocumentRow(tx, doc); err != nil {
		return err
	}
	if err := clearDocument(tx, doc.Path); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDocument removes a document, its decks, notes and FTS entries.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := clearDocument(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

func upsertDocumentRow(tx *sql.Tx, doc DocumentRow) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	_, err := tx.Exec(`
		INSERT INTO documents (path, checksum, parse_error, deck_count, note_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			parse_error = excluded.parse_error,
			deck_count  = excluded.deck_count,
			note_count  = excluded.note_count,
			updated_at  = excluded.updated_at
	`, doc.Path, doc.Checksum, doc.ParseError, doc.DeckCount, doc.NoteCount, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}
	return nil
}

func clearDocument(tx *sql.Tx, path string) error {
	if err := ftsDeleteDocument(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE document_path = ?`, path); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM decks WHERE document_path = ?`, path); err != nil {
		return fmt.Errorf("index: clear decks: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil // not found is fine
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed document keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const documentColumns = `path, checksum, parse_error, deck_count, note_count, updated_at`

// GetDocument returns one indexed document.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns every indexed document ordered by path.
func (db *DB) ListDocuments() ([]DocumentRow, error) {
	rows, err := db.conn.Query(`SELECT ` + documentColumns + ` FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListDecks returns the decks of documentPath in document order, or of all
// documents when documentPath is empty.
func (db *DB) ListDecks(documentPath string) ([]DeckRow, error) {
	query := `
		SELECT document_path, position, deck_id, name, description, tags, document_order, note_count
		FROM decks`
	var args []any
	if documentPath != "" {
		query += ` WHERE document_path = ?`
		args = append(args, documentPath)
	}
	query += ` ORDER BY document_path, document_order`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list decks: %w", err)
	}
	defer rows.Close()

	var out []DeckRow
	for rows.Next() {
		var d DeckRow
		var tags string
		if err := rows.Scan(&d.DocumentPath, &d.Position, &d.ID, &d.Name, &d.Description,
			&tags, &d.DocumentOrder, &d.NoteCount); err != nil {
			return nil, err
		}
		d.Tags = decodeTags(tags)
		out = append(out, d)
	}
	return out, rows.Err()
}

const noteColumns = `document_path, deck_position, position, note_id, deck_name, question, answer, tags`

// ListNotes returns a page of notes matching q and the total match count.
func (db *DB) ListNotes(q NoteQuery) ([]NoteRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var where []string
	var args []any
	if q.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)`)
		args = append(args, q.Tag)
	}
	if q.Deck != "" {
		where = append(where, `(deck_name = ? OR instr(deck_name, ?) = 1)`)
		args = append(args, q.Deck, q.Deck+models.SubdeckSeparator)
	}
	if q.DocumentPath != "" {
		where = append(where, `document_path = ?`)
		args = append(args, q.DocumentPath)
	}
	filter := ""
	if len(where) > 0 {
		filter = ` WHERE ` + strings.Join(where, ` AND `)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes`+filter+
		` ORDER BY document_path, deck_position, position LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

// GetNote returns the note with the given id. When several documents use
// the id, the one with the smallest path wins.
func (db *DB) GetNote(id string) (*NoteRow, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE note_id = ?
		ORDER BY document_path, deck_position, position LIMIT 1`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// Tags returns every distinct note tag in sorted order.
func (db *DB) Tags() ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT json_each.value
		FROM notes, json_each(notes.tags)
		ORDER BY json_each.value`)
	if err != nil {
		return nil, fmt.Errorf("index: tags: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*DocumentRow, error) {
	var d DocumentRow
	if err := s.Scan(&d.Path, &d.Checksum, &d.ParseError, &d.DeckCount, &d.NoteCount, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanNote(s scanner) (*NoteRow, error) {
	var n NoteRow
	var tags string
	if err := s.Scan(&n.DocumentPath, &n.DeckPosition, &n.Position, &n.ID, &n.DeckName,
		&n.Question, &n.Answer, &tags); err != nil {
		return nil, err
	}
	n.Tags = decodeTags(tags)
	return &n, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func decodeTags(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
