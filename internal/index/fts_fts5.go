//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			document_path UNINDEXED,
			note_id UNINDEXED,
			deck_name,
			question,
			answer,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, n NoteRow) error {
	_, err := tx.Exec(`
		INSERT INTO notes_fts (document_path, note_id, deck_name, question, answer, tags)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.DocumentPath, n.ID, n.DeckName, n.Question, n.Answer, strings.Join(n.Tags, " "))
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDeleteDocument(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE document_path = ?`, path); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// SearchNotes performs an FTS5 full-text search and returns matching notes with snippets.
func (db *DB) SearchNotes(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT document_path,
		       note_id,
		       deck_name,
		       question,
		       snippet(notes_fts, -1, '<b>', '</b>', '...', 32)
		FROM notes_fts
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocumentPath, &r.NoteID, &r.DeckName, &r.Question, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
