//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on the notes table.
	return nil
}

func ftsInsert(_ *sql.Tx, _ NoteRow) error {
	// Question and answer are already stored in the notes table.
	return nil
}

func ftsDeleteDocument(_ *sql.Tx, _ string) error { return nil }

// SearchNotes performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) SearchNotes(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT document_path, note_id, deck_name, question, substr(answer, 1, 200)
		FROM notes
		WHERE question LIKE ? OR answer LIKE ? OR tags LIKE ? OR deck_name LIKE ?
		ORDER BY document_path, deck_position, position
		LIMIT ?
	`, like, like, like, like, limit)
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
