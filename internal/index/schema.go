// Package index provides SQLite-backed deck and note indexing with optional
// FTS5 full-text search over notes.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL DEFAULT '',
	parse_error TEXT NOT NULL DEFAULT '',
	deck_count  INTEGER NOT NULL DEFAULT 0,
	note_count  INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS decks (
	document_path  TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	deck_id        INTEGER NOT NULL,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	document_order INTEGER NOT NULL DEFAULT 0,
	note_count     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (document_path, position)
);

CREATE TABLE IF NOT EXISTS notes (
	document_path TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
	deck_position INTEGER NOT NULL,
	position      INTEGER NOT NULL,
	note_id       TEXT NOT NULL,
	deck_name     TEXT NOT NULL,
	question      TEXT NOT NULL DEFAULT '',
	answer        TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (document_path, deck_position, position)
);

CREATE INDEX IF NOT EXISTS idx_decks_name ON decks(name);
CREATE INDEX IF NOT EXISTS idx_notes_note_id ON notes(note_id);
CREATE INDEX IF NOT EXISTS idx_notes_deck_name ON notes(deck_name);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
