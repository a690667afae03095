//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/starford/mdeck/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		t.Fatalf("notes_fts table missing: %v", err)
	}
}

func ftsDeck(answer string) []models.Deck {
	return []models.Deck{{
		Name: "FTS", ID: 1,
		Notes: []models.Note{{ID: "f1", Question: "FTS note", Answer: answer, Tags: []string{"search"}}},
	}}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertDocument(DocumentRow{Path: "fts.md", Checksum: "f1"},
		ftsDeck("The index provides powerful full-text search capabilities.")); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	results, err := db.SearchNotes("powerful", 10)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].DocumentPath != "fts.md" || results[0].NoteID != "f1" {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "gone.md", Checksum: "g"}, ftsDeck("vanishing content"))
	_ = db.DeleteDocument("gone.md")

	results, _ := db.SearchNotes("vanishing", 10)
	for _, r := range results {
		if r.DocumentPath == "gone.md" {
			t.Error("deleted document still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "evo.md", Checksum: "1"}, ftsDeck("original text"))
	_ = db.UpsertDocument(DocumentRow{Path: "evo.md", Checksum: "2"}, ftsDeck("replacement text"))

	results, _ := db.SearchNotes("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.SearchNotes("replacement", 10)
	if len(results) != 1 {
		t.Errorf("FTS not updated: %+v", results)
	}
}
