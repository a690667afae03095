package index

import "github.com/starford/mdeck/internal/models"

// DeckIndex defines the interface for document indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DeckIndex interface {
	UpsertDocument(doc DocumentRow, decks []models.Deck) error
	MarkInvalid(doc DocumentRow) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments() ([]DocumentRow, error)
	ListDecks(documentPath string) ([]DeckRow, error)
	ListNotes(q NoteQuery) ([]NoteRow, int, error)
	GetNote(id string) (*NoteRow, error)
	SearchNotes(query string, limit int) ([]SearchResult, error)
	Tags() ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies DeckIndex at compile time.
var _ DeckIndex = (*DB)(nil)
