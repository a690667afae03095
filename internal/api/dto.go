package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/starford/mdeck/internal/deckservice"
	"github.com/starford/mdeck/internal/models"
	"github.com/starford/mdeck/internal/storage"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"go/basics.md" validate:"required"`
	Content string `json:"content" example:"# Go\n\n## What is a slice?\n\nA view over an array" validate:"required"`
}

// Validate checks the request body.
func (r CreateDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(documentPath)),
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdateDocumentRequest is the request body for updating a document.
type UpdateDocumentRequest struct {
	Content string `json:"content" example:"# Go (1)\n\n## Updated question\n\nAnswer" validate:"required"`
}

// Validate checks the request body.
func (r UpdateDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// MoveDocumentRequest is the request body for renaming a document.
type MoveDocumentRequest struct {
	From string `json:"from" example:"go.md" validate:"required"`
	To   string `json:"to" example:"lang/go.md" validate:"required"`
}

// Validate checks the request body.
func (r MoveDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required, validation.By(documentPath)),
		validation.Field(&r.To, validation.Required, validation.By(documentPath)),
	)
}

func documentPath(v any) error {
	p, _ := v.(string)
	if !storage.IsDocument(p) {
		return validation.NewError("validation_document_ext", "must end with "+storage.DocumentExt)
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return validation.NewError("validation_document_path", "must be relative to the vault")
	}
	return nil
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = deckservice.DocumentDetail

// DocumentItem is a lightweight item in a list response (aliased from the domain layer).
type DocumentItem = deckservice.DocumentItem

// NoteItem is a single indexed note (aliased from the domain layer).
type NoteItem = deckservice.NoteItem

// DeckItem is a single indexed deck (aliased from the domain layer).
type DeckItem = deckservice.DeckItem

// DocumentListResponse wraps document listings.
type DocumentListResponse struct {
	Documents []DocumentItem `json:"documents" validate:"required"`
}

// DeckListResponse wraps deck listings.
type DeckListResponse struct {
	Decks []DeckItem `json:"decks" validate:"required"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteItem `json:"notes" validate:"required"`
	Total int        `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path     string `json:"path" example:"go/basics.md" validate:"required"`
	NoteID   string `json:"note_id" example:"6f1c2a7e-3c0b-4a51-9d3e-8f2b1c0a9e4d" validate:"required"`
	Deck     string `json:"deck" example:"Go::Slices" validate:"required"`
	Question string `json:"question" example:"What is a slice?" validate:"required"`
	Snippet  string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// TagsResponse lists every note tag.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// ParseResponse is the deck tree of a parsed document.
type ParseResponse struct {
	Decks []models.Deck `json:"decks" validate:"required"`
}

// AssetUploadResponse is returned after a successful asset upload.
type AssetUploadResponse struct {
	Filename string `json:"filename" example:"diagram.png" validate:"required"`
	Path     string `json:"path" example:"assets/diagram.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/assets/diagram.png" validate:"required"`
	Markdown string `json:"markdown" example:"![diagram](assets/diagram.png)" validate:"required"`
}
