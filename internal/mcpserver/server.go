// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mdeck tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdeck/internal/apperr"
	"github.com/starford/mdeck/internal/deckservice"
)

const (
	deckFormatURI = "mdeck://deck-format"
	searchLimit   = 20
)

// Server wraps the MCP server with mdeck tools.
type Server struct {
	mcp *server.MCPServer
	svc *deckservice.Service
}

// New creates a new MCP server with all mdeck tools registered.
func New(svc *deckservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mdeck",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("parse_markdown",
		mcp.WithDescription("Parse Markdown into a tree of flashcard decks without storing it. "+
			"Returns the decks as JSON, or the structural error with its line number."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown following the mdeck deck format")),
	), s.parseMarkdown)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note questions, answers, tags and deck names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a deck document. format=markdown (default) returns the stored text, "+
			"format=decks the parsed deck tree as JSON, format=normalized the re-emitted Markdown."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. folder/deck.md)")),
		mcp.WithString("format", mcp.Description("One of markdown, decks, normalized")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List indexed documents with their deck and note counts."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new deck document at the specified path. "+
			"Content MUST follow the mdeck deck format. Read the contract first via "+
			"the get_deck_format tool or the "+deckFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new document (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the mdeck deck format")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("get_deck_format",
		mcp.WithDescription("Returns the mdeck deck format contract. "+
			"Call this before creating or updating documents to ensure correct structure."),
	), s.getDeckFormat)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Store an image or PDF in the vault asset directory from an http(s) URL or a base64 data URI. "+
			"Returns the Markdown image reference to paste into a note."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("Optional file name for the stored asset")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(deckFormatURI, "Deck Format Contract",
			mcp.WithResourceDescription("Markdown deck format that all documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDeckFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) parseMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	decks, err := s.svc.Parse(ctx, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(decks)
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchNotes(ctx, query, searchLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return jsonResult(results)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch format := optionalString(req, "format"); format {
	case "", "markdown":
		doc, err := s.svc.GetDocument(ctx, path)
		if err != nil {
			return toolError(path, err), nil
		}
		return mcp.NewToolResultText(doc.Content), nil
	case "decks":
		doc, err := s.svc.GetDocument(ctx, path)
		if err != nil {
			return toolError(path, err), nil
		}
		if doc.ParseError != "" {
			return mcp.NewToolResultError(doc.ParseError), nil
		}
		return jsonResult(doc.Decks)
	case "normalized":
		md, err := s.svc.ExportMarkdown(ctx, path, false)
		if err != nil {
			return toolError(path, err), nil
		}
		return mcp.NewToolResultText(md), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format: %s (want markdown, decks or normalized)", format)), nil
	}
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(optionalString(req, "folder"), "/")

	docs, err := s.svc.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, d := range docs {
		if folder != "" && !strings.HasPrefix(d.Path, folder+"/") {
			continue
		}
		line := fmt.Sprintf("%s (%d decks, %d notes)", d.Path, d.DeckCount, d.NoteCount)
		if d.ParseError != "" {
			line = fmt.Sprintf("%s (invalid: %s)", d.Path, d.ParseError)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.svc.CreateDocument(ctx, path, []byte(content))
	if err != nil {
		return toolError(path, err), nil
	}
	notes := 0
	for _, d := range doc.Decks {
		notes += len(d.Notes)
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%d decks, %d notes)", path, len(doc.Decks), notes)), nil
}

func (s *Server) getDeckFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DeckFormatContract), nil
}

func (s *Server) readDeckFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      deckFormatURI,
			MIMEType: "text/markdown",
			Text:     DeckFormatContract,
		},
	}, nil
}

// toolError turns a service error into a tool error result.
func toolError(path string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("document already exists: %s", path))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
