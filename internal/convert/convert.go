// Package convert runs the document conversion pipeline behind the convert
// command: parse every input, check identifiers and write the outputs.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/starford/mdeck/internal/backup"
	"github.com/starford/mdeck/internal/mdwriter"
	"github.com/starford/mdeck/internal/models"
	"github.com/starford/mdeck/internal/parser"
	"github.com/starford/mdeck/internal/storage"
)

// Stdin is the input name that reads the document from Request.Stdin.
const Stdin = "-"

// ErrOutputCount is returned when several Markdown outputs are requested but
// their number differs from the number of inputs.
var ErrOutputCount = errors.New("markdown output count does not match input count")

// Request describes one conversion run.
type Request struct {
	Inputs              []string
	Stdin               io.Reader
	InitialHeadingDepth int
	FileDirs            []string

	// One path merges every input, several paths map one to one to the inputs.
	MarkdownFiles []string
	MarkdownDir   string
	BackupDir     string
	JSONFile      string
	YAMLFile      string
	RemoveIDs     bool
}

// HasOutputs reports whether any output is requested.
func (r Request) HasOutputs() bool {
	return len(r.MarkdownFiles) > 0 || r.MarkdownDir != "" || r.BackupDir != "" ||
		r.JSONFile != "" || r.YAMLFile != ""
}

// Document is the parse result of one input.
type Document struct {
	Path  string        `json:"path" yaml:"path"`
	Decks []models.Deck `json:"decks" yaml:"decks"`
}

// Result holds the parsed documents in input order.
type Result struct {
	Documents []Document
}

// Decks returns the decks of all documents in input order.
func (r *Result) Decks() []models.Deck {
	var out []models.Deck
	for _, d := range r.Documents {
		out = append(out, d.Decks...)
	}
	return out
}

// Run parses all inputs concurrently and writes the requested outputs.
// With no outputs requested the inputs are still parsed and validated.
func Run(ctx context.Context, req Request, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(req.Inputs) == 0 {
		return nil, errors.New("convert: no input documents")
	}
	if n := len(req.MarkdownFiles); n > 1 && n != len(req.Inputs) {
		return nil, fmt.Errorf("convert: %w (%d outputs, %d inputs)", ErrOutputCount, n, len(req.Inputs))
	}
	if !req.HasOutputs() {
		logger.Warn("no outputs specified, only validating the input documents")
	}

	res, err := parseAll(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	CheckIDs(res.Decks(), logger)

	if err := writeOutputs(req, res, logger); err != nil {
		return res, err
	}
	return res, nil
}

func parseAll(ctx context.Context, req Request, logger *slog.Logger) (*Result, error) {
	docs := make([]Document, len(req.Inputs))
	g, ctx := errgroup.WithContext(ctx)
	for i, in := range req.Inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			decks, err := parseInput(in, req, logger)
			if err != nil {
				return fmt.Errorf("convert: %s: %w", in, err)
			}
			docs[i] = Document{Path: in, Decks: decks}
			logger.Debug("parsed document", slog.String("path", in), slog.Int("decks", len(decks)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Result{Documents: docs}, nil
}

func parseInput(in string, req Request, logger *slog.Logger) ([]models.Deck, error) {
	var r io.Reader
	dir := "."
	if in == Stdin {
		if req.Stdin == nil {
			return nil, errors.New("no standard input available")
		}
		r = req.Stdin
	} else {
		f, err := os.Open(in)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
		dir = filepath.Dir(in)
	}
	return parser.Parse(r,
		parser.WithInitialHeadingDepth(req.InitialHeadingDepth),
		parser.WithLogger(logger),
		parser.WithFileDirs(dir),
		parser.WithFileDirs(req.FileDirs...))
}

// CheckIDs logs decks that share an id under different names and notes that
// share an id.
func CheckIDs(decks []models.Deck, logger *slog.Logger) {
	deckNames := make(map[int64]string)
	type noteRef struct{ deck, question string }
	notes := make(map[string]noteRef)
	for _, d := range decks {
		if prev, ok := deckNames[d.ID]; ok && prev != d.Name {
			logger.Warn("duplicated deck id with different name",
				slog.Int64("id", d.ID),
				slog.String("first", prev),
				slog.String("second", d.Name))
		}
		deckNames[d.ID] = d.Name
		for _, n := range d.Notes {
			if prev, ok := notes[n.ID]; ok {
				logger.Warn("duplicated note id",
					slog.String("id", n.ID),
					slog.String("first", prev.deck+" > "+prev.question),
					slog.String("second", d.Name+" > "+n.Question))
			}
			notes[n.ID] = noteRef{deck: d.Name, question: n.Question}
		}
	}
}

func writeOutputs(req Request, res *Result, logger *slog.Logger) error {
	mdOpts := []mdwriter.Option{mdwriter.WithInitialHeadingDepth(req.InitialHeadingDepth)}
	if req.RemoveIDs {
		mdOpts = append(mdOpts, mdwriter.WithoutIDs())
	}

	switch len(req.MarkdownFiles) {
	case 0:
	case 1:
		if err := writeFile(req.MarkdownFiles[0], []byte(mdwriter.String(res.Decks(), mdOpts...))); err != nil {
			return err
		}
		logger.Info("wrote markdown", slog.String("path", req.MarkdownFiles[0]))
	default:
		for i, out := range req.MarkdownFiles {
			if err := writeFile(out, []byte(mdwriter.String(res.Documents[i].Decks, mdOpts...))); err != nil {
				return err
			}
			logger.Info("wrote markdown", slog.String("path", out))
		}
	}

	if req.MarkdownDir != "" {
		for _, doc := range res.Documents {
			name := "stdin.md"
			if doc.Path != Stdin {
				base := filepath.Base(doc.Path)
				name = strings.TrimSuffix(base, filepath.Ext(base)) + ".md"
			}
			out := filepath.Join(req.MarkdownDir, name)
			if err := writeFile(out, []byte(mdwriter.String(doc.Decks, mdOpts...))); err != nil {
				return err
			}
			logger.Info("wrote markdown", slog.String("path", out))
		}
	}

	if req.BackupDir != "" {
		documents := make([][]models.Deck, len(res.Documents))
		for i, doc := range res.Documents {
			documents[i] = doc.Decks
		}
		written, err := backup.Write(req.BackupDir, documents, req.InitialHeadingDepth)
		if err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		logger.Info("wrote backup", slog.String("dir", req.BackupDir), slog.Int("files", len(written)))
	}

	if req.JSONFile != "" {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Documents); err != nil {
			return fmt.Errorf("convert: encode json: %w", err)
		}
		if err := writeFile(req.JSONFile, buf.Bytes()); err != nil {
			return err
		}
		logger.Info("wrote json", slog.String("path", req.JSONFile))
	}

	if req.YAMLFile != "" {
		data, err := yaml.Marshal(res.Documents)
		if err != nil {
			return fmt.Errorf("convert: encode yaml: %w", err)
		}
		if err := writeFile(req.YAMLFile, data); err != nil {
			return err
		}
		logger.Info("wrote yaml", slog.String("path", req.YAMLFile))
	}
	return nil
}

// writeFile stores data atomically, creating missing parent directories.
func writeFile(path string, data []byte) error {
	store, err := storage.Create(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if err := store.Write(filepath.Base(path), data); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	return nil
}
