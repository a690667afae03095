package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/starford/mdeck/internal/parser"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunOutputs(t *testing.T) {
	in := t.TempDir()
	a := writeDoc(t, in, "a.md", "# A (1)\n## qa (n1)\nanswer a\n")
	b := writeDoc(t, in, "b.markdown", "# B (2)\n## qb (n2)\nanswer b\n")
	out := t.TempDir()

	req := Request{
		Inputs:              []string{a, b},
		InitialHeadingDepth: 1,
		MarkdownFiles:       []string{filepath.Join(out, "merged.md")},
		MarkdownDir:         filepath.Join(out, "dir"),
		BackupDir:           filepath.Join(out, "backup"),
		JSONFile:            filepath.Join(out, "decks.json"),
		YAMLFile:            filepath.Join(out, "decks.yaml"),
	}
	res, err := Run(context.Background(), req, discard())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Documents) != 2 || res.Documents[0].Path != a || res.Documents[1].Decks[0].Name != "B" {
		t.Fatalf("documents = %+v", res.Documents)
	}

	merged, err := os.ReadFile(filepath.Join(out, "merged.md"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "# A (1)\n\n## qa (n1)\n\nanswer a\n\n# B (2)\n\n## qb (n2)\n\nanswer b\n"; string(merged) != want {
		t.Errorf("merged = %q, want %q", merged, want)
	}
	for _, p := range []string{
		filepath.Join(out, "dir", "a.md"),
		filepath.Join(out, "dir", "b.md"),
		filepath.Join(out, "backup", "document_part_01.md"),
		filepath.Join(out, "backup", "document_part_02.md"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}

	var fromJSON []Document
	data, _ := os.ReadFile(req.JSONFile)
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(fromJSON) != 2 || fromJSON[0].Decks[0].Notes[0].Answer != "answer a" {
		t.Errorf("json documents = %+v", fromJSON)
	}

	var fromYAML []Document
	data, _ = os.ReadFile(req.YAMLFile)
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(fromYAML) != 2 || fromYAML[1].Decks[0].ID != 2 {
		t.Errorf("yaml documents = %+v", fromYAML)
	}
}

func TestRunMarkdownPerInput(t *testing.T) {
	in := t.TempDir()
	a := writeDoc(t, in, "a.md", "# A (1)\n## qa (n1)\nx\n")
	b := writeDoc(t, in, "b.md", "# B (2)\n## qb (n2)\ny\n")
	out := t.TempDir()

	_, err := Run(context.Background(), Request{
		Inputs:        []string{a, b},
		MarkdownFiles: []string{filepath.Join(out, "1.md"), filepath.Join(out, "2.md")},
		RemoveIDs:     true,
	}, discard())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(out, "2.md"))
	if string(got) != "# B\n\n## qb\n\ny\n" {
		t.Errorf("2.md = %q", got)
	}

	_, err = Run(context.Background(), Request{
		Inputs:        []string{a, b},
		MarkdownFiles: []string{"x.md", "y.md", "z.md"},
	}, discard())
	if !errors.Is(err, ErrOutputCount) {
		t.Errorf("err = %v, want ErrOutputCount", err)
	}
}

func TestRunParseError(t *testing.T) {
	in := t.TempDir()
	good := writeDoc(t, in, "good.md", "# A\n## q\na\n")
	bad := writeDoc(t, in, "bad.md", "no heading here\n")
	_, err := Run(context.Background(), Request{Inputs: []string{good, bad}}, discard())
	if !errors.Is(err, parser.ErrNoDeckFound) {
		t.Fatalf("err = %v, want ErrNoDeckFound", err)
	}
	if !strings.Contains(err.Error(), "bad.md") {
		t.Errorf("error %q does not name the input", err)
	}
}

func TestRunStdinWithoutOutputs(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	res, err := Run(context.Background(), Request{
		Inputs: []string{Stdin},
		Stdin:  strings.NewReader("# S\n## q\na\n"),
	}, logger)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Decks()) != 1 || res.Decks()[0].Name != "S" {
		t.Errorf("decks = %+v", res.Decks())
	}
	if !strings.Contains(logs.String(), "no outputs specified") {
		t.Errorf("missing warning in logs: %s", logs.String())
	}
}

func TestCheckIDs(t *testing.T) {
	in := t.TempDir()
	a := writeDoc(t, in, "a.md", "# A (1)\n## q (same)\nx\n")
	b := writeDoc(t, in, "b.md", "# B (1)\n## q (same)\ny\n")

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	if _, err := Run(context.Background(), Request{Inputs: []string{a, b}}, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"duplicated deck id with different name", "duplicated note id"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("missing %q in logs: %s", want, logs.String())
		}
	}
}
