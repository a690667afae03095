package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/mdeck/internal/deckservice"
	"github.com/starford/mdeck/internal/testutil"
)

const helloDoc = "# Hello (1)\n\n## First question (q1)\n\nFirst answer `{=:greeting:=}`\n"

// testEnv sets up a temp vault, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode; a non-empty token means token mode.
func testEnv(t *testing.T, authToken string) (*deckservice.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithVault(t, authToken != "", authToken)
	return svc, router
}

func testEnvWithVault(t *testing.T, authEnabled bool, authToken string) (*deckservice.Service, http.Handler, string) {
	t.Helper()
	return testEnvWithHandler(t, authEnabled, authToken, nil)
}

func testEnvWithHandler(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*deckservice.Service, http.Handler, string) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	svc := deckservice.NewService(store, db, testutil.Logger(), testutil.ParserOptions()...)
	router := NewRouter(svc, authEnabled, authToken, sseHandler, vaultDir)
	return svc, router, vaultDir
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createDocument(t *testing.T, router http.Handler, path, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"path": path, "content": content})
	return serve(router, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body)))
}

func TestCreateAndGetDocument(t *testing.T) {
	_, router := testEnv(t, "")

	w := createDocument(t, router, "hello.md", helloDoc)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/documents/hello.md", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var doc DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Path != "hello.md" {
		t.Errorf("path = %q", doc.Path)
	}
	if len(doc.Decks) != 1 || doc.Decks[0].Name != "Hello" || doc.Decks[0].Notes[0].ID != "q1" {
		t.Errorf("decks = %+v", doc.Decks)
	}
	if got := w.Header().Get("ETag"); got != `"`+doc.Checksum+`"` {
		t.Errorf("ETag = %q, checksum = %q", got, doc.Checksum)
	}
}

func TestGetDocument_EncodedPath(t *testing.T) {
	_, router := testEnv(t, "")
	if w := createDocument(t, router, "go/basics.md", helloDoc); w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	w := serve(router, httptest.NewRequest(http.MethodGet, "/documents/go%2Fbasics.md", nil))
	if w.Code != http.StatusOK {
		t.Errorf("encoded get = %d, want 200", w.Code)
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	if w := createDocument(t, router, "dup.md", helloDoc); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := createDocument(t, router, "dup.md", helloDoc); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "")

	tests := []struct {
		name    string
		path    string
		content string
		want    int
	}{
		{"missing path", "", helloDoc, http.StatusBadRequest},
		{"missing content", "a.md", "", http.StatusBadRequest},
		{"wrong extension", "a.txt", helloDoc, http.StatusBadRequest},
		{"absolute path", "/etc/a.md", helloDoc, http.StatusBadRequest},
		{"no deck", "a.md", "just text", http.StatusUnprocessableEntity},
		{"root subdeck", "a.md", "# Subdeck: Orphan\n", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := createDocument(t, router, tt.path, tt.content)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreateInvalidJSON(t *testing.T) {
	_, router := testEnv(t, "")
	w := serve(router, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	w := createDocument(t, router, "lock.md", helloDoc)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	updateBody, _ := json.Marshal(map[string]string{"content": "# Hello (1)\n\n## Second (q2)\n\nTwo\n"})
	req := httptest.NewRequest(http.MethodPut, "/documents/lock.md", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", `"`+created.Checksum+`"`)
	w = serve(router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// The checksum is stale now.
	req = httptest.NewRequest(http.MethodPut, "/documents/lock.md", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", created.Checksum)
	w = serve(router, req)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "nolock.md", helloDoc)

	updateBody, _ := json.Marshal(map[string]string{"content": "# Hello (1)\n"})
	w := serve(router, httptest.NewRequest(http.MethodPut, "/documents/nolock.md", bytes.NewReader(updateBody)))
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestUpdateInvalidContent(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "doc.md", helloDoc)

	updateBody, _ := json.Marshal(map[string]string{"content": "# Hello\n\n#### Too deep\n"})
	w := serve(router, httptest.NewRequest(http.MethodPut, "/documents/doc.md", bytes.NewReader(updateBody)))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid update = %d, want 422", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp.Error, "unexpected note depth") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestDeleteDocument(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "bye.md", helloDoc)

	w := serve(router, httptest.NewRequest(http.MethodDelete, "/documents/bye.md", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/documents/bye.md", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	w = serve(router, httptest.NewRequest(http.MethodDelete, "/documents/bye.md", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListDocumentsAndDecks(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "a.md", helloDoc)
	createDocument(t, router, "b.md", "# Other (2)\n\n## Subdeck: Child (3)\n\n### Q (q9)\n\nA\n")

	w := serve(router, httptest.NewRequest(http.MethodGet, "/documents", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var docs DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &docs)
	if len(docs.Documents) != 2 {
		t.Errorf("len(documents) = %d, want 2", len(docs.Documents))
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/decks?document=b.md", nil))
	var decks DeckListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &decks)
	if len(decks.Decks) != 2 || decks.Decks[1].Name != "Other::Child" {
		t.Errorf("decks = %+v", decks.Decks)
	}
}

func TestNotesEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "hello.md", helloDoc)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/notes?tag=greeting&limit=10", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list notes = %d", w.Code)
	}
	var list NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Notes) != 1 || list.Notes[0].ID != "q1" {
		t.Errorf("notes = %+v", list)
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/notes/q1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get note = %d", w.Code)
	}
	var note NoteItem
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Deck != "Hello" || note.Question != "First question" {
		t.Errorf("note = %+v", note)
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/notes/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/tags", nil))
	var tags TagsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tags)
	if len(tags.Tags) != 1 || tags.Tags[0] != "greeting" {
		t.Errorf("tags = %v", tags.Tags)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "find.md", "# Find (1)\n\n## uniquetoken here (n1)\n\nanswer\n")

	w := serve(router, httptest.NewRequest(http.MethodGet, "/search?q=uniquetoken", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].NoteID != "n1" || resp.Results[0].Path != "find.md" {
		t.Errorf("search results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := serve(router, httptest.NewRequest(http.MethodGet, "/search", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "hello.md", helloDoc)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/export/hello.md", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "## First question (q1)") {
		t.Errorf("export body =\n%s", w.Body.String())
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/export/hello.md?ids=false", nil))
	if strings.Contains(w.Body.String(), "(q1)") || strings.Contains(w.Body.String(), "(1)") {
		t.Errorf("export without ids =\n%s", w.Body.String())
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/export/hello.md?ids=maybe", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad ids flag = %d, want 400", w.Code)
	}
}

func TestParseEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := serve(router, httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader(helloDoc)))
	if w.Code != http.StatusOK {
		t.Fatalf("parse = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ParseResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Decks) != 1 || len(resp.Decks[0].Notes) != 1 {
		t.Errorf("decks = %+v", resp.Decks)
	}

	w = serve(router, httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader("# Subdeck: Root\n")))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid parse = %d, want 422", w.Code)
	}
	var e errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	if !strings.Contains(e.Error, "line 1") {
		t.Errorf("error = %q, want line number", e.Error)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(map[string]string{"path": "auth.md", "content": helloDoc})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	if w := serve(router, req); w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := serve(router, httptest.NewRequest(http.MethodGet, "/documents", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := serve(router, req); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := serve(router, httptest.NewRequest(http.MethodGet, "/documents", nil)); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestUpdateDocument_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	body, _ := json.Marshal(map[string]string{"content": "x"})
	w := serve(router, httptest.NewRequest(http.MethodPut, "/documents/ghost.md", bytes.NewReader(body)))
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithHandler(t, true, "secret", blockingSSE)
	if w := serve(router, httptest.NewRequest(http.MethodGet, "/events", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	_, router, _ := testEnvWithHandler(t, false, "", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	if w := serve(router, req); w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithHandler(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	if w := serve(router, req); w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// Asset tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return serve(router, req)
}

func TestUploadAndServeAsset(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")

	w := uploadFile(t, router, "cat.png", []byte("fake-png-data"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AssetUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename != "cat.png" || resp.Path != "assets/cat.png" || resp.Markdown != "![cat](assets/cat.png)" {
		t.Errorf("response = %+v", resp)
	}

	data, err := os.ReadFile(filepath.Join(vaultDir, "assets", "cat.png"))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if string(data) != "fake-png-data" {
		t.Errorf("content mismatch")
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/assets/cat.png", nil))
	if w.Code != http.StatusOK || w.Body.String() != "fake-png-data" {
		t.Errorf("serve = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestUploadAsset_NameTaken(t *testing.T) {
	_, router, _ := testEnvWithVault(t, false, "")

	if w := uploadFile(t, router, "cat.png", []byte("one")); w.Code != http.StatusCreated {
		t.Fatalf("first upload = %d", w.Code)
	}
	w := uploadFile(t, router, "cat.png", []byte("two"))
	if w.Code != http.StatusCreated {
		t.Fatalf("second upload = %d", w.Code)
	}
	var resp AssetUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename == "cat.png" || !strings.HasSuffix(resp.Filename, "-cat.png") {
		t.Errorf("filename = %q, want prefixed name", resp.Filename)
	}
}

func TestUploadAsset_DocumentRejected(t *testing.T) {
	_, router, _ := testEnvWithVault(t, false, "")
	if w := uploadFile(t, router, "sneaky.md", []byte("# Deck")); w.Code != http.StatusBadRequest {
		t.Errorf("document upload = %d, want 400", w.Code)
	}
}

func TestServeAsset_NotFound(t *testing.T) {
	ah := NewAssetHandler(nil, t.TempDir())
	r := chi.NewRouter()
	r.Get("/assets/{filename}", ah.ServeFile)
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/assets/nope.png", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", w.Code)
	}
}

func TestServeAsset_TraversalBlocked(t *testing.T) {
	ah := NewAssetHandler(nil, t.TempDir())
	r := chi.NewRouter()
	r.Get("/assets/{filename}", ah.ServeFile)

	for _, name := range []string{"../secret.md", "../../etc/passwd"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/assets/"+name, nil))
		// chi may not route the traversal paths at all (404), or our handler rejects (400).
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}

func TestUploadAsset_InvalidFilename(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")
	// multipart headers may clean "../" so we also verify file doesn't land outside.
	w := uploadFile(t, router, "../escape.txt", []byte("bad"))
	if w.Code == http.StatusCreated {
		if _, err := os.Stat(filepath.Join(vaultDir, "..", "escape.txt")); err == nil {
			t.Error("file escaped vault directory")
		}
	}
}

func TestUploadAsset_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithVault(t, true, "secret")
	if w := uploadFile(t, router, "x.png", []byte("data")); w.Code != http.StatusUnauthorized {
		t.Errorf("upload no auth = %d, want 401", w.Code)
	}
}

func TestUploadAsset_MissingFileField(t *testing.T) {
	_, router, _ := testEnvWithVault(t, false, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w := serve(router, req); w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestMoveDocument(t *testing.T) {
	_, router := testEnv(t, "")
	createDocument(t, router, "hello.md", helloDoc)
	createDocument(t, router, "taken.md", helloDoc)

	move := func(from, to string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(MoveDocumentRequest{From: from, To: to})
		return serve(router, httptest.NewRequest(http.MethodPost, "/move", bytes.NewReader(body)))
	}

	w := move("hello.md", "archive/hello.md")
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	var doc DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Path != "archive/hello.md" {
		t.Errorf("path = %q", doc.Path)
	}
	if w := serve(router, httptest.NewRequest(http.MethodGet, "/documents/hello.md", nil)); w.Code != http.StatusNotFound {
		t.Errorf("old path = %d, want 404", w.Code)
	}

	if w := move("archive/hello.md", "taken.md"); w.Code != http.StatusConflict {
		t.Errorf("move onto existing = %d, want 409", w.Code)
	}
	if w := move("nope.md", "other.md"); w.Code != http.StatusNotFound {
		t.Errorf("move missing = %d, want 404", w.Code)
	}
	if w := move("taken.md", "../escape.md"); w.Code != http.StatusBadRequest {
		t.Errorf("move outside vault = %d, want 400", w.Code)
	}
}
