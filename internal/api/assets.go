package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/mdeck/internal/assets"
	"github.com/starford/mdeck/internal/deckservice"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AssetHandler serves and accepts files referenced by note images.
type AssetHandler struct {
	svc       *deckservice.Service
	vaultRoot string
}

// NewAssetHandler creates a handler rooted at the vault directory.
func NewAssetHandler(svc *deckservice.Service, vaultRoot string) *AssetHandler {
	return &AssetHandler{svc: svc, vaultRoot: vaultRoot}
}

func (h *AssetHandler) assetPath() string {
	return filepath.Join(h.vaultRoot, deckservice.AssetDir)
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the asset dir.
func (h *AssetHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.assetPath(), cleaned)
	if !strings.HasPrefix(abs, h.assetPath()+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes asset directory")
	}
	return abs, nil
}

// uploadName turns a client file name into a safe asset name. A name that
// is already taken gets a random prefix.
func (h *AssetHandler) uploadName(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if name = assets.SanitizeName(name); name == "" {
		return "", fmt.Errorf("invalid filename")
	}
	if h.svc.AssetExists(name) {
		name = uuid.NewString()[:8] + "-" + name
	}
	return name, nil
}

// ServeFile handles GET /assets/{filename}.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	abs, err := h.safeName(filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/assets (multipart/form-data, field "file").
//
//	@Summary		Upload an asset for use in note images
//	@Tags			assets
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"Asset file"
//	@Success		201		{object}	AssetUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets [post]
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := h.uploadName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	rel, err := h.svc.StoreAsset(r.Context(), name, data)
	if err != nil {
		slog.Warn("asset upload rejected", slog.String("filename", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	alt := strings.TrimSuffix(name, filepath.Ext(name))
	writeJSON(w, http.StatusCreated, AssetUploadResponse{
		Filename: name,
		Path:     rel,
		Size:     int64(len(data)),
		URL:      "/" + rel,
		Markdown: fmt.Sprintf("![%s](%s)", alt, rel),
	})
}
