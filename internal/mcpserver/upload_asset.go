package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mdeck/internal/assets"
)

type uploadResult struct {
	SavedPath     string `json:"savedPath"`
	MarkdownImage string `json:"markdownImage"`
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	src, err := assets.Load(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := src.Name
	if n := optionalString(req, "filename"); n != "" {
		name = n
	}
	if name = assets.SanitizeName(name); name == "" {
		name = uuid.NewString() + src.Ext
	}
	if s.svc.AssetExists(name) {
		name = uuid.NewString()[:8] + "-" + name
	}

	ext := filepath.Ext(name)
	if err := assets.CheckContent(src.Data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rel, err := s.svc.StoreAsset(ctx, name, src.Data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save asset: %v", err)), nil
	}

	return jsonResult(uploadResult{
		SavedPath:     rel,
		MarkdownImage: fmt.Sprintf("![%s](%s)", strings.TrimSuffix(name, ext), rel),
	})
}
