// Package markup extracts mdeck specific inline markup (tags, images) from Markdown text.
package markup

import (
	"log/slog"
	"path"
	"regexp"
	"strings"
)

var (
	// `{=:tag one, tag_two:=}`
	tagRe = regexp.MustCompile("`\\{=:\\s*(.*?)\\s*:=\\}`")
	// ![alt](path){ width=100px, height=20px }
	imageRe = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)(?:\{(?:\s*?width\s*?=(.+?)[\s,;]*?)?(?:\s*?height\s*?=(.+?)[\s,;]*?)?\})?`)
)

// Image is a Markdown image reference.
type Image struct {
	Alt    string
	Path   string
	Width  string
	Height string
}

// Remote reports whether the image points to an http(s) URL.
func (i Image) Remote() bool {
	return isRemote(i.Path)
}

// Tags returns the deduplicated tags declared in text, in order of appearance.
// Whitespace inside a tag is replaced with underscores and reported on logger.
func Tags(logger *slog.Logger, text string) []string {
	if logger == nil {
		logger = slog.Default()
	}
	var out []string
	seen := make(map[string]struct{})
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		for _, raw := range strings.Split(m[1], ",") {
			tag := strings.TrimSpace(raw)
			if strings.Contains(tag, " ") {
				fixed := strings.ReplaceAll(tag, " ", "_")
				logger.Warn("tag contains whitespace, rewritten",
					slog.String("tag", tag),
					slog.String("rewritten", fixed))
				tag = fixed
			}
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// FormatTags renders tags as tag markup, or "" for an empty list.
func FormatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "`{=:" + strings.Join(tags, ", ") + ":=}`"
}

// Images returns every image reference in text.
func Images(text string) []Image {
	matches := imageRe.FindAllStringSubmatch(text, -1)
	out := make([]Image, 0, len(matches))
	for _, m := range matches {
		out = append(out, Image{
			Alt:    m[1],
			Path:   m[2],
			Width:  strings.TrimSpace(m[3]),
			Height: strings.TrimSpace(m[4]),
		})
	}
	return out
}

// LocalFiles returns the deduplicated non-URL image paths used in text.
func LocalFiles(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, img := range Images(text) {
		if img.Remote() || img.Path == "" {
			continue
		}
		if _, dup := seen[img.Path]; dup {
			continue
		}
		seen[img.Path] = struct{}{}
		out = append(out, img.Path)
	}
	return out
}

// RewriteLocalPaths points every local image at dir/<file name>. An empty dir
// leaves the bare file name. Remote images are left untouched.
func RewriteLocalPaths(text, dir string) string {
	return imageRe.ReplaceAllStringFunc(text, func(match string) string {
		m := imageRe.FindStringSubmatch(match)
		p := m[2]
		if p == "" || isRemote(p) {
			return match
		}
		name := path.Base(strings.ReplaceAll(p, `\`, "/"))
		if dir != "" {
			name = path.Join(dir, name)
		}
		return strings.Replace(match, "("+p+")", "("+name+")", 1)
	})
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}
