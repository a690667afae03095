package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSourceSize limits assets loaded from a URL or data URI.
const MaxSourceSize = 10 << 20

var (
	// ErrUnsupportedType is returned for content outside the image and PDF
	// types notes may embed.
	ErrUnsupportedType = errors.New("unsupported asset type")
	// ErrTooLarge is returned when a source exceeds MaxSourceSize.
	ErrTooLarge = errors.New("asset too large")
	// ErrBlockedHost is returned for loopback and cloud metadata hosts.
	ErrBlockedHost = errors.New("blocked host")
)

var (
	mimeExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	embeddable = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

	metadataIP = net.ParseIP("169.254.169.254")
)

// Source is an asset loaded from a URL or a data URI.
type Source struct {
	Name string
	Ext  string
	Data []byte
}

// Load reads an asset from a base64 data URI or downloads it from an
// http(s) URL. Name is taken from the URL path when it has an extension,
// otherwise a random name is used.
func Load(ctx context.Context, ref string) (*Source, error) {
	var (
		src *Source
		err error
	)
	if strings.HasPrefix(ref, "data:") {
		src, err = decodeDataURI(ref)
	} else {
		src, err = download(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if len(src.Data) > MaxSourceSize {
		return nil, fmt.Errorf("assets: %w: %d bytes (max %d)", ErrTooLarge, len(src.Data), MaxSourceSize)
	}
	if src.Name == "" {
		ext := src.Ext
		if ext == "" {
			ext = ".bin"
		}
		src.Name = uuid.NewString() + ext
	}
	return src, nil
}

// SanitizeName reduces name to its base name with unsafe characters
// replaced. It returns "" when nothing usable is left.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameRe.ReplaceAllString(name, "_")
	return strings.TrimLeft(name, ".")
}

// CheckContent verifies that data is an embeddable type matching ext.
func CheckContent(data []byte, ext string) error {
	ext = strings.ToLower(ext)
	if !embeddable[ext] {
		return fmt.Errorf("assets: %w: %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ErrUnsupportedType, ext)
	}
	if ext == ".svg" {
		head := data[:min(len(data), 1024)]
		if !bytes.Contains(head, []byte("<svg")) {
			return fmt.Errorf("assets: content is not an SVG image")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	got := mimeExt[strings.Split(detected, ";")[0]]
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if got != ext {
		return fmt.Errorf("assets: content does not match extension %s (detected %s)", ext, detected)
	}
	return nil
}

func decodeDataURI(uri string) (*Source, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("assets: invalid data URI: missing comma")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("assets: only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("assets: invalid base64 data: %w", err)
		}
	}

	mime, _, _ := strings.Cut(mediaType, ";")
	ext, ok := mimeExt[mime]
	if !ok {
		return nil, fmt.Errorf("assets: %w: %s", ErrUnsupportedType, mime)
	}
	return &Source{Ext: ext, Data: data}, nil
}

func download(ctx context.Context, rawURL string) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("assets: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("assets: unsupported scheme %q (only http and https)", u.Scheme)
	}
	if err := guardHost(u.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("assets: too many redirects")
			}
			return guardHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("assets: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assets: download: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceSize+1))
	if err != nil {
		return nil, fmt.Errorf("assets: read body: %w", err)
	}

	mime, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	src := &Source{Ext: mimeExt[strings.TrimSpace(mime)], Data: data}
	if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." {
		src.Name = base
	}
	return src, nil
}

// guardHost rejects loopback and cloud metadata addresses. Unresolvable
// hosts are left for the HTTP client to report.
func guardHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("assets: %w: %s", ErrBlockedHost, host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil
		}
		ip = ips[0]
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.Equal(metadataIP) {
		return fmt.Errorf("assets: %w: %s", ErrBlockedHost, host)
	}
	return nil
}
