package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestLoad_DataURI(t *testing.T) {
	src, err := Load(context.Background(), dataURI("image/png", pngHeader))
	if err != nil {
		t.Fatal(err)
	}
	if src.Ext != ".png" || !strings.HasSuffix(src.Name, ".png") || len(src.Data) != len(pngHeader) {
		t.Errorf("source = %+v", src)
	}
}

func TestLoad_DataURIRejected(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"missing comma", "data:image/png;base64"},
		{"not base64", "data:image/png,plain"},
		{"bad payload", "data:image/png;base64,!!!"},
		{"unsupported mime", dataURI("text/plain", []byte("hello"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(context.Background(), tt.ref); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	big := make([]byte, MaxSourceSize+1)
	copy(big, pngHeader)
	_, err := Load(context.Background(), dataURI("image/png", big))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestLoad_BlockedHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	for _, ref := range []string{srv.URL + "/x.png", "http://169.254.169.254/latest", "http://metadata.google.internal/"} {
		if _, err := Load(context.Background(), ref); !errors.Is(err, ErrBlockedHost) {
			t.Errorf("%s: err = %v, want ErrBlockedHost", ref, err)
		}
	}
}

func TestLoad_BadScheme(t *testing.T) {
	if _, err := Load(context.Background(), "ftp://example.com/x.png"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"cat.png":          "cat.png",
		"my cat (1).png":   "my_cat__1_.png",
		"../../etc/passwd": "passwd",
		`dir\evil.png`:     "evil.png",
		".hidden.png":      "hidden.png",
		"...":              "",
	}
	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckContent(t *testing.T) {
	if err := CheckContent(pngHeader, ".png"); err != nil {
		t.Errorf("png: %v", err)
	}
	if err := CheckContent(pngHeader, ".jpg"); err == nil {
		t.Error("png content with jpg extension should fail")
	}
	if err := CheckContent([]byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"/>`), ".SVG"); err != nil {
		t.Errorf("svg: %v", err)
	}
	if err := CheckContent([]byte("plain"), ".svg"); err == nil {
		t.Error("non-svg content should fail")
	}
	if err := CheckContent(pngHeader, ".exe"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("exe: err = %v, want ErrUnsupportedType", err)
	}
}
