package upload

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// Minimal valid file headers per format. http.DetectContentType only needs
// the magic bytes.
var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0}
	gifHeader  = []byte("GIF89a\x00\x00")
	webpHeader = append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 8)...)
)

func TestDetectImageType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantExt  string
		wantErr  bool
	}{
		{"png", pngHeader, "image/png", ".png", false},
		{"jpeg", jpegHeader, "image/jpeg", ".jpg", false},
		{"gif", gifHeader, "image/gif", ".gif", false},
		{"webp", webpHeader, "image/webp", ".webp", false},
		{"pdf rejected", []byte("%PDF-1.4"), "", "", true},
		{"text rejected", []byte("hello world"), "", "", true},
		{"svg rejected", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, ext, err := DetectImageType(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedType) {
					t.Fatalf("expected ErrUnsupportedType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mime != tt.wantMIME {
				t.Errorf("mime = %q, want %q", mime, tt.wantMIME)
			}
			if ext != tt.wantExt {
				t.Errorf("ext = %q, want %q", ext, tt.wantExt)
			}
		})
	}
}

func TestBuildObjectKey(t *testing.T) {
	s := &Service{now: func() time.Time {
		return time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)
	}}

	key := s.buildObjectKey(".png")
	if !strings.HasPrefix(key, "2026/08/28/") {
		t.Errorf("key %q missing date prefix", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Errorf("key %q missing extension", key)
	}

	// Keys must be unique per call.
	if s.buildObjectKey(".png") == key {
		t.Error("expected distinct keys for successive uploads")
	}
}
