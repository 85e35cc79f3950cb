package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/segmentio/ksuid"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 5 << 20 // 5 MB

var (
	// ErrTooLarge is returned when the upload exceeds MaxFileSize.
	ErrTooLarge = errors.New("file exceeds maximum size")
	// ErrUnsupportedType is returned for anything that is not an allowed image.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// allowedTypes maps accepted sniffed MIME types to object key extensions.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Result describes a stored upload.
type Result struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Service validates and stores image uploads.
type Service struct {
	store *ObjectStore
	now   func() time.Time
}

// NewService creates an upload service on top of the object store.
func NewService(store *ObjectStore) *Service {
	return &Service{store: store, now: time.Now}
}

// DetectImageType sniffs the content and returns the MIME type and key
// extension, or ErrUnsupportedType. The declared Content-Type header is
// ignored on purpose; only the bytes decide.
func DetectImageType(data []byte) (mime, ext string, err error) {
	mime = http.DetectContentType(data)
	ext, ok := allowedTypes[mime]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}
	return mime, ext, nil
}

// Upload reads at most MaxFileSize bytes from r, validates the content is an
// allowed image type, and stores it under a date-prefixed key.
func (s *Service) Upload(ctx context.Context, r io.Reader) (*Result, error) {
	// Read one extra byte so an oversized body is detected without
	// buffering the whole thing.
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}

	mime, ext, err := DetectImageType(data)
	if err != nil {
		return nil, err
	}

	key := s.buildObjectKey(ext)
	if err := s.store.Put(ctx, key, data, mime); err != nil {
		return nil, err
	}

	return &Result{
		Key:         key,
		URL:         s.store.PublicURL(key),
		ContentType: mime,
		Size:        int64(len(data)),
	}, nil
}

// buildObjectKey produces keys like 2026/08/28/<ksuid>.png so buckets stay
// browsable by day.
func (s *Service) buildObjectKey(ext string) string {
	now := s.now().UTC()
	return path.Join(now.Format("2006/01/02"), ksuid.New().String()+ext)
}
