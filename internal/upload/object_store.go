package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cbums/cbums/internal/config"
)

// ObjectStore wraps an S3-compatible client for image storage.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

// NewObjectStore connects to the configured S3-compatible endpoint.
func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing storage endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing object store client: %w", err)
	}

	return &ObjectStore{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the upload bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

// Put writes an object and returns nothing; callers build the public URL via
// PublicURL.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

// Remove deletes an object from the bucket.
func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing object %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the address clients use to fetch an uploaded object.
func (s *ObjectStore) PublicURL(key string) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	return base + "/" + s.cfg.Bucket + "/" + key
}
