// Package gcs provides an artifact archive backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to archive artifacts in GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Store writes relayed artifacts to a configured GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed archive around an existing client.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Connect initializes a new GCS client and verifies the bucket is reachable.
// Authentication is handled via Application Default Credentials.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("bucket %q attrs: %w (close client: %v)", cfg.Bucket, err, closeErr)
		}
		return nil, fmt.Errorf("bucket %q attrs: %w", cfg.Bucket, err)
	}
	return New(client, cfg)
}

// Save uploads the artifact to the bucket and returns a gs:// URI.
func (s *Store) Save(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	object := key
	if s.prefix != "" {
		object = s.prefix + "/" + key
	}
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/pdf"
	if len(metadata) > 0 {
		writer.Metadata = metadata
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object %s: %w (close writer: %v)", object, err, closeErr)
		}
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
