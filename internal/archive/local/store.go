// Package local archives artifacts to a directory on disk.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes artifacts and sidecar metadata under a root directory.
type Store struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Save writes the artifact to <root>/<key> and metadata to <key>.meta.json.
func (s *Store) Save(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("archive canceled: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("archive: empty key")
	}
	target := filepath.Join(s.root, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create archive subdir for %s: %w", target, err)
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("write archive file %s: %w", target, err)
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal archive metadata: %w", err)
		}
		if err := os.WriteFile(target+".meta.json", meta, 0o600); err != nil {
			return "", fmt.Errorf("write archive metadata for %s: %w", target, err)
		}
	}
	return target, nil
}
