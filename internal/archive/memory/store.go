// Package memory provides an in-memory artifact archive for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Entry captures one archived artifact.
type Entry struct {
	Data     []byte
	Metadata map[string]string
}

// Store holds archived artifacts in memory.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Save records the artifact under key.
func (s *Store) Save(_ context.Context, key string, data []byte, metadata map[string]string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("archive: empty key")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.mu.Lock()
	s.entries[key] = Entry{Data: cp, Metadata: meta}
	s.mu.Unlock()
	return "memory://" + key, nil
}

// Get returns an archived entry.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}
