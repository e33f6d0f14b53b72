// Package memory provides an in-memory run store, the default provider.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/relaycore/report-relay/internal/store"
)

// Store keeps a bounded window of recent runs in memory.
type Store struct {
	mu      sync.RWMutex
	runs    map[string]store.Run
	order   []string
	maxRuns int
}

// New creates a Store retaining at most maxRuns records.
func New(maxRuns int) *Store {
	if maxRuns <= 0 {
		maxRuns = 256
	}
	return &Store{
		runs:    make(map[string]store.Run),
		maxRuns: maxRuns,
	}
}

// CreateRun inserts the run, evicting the oldest record when over capacity.
func (s *Store) CreateRun(_ context.Context, run store.Run) error {
	if run.ID == "" {
		return fmt.Errorf("create run: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	for len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
	return nil
}

// UpdateRun replaces the stored record, inserting when absent.
func (s *Store) UpdateRun(ctx context.Context, run store.Run) error {
	return s.CreateRun(ctx, run)
}

// GetRun returns a run by id.
func (s *Store) GetRun(_ context.Context, id string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]store.Run, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out, nil
}
