// Package memory keeps archived report metadata in process memory. The SQL
// backends embed it and persist every write.
package memory

import (
	"context"
	"errors"
	"sync"

	"rocklandcensus/internal/reports"
)

var _ reports.Store = (*Store)(nil)

// Store is a map of reports guarded by an RWMutex.
type Store struct {
	mu      sync.RWMutex
	reports map[string]reports.Report
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{reports: make(map[string]reports.Report)}
}

// Save upserts r.
func (s *Store) Save(_ context.Context, r reports.Report) error {
	if r.ID == "" {
		return errors.New("report id required")
	}
	s.mu.Lock()
	s.reports[r.ID] = r.Clone()
	s.mu.Unlock()
	return nil
}

// Get returns the report with id.
func (s *Store) Get(_ context.Context, id string) (reports.Report, bool, error) {
	s.mu.RLock()
	r, ok := s.reports[id]
	s.mu.RUnlock()
	if !ok {
		return reports.Report{}, false, nil
	}
	return r.Clone(), true, nil
}

// List returns reports newest first.
func (s *Store) List(_ context.Context, limit int) ([]reports.Report, error) {
	return s.Snapshot(limit), nil
}

// Snapshot copies up to limit reports, newest first.
func (s *Store) Snapshot(limit int) []reports.Report {
	s.mu.RLock()
	out := make([]reports.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()
	reports.SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Import replaces the contents with rs.
func (s *Store) Import(rs []reports.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = make(map[string]reports.Report, len(rs))
	for _, r := range rs {
		s.reports[r.ID] = r.Clone()
	}
}

// Close implements reports.Store.
func (s *Store) Close() error { return nil }
