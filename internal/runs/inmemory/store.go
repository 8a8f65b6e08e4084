// Package inmemory is the in-memory runs.Store. Data is lost on
// restart; screening results live in the exported workbooks, so the
// store only loses bookkeeping.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/offshore-radar/internal/runs"
)

// Store is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*runs.ScreeningRun
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*runs.ScreeningRun)}
}

// SaveRun implements runs.Store.
func (s *Store) SaveRun(ctx context.Context, run *runs.ScreeningRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

// GetRun implements runs.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (*runs.ScreeningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	cp := *run
	return &cp, nil
}

// ListRuns implements runs.Store. Results are ordered newest first.
func (s *Store) ListRuns(ctx context.Context, filter runs.Filter) ([]*runs.ScreeningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*runs.ScreeningRun
	for _, run := range s.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*runs.ScreeningRun{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateStatus implements runs.Store.
func (s *Store) UpdateStatus(ctx context.Context, runID string, status runs.Status, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}

	run.Status = status
	if errorMsg != "" {
		run.Error = errorMsg
	}
	return nil
}

var _ runs.Store = (*Store)(nil)
