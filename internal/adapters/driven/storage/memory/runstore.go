package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.RunSummary
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]domain.RunSummary)}
}

// RecordRun stores a run summary, replacing any run with the same ID.
func (s *RunStore) RecordRun(_ context.Context, summary *domain.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[summary.RunID] = *summary
	return nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.sorted()
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// PruneRuns keeps only the keep most recent runs.
func (s *RunStore) PruneRuns(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := s.sorted()
	for i := range runs {
		if i >= keep {
			delete(s.runs, runs[i].RunID)
		}
	}
	return nil
}

func (s *RunStore) sorted() []domain.RunSummary {
	runs := make([]domain.RunSummary, 0, len(s.runs))
	for id := range s.runs {
		runs = append(runs, s.runs[id])
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs
}
