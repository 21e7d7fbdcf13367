package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// FetcherRegistry maps source kinds to the fetchers that handle them.
type FetcherRegistry struct {
	mu       sync.RWMutex
	fetchers map[domain.SourceKind]driven.Fetcher
}

// NewFetcherRegistry creates a registry with the given fetchers.
func NewFetcherRegistry(fetchers ...driven.Fetcher) *FetcherRegistry {
	r := &FetcherRegistry{fetchers: make(map[domain.SourceKind]driven.Fetcher)}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds f for its kind, replacing any earlier fetcher.
func (r *FetcherRegistry) Register(f driven.Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Kind()] = f
}

// Get returns the fetcher for kind.
func (r *FetcherRegistry) Get(kind domain.SourceKind) (driven.Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for source kind %q", domain.ErrUnsupportedType, kind)
	}
	return f, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *FetcherRegistry) Kinds() []domain.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.SourceKind, 0, len(r.fetchers))
	for k := range r.fetchers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
