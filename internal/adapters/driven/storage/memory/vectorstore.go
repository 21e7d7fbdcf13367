// Package memory provides in-memory implementations of the store ports.
// Contents are lost when the process exits; it backs ephemeral serve
// sessions and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore is an in-memory implementation of driven.VectorStore.
type VectorStore struct {
	mu         sync.RWMutex
	records    map[string]domain.IndexRecord
	model      string
	dimensions int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewVectorStore creates an empty store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		records: make(map[string]domain.IndexRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Upsert inserts or replaces records. The batch is applied under one lock.
func (s *VectorStore) Upsert(_ context.Context, records []domain.IndexRecord) error {
	for i := range records {
		if records[i].ID == "" {
			return &domain.StoreError{Op: "upsert", Err: fmt.Errorf("%w: record %d has no id", domain.ErrInvalidInput, i)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimensions > 0 {
		for i := range records {
			if n := len(records[i].Vector); n != s.dimensions {
				return &domain.StoreError{Op: "upsert", Err: fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
					domain.ErrDimensionMismatch, records[i].ID, n, s.dimensions)}
			}
		}
	}
	for i := range records {
		rec := records[i]
		rec.Vector = append([]float32(nil), rec.Vector...)
		rec.HeadingPath = append([]string(nil), rec.HeadingPath...)
		s.records[rec.ID] = rec
	}
	return nil
}

// Prune deletes the source's records not in live.
func (s *VectorStore) Prune(_ context.Context, sourceName string, live map[string]struct{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, rec := range s.records {
		if rec.SourceName != sourceName {
			continue
		}
		if _, ok := live[id]; !ok {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Query ranks by cosine similarity rescaled to [0,1].
func (s *VectorStore) Query(_ context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.ScoredChunk
	for _, rec := range s.records {
		if filter.SourceName != "" && rec.SourceName != filter.SourceName {
			continue
		}
		if len(rec.Vector) != len(vector) {
			return nil, &domain.StoreError{Op: "query", Err: fmt.Errorf("%w: chunk %s has %d dimensions, query has %d",
				domain.ErrDimensionMismatch, rec.ID, len(rec.Vector), len(vector))}
		}
		score := (cosine(vector, rec.Vector) + 1) / 2
		if score < filter.MinScore {
			continue
		}
		hits = append(hits, domain.ScoredChunk{Record: rec, Score: score})
	}
	return topK(hits, k), nil
}

// KeywordSearch scores records by query term occurrences in the title,
// headings and text, mapped to n/(1+n).
func (s *VectorStore) KeywordSearch(_ context.Context, text string, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	terms := tokenize(text)
	if k <= 0 || len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.ScoredChunk
	for _, rec := range s.records {
		if filter.SourceName != "" && rec.SourceName != filter.SourceName {
			continue
		}
		counts := make(map[string]int)
		for _, tok := range tokenize(rec.Title + " " + strings.Join(rec.HeadingPath, " ") + " " + rec.Text) {
			counts[tok]++
		}
		n := 0
		for _, t := range terms {
			n += counts[t]
		}
		if n == 0 {
			continue
		}
		score := float64(n) / float64(1+n)
		if score < filter.MinScore {
			continue
		}
		hits = append(hits, domain.ScoredChunk{Record: rec, Score: score})
	}
	return topK(hits, k), nil
}

// GetByIdentifier returns one record or domain.ErrNotFound.
func (s *VectorStore) GetByIdentifier(_ context.Context, id string) (*domain.IndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return &rec, nil
}

// DocumentChunkIDs returns the stored identifiers of one document in ordinal order.
func (s *VectorStore) DocumentChunkIDs(_ context.Context, sourceName, documentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []domain.IndexRecord
	for _, rec := range s.records {
		if rec.SourceName == sourceName && rec.DocumentID == documentID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Ordinal < recs[j].Ordinal })

	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].ID
	}
	return ids, nil
}

// LockSource serialises writers of one source.
func (s *VectorStore) LockSource(sourceName string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[sourceName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sourceName] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// EnsureDimensions records the model and size on first use.
func (s *VectorStore) EnsureDimensions(_ context.Context, model string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimensions == 0 {
		s.model = model
		s.dimensions = dimensions
		return nil
	}
	if s.dimensions != dimensions || s.model != model {
		return fmt.Errorf("%w: index was built with %s (%d dimensions), embedder is %s (%d dimensions)",
			domain.ErrDimensionMismatch, s.model, s.dimensions, model, dimensions)
	}
	return nil
}

// Stats summarises the store.
func (s *VectorStore) Stats(_ context.Context) (*domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.IndexStats{
		TotalChunks:    len(s.records),
		ChunksBySource: make(map[string]int),
		Model:          s.model,
		Dimensions:     s.dimensions,
	}
	for _, rec := range s.records {
		stats.ChunksBySource[rec.SourceName]++
	}
	return stats, nil
}

// Reset deletes every record and forgets the recorded model.
func (s *VectorStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.IndexRecord)
	s.model, s.dimensions = "", 0
	return nil
}

// Close is a no-op.
func (s *VectorStore) Close() error {
	return nil
}

func topK(hits []domain.ScoredChunk, k int) []domain.ScoredChunk {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
