package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/normalisers"
	"github.com/custodia-labs/sercha-docs/internal/postprocessors/chunker"
)

// --- Mock implementations for service testing ---

// mockFetcher serves canned documents per source.
type mockFetcher struct {
	kind domain.SourceKind

	mu     sync.Mutex
	docs   map[string][]*domain.FetchedDocument
	failed map[string][]string
	gone   map[string][]string
	err    error
	calls  int
	names  []string
}

func newMockFetcher(kind domain.SourceKind) *mockFetcher {
	return &mockFetcher{
		kind:   kind,
		docs:   make(map[string][]*domain.FetchedDocument),
		failed: make(map[string][]string),
		gone:   make(map[string][]string),
	}
}

func (m *mockFetcher) Kind() domain.SourceKind { return m.kind }

func (m *mockFetcher) set(source string, docs ...*domain.FetchedDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[source] = docs
}

func (m *mockFetcher) setFailed(source string, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[source] = ids
}

// setGone makes ids fail with a terminal 404.
func (m *mockFetcher) setGone(source string, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gone[source] = ids
}

func (m *mockFetcher) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockFetcher) Fetch(ctx context.Context, source domain.Source, emit driven.EmitFunc) (*domain.FetchStats, error) {
	m.mu.Lock()
	m.calls++
	m.names = append(m.names, source.Name)
	docs := m.docs[source.Name]
	failed := m.failed[source.Name]
	gone := m.gone[source.Name]
	fetchErr := m.err
	m.mu.Unlock()

	stats := &domain.FetchStats{Discovered: len(docs) + len(failed) + len(gone)}
	for _, id := range failed {
		stats.RecordFailure(id, &domain.FetchError{Identifier: id, Transient: true, Err: errors.New("timeout")})
	}
	for _, id := range gone {
		stats.RecordFailure(id, &domain.FetchError{Identifier: id, StatusCode: 404})
	}
	if fetchErr != nil {
		return stats, fetchErr
	}
	for _, doc := range docs {
		stats.Attempts++
		stats.Fetched++
		stats.TotalBytes += int64(len(doc.Content))
		if err := emit(ctx, doc); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// mockEmbedder maps text to a bag-of-words vector, so texts sharing words
// are close.
type mockEmbedder struct {
	dims  int
	model string

	poison  string // texts containing it fail to embed
	pingErr error
	calls   atomic.Int32
	closed  atomic.Int32
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: 64, model: "mock-embed"}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if m.poison != "" && strings.Contains(text, m.poison) {
			return nil, &domain.EmbeddingError{Err: fmt.Errorf("%w: model crashed", domain.ErrEmbeddingUnavailable)}
		}
		vectors[i] = bagOfWords(text, m.dims)
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimensions() int   { return m.dims }
func (m *mockEmbedder) ModelName() string { return m.model }

func (m *mockEmbedder) Ping(context.Context) error { return m.pingErr }

func (m *mockEmbedder) Close() error {
	m.closed.Add(1)
	return nil
}

func bagOfWords(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// faultyStore fails writes on demand.
type faultyStore struct {
	*memory.VectorStore
	failUpsert atomic.Bool
	closed     atomic.Int32
}

func (s *faultyStore) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if s.failUpsert.Load() {
		return &domain.StoreError{Op: "upsert", Err: errors.New("disk full")}
	}
	return s.VectorStore.Upsert(ctx, records)
}

func (s *faultyStore) Close() error {
	s.closed.Add(1)
	return s.VectorStore.Close()
}

// mockMetrics records what it observes.
type mockMetrics struct {
	mu      sync.Mutex
	runs    []*domain.RunSummary
	dropped int
	queries []domain.QueryType
	errs    []error
}

func (m *mockMetrics) ObserveRun(summary *domain.RunSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, summary)
}

func (m *mockMetrics) ObserveTriggerDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *mockMetrics) ObserveQuery(qt domain.QueryType, _ time.Duration, _ int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, qt)
	m.errs = append(m.errs, err)
}

func (m *mockMetrics) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func (m *mockMetrics) droppedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// --- Fixtures ---

func websiteSource(name string) domain.Source {
	return domain.Source{
		Name:    name,
		Kind:    domain.SourceKindWebsite,
		Enabled: true,
		Website: &domain.WebsiteSource{URL: "https://" + name + ".example.com/"},
	}
}

// sentences returns n words of prose on topic, split into sentences.
func sentences(topic string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s%d", topic, i%7)
		if i%8 == 7 {
			b.WriteByte('.')
		}
	}
	b.WriteByte('.')
	return b.String()
}

func markdownDoc(source, id, title, body string) *domain.FetchedDocument {
	content := "# " + title + "\n\n" + body + "\n"
	return &domain.FetchedDocument{
		SourceName:  source,
		Identifier:  id,
		Content:     []byte(content),
		ContentHash: domain.HashContent([]byte(content)),
		FetchedAt:   time.Now(),
		Kind:        domain.ContentKindMarkdown,
		Title:       title,
	}
}

// harness is a pipeline over in-memory adapters.
type harness struct {
	pipeline *IngestionPipeline
	store    *faultyStore
	runs     *memory.RunStore
	web      *mockFetcher
	embedder *mockEmbedder
	metrics  *mockMetrics
	chunker  *chunker.Processor
}

func newHarness(t *testing.T, sources ...domain.Source) *harness {
	t.Helper()
	h := &harness{
		store:    &faultyStore{VectorStore: memory.NewVectorStore()},
		runs:     memory.NewRunStore(),
		web:      newMockFetcher(domain.SourceKindWebsite),
		embedder: newMockEmbedder(),
		metrics:  &mockMetrics{},
		chunker:  chunker.New(chunker.WithTargetTokens(30), chunker.WithMinTokens(5), chunker.WithOverlap(5)),
	}
	h.pipeline = NewIngestionPipeline(
		sources,
		NewFetcherRegistry(h.web),
		normalisers.Default(),
		h.chunker,
		h.embedder,
		h.store,
		WithRunStore(h.runs),
		WithMetrics(h.metrics),
		WithBatchSize(4),
	)
	return h
}

func (h *harness) run(t *testing.T, names ...string) *domain.RunSummary {
	t.Helper()
	summary, err := h.pipeline.Run(context.Background(), domain.TriggerManual, names...)
	require.NoError(t, err)
	require.NotNil(t, summary)
	return summary
}

func (h *harness) chunkIDs(t *testing.T, source, doc string) []string {
	t.Helper()
	ids, err := h.store.DocumentChunkIDs(context.Background(), source, doc)
	require.NoError(t, err)
	return ids
}

func (h *harness) total(t *testing.T) int {
	t.Helper()
	stats, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	return stats.TotalChunks
}
