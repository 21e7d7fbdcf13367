package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

type queryFixture struct {
	service  *QueryService
	store    *memory.VectorStore
	embedder *mockEmbedder
	metrics  *mockMetrics
}

func newQueryFixture(t *testing.T, texts map[string]string) *queryFixture {
	t.Helper()
	f := &queryFixture{
		store:    memory.NewVectorStore(),
		embedder: newMockEmbedder(),
		metrics:  &mockMetrics{},
	}
	ctx := context.Background()
	require.NoError(t, f.store.EnsureDimensions(ctx, f.embedder.ModelName(), f.embedder.Dimensions()))

	records := make([]domain.IndexRecord, 0, len(texts))
	for id, text := range texts {
		vec, err := f.embedder.Embed(ctx, text)
		require.NoError(t, err)
		records = append(records, domain.IndexRecord{
			EmbeddedChunk: domain.EmbeddedChunk{
				Chunk: domain.Chunk{
					ID:          id,
					SourceName:  "docs",
					DocumentID:  "https://docs.example.com/" + id,
					Text:        text,
					TokenCount:  len(strings.Fields(text)),
					Title:       strings.ToUpper(id[:1]) + id[1:],
					HeadingPath: []string{"Guide"},
				},
				Vector: vec,
			},
			IndexedAt: time.Now(),
		})
	}
	require.NoError(t, f.store.Upsert(ctx, records))

	f.service = NewQueryService(f.store, f.embedder, f.metrics)
	return f
}

func guideChunks() map[string]string {
	return map[string]string{
		"install":   "install the cli with homebrew on macos",
		"configure": "configure sources in the config file using toml",
		"query":     "query the index with semantic or keyword search",
	}
}

func TestQuery_Validation(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	tests := []struct {
		name     string
		text     string
		limit    int
		qt       domain.QueryType
		minScore float64
	}{
		{"empty query", "   ", 5, "", 0},
		{"limit too large", "install", 51, "", 0},
		{"negative limit", "install", -1, "", 0},
		{"min score above one", "install", 5, "", 1.5},
		{"negative min score", "install", 5, "", -0.1},
		{"unknown query type", "install", 5, "fuzzy", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Query(context.Background(), tt.text, tt.limit, tt.qt, tt.minScore)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestQuery_Semantic(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	resp, err := f.service.Query(context.Background(), "install homebrew", 3, "", 0)
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, "install", top.ChunkID)
	assert.Equal(t, "docs", top.SourceName)
	assert.Equal(t, "Install", top.Title)
	assert.Equal(t, []string{"Guide"}, top.HeadingPath)
	assert.Equal(t, domain.QueryTypeSemantic, top.MatchType)
	assert.Equal(t, domain.QueryTypeSemantic, resp.Info.QueryType)
	assert.Equal(t, "install homebrew", resp.Info.Query)
	assert.Equal(t, len(resp.Results), resp.Info.TotalResults)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestQuery_DefaultLimit(t *testing.T) {
	texts := make(map[string]string)
	for i := 0; i < 8; i++ {
		texts[fmt.Sprintf("chunk%d", i)] = fmt.Sprintf("documentation page number %d", i)
	}
	f := newQueryFixture(t, texts)

	resp, err := f.service.Query(context.Background(), "documentation page", 0, "", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Results, domain.DefaultQueryLimit)
}

func TestQuery_Keyword(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	resp, err := f.service.Query(context.Background(), "toml", 5, domain.QueryTypeKeyword, 0)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "configure", resp.Results[0].ChunkID)
	assert.Equal(t, domain.QueryTypeKeyword, resp.Results[0].MatchType)
}

func TestQuery_SemanticEmbeddingFailure(t *testing.T) {
	f := newQueryFixture(t, guideChunks())
	f.embedder.poison = "poisoned"

	_, err := f.service.Query(context.Background(), "poisoned query", 5, domain.QueryTypeSemantic, 0)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestQuery_Hybrid(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	resp, err := f.service.Query(context.Background(), "install cli", 5, domain.QueryTypeHybrid, 0)
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, "install", top.ChunkID)
	assert.Equal(t, domain.QueryTypeHybrid, top.MatchType, "found by both rankings")
	assert.InDelta(t, 1.0, top.Score, 1e-9)
	for _, r := range resp.Results {
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestQuery_HybridFallsBackToKeyword(t *testing.T) {
	f := newQueryFixture(t, guideChunks())
	f.embedder.poison = "toml"

	resp, err := f.service.Query(context.Background(), "toml", 5, domain.QueryTypeHybrid, 0)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "configure", resp.Results[0].ChunkID)
	assert.Equal(t, domain.QueryTypeKeyword, resp.Results[0].MatchType)
}

func TestQuery_HybridMinScore(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	resp, err := f.service.Query(context.Background(), "install cli", 5, domain.QueryTypeHybrid, 0.9)
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.9)
	}
}

func TestReciprocalRankFusion(t *testing.T) {
	hit := func(id string) domain.ScoredChunk {
		var rec domain.IndexRecord
		rec.ID = id
		return domain.ScoredChunk{Record: rec}
	}

	fused := reciprocalRankFusion(
		[]domain.ScoredChunk{hit("a"), hit("b")},
		[]domain.ScoredChunk{hit("b"), hit("c")},
		60,
	)

	require.Len(t, fused, 3)
	assert.Equal(t, "b", fused[0].hit.Record.ID)
	assert.Equal(t, domain.QueryTypeHybrid, fused[0].matchType)
	assert.InDelta(t, (1.0/62+1.0/61)/(2.0/61), fused[0].score, 1e-12)

	assert.Equal(t, "a", fused[1].hit.Record.ID)
	assert.Equal(t, domain.QueryTypeSemantic, fused[1].matchType)
	assert.Equal(t, "c", fused[2].hit.Record.ID)
	assert.Equal(t, domain.QueryTypeKeyword, fused[2].matchType)
}

func TestQuery_GetChunk(t *testing.T) {
	f := newQueryFixture(t, guideChunks())
	ctx := context.Background()

	rec, err := f.service.GetChunk(ctx, "install")
	require.NoError(t, err)
	assert.Equal(t, "install the cli with homebrew on macos", rec.Text)
	assert.Len(t, rec.Vector, 64)

	_, err = f.service.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.service.GetChunk(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuery_Stats(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	stats, err := f.service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 3, stats.ChunksBySource["docs"])
	assert.Equal(t, "mock-embed", stats.Model)
}

func TestQuery_ReportsTelemetry(t *testing.T) {
	f := newQueryFixture(t, guideChunks())

	_, err := f.service.Query(context.Background(), "install", 5, "", 0)
	require.NoError(t, err)
	_, err = f.service.Query(context.Background(), "", 5, domain.QueryTypeKeyword, 0)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return f.metrics.queryCount() == 2
	}, time.Second, 5*time.Millisecond)

	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	assert.ElementsMatch(t, []domain.QueryType{domain.QueryTypeSemantic, domain.QueryTypeKeyword}, f.metrics.queries)
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{"short text unchanged", "hello world", 20, "hello world"},
		{"whitespace collapsed", "hello \n\n  world", 20, "hello world"},
		{"cut at word boundary", "the quick brown fox jumps", 12, "the quick..."},
		{"trailing punctuation dropped", "first, second third", 8, "first..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.text, tt.n))
		})
	}
}
