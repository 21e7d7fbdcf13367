package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

const (
	// rrfK is the Reciprocal Rank Fusion constant.
	rrfK = 60

	// SnippetLength is the maximum snippet size in characters.
	SnippetLength = 300

	// hybridOversample widens each ranking before fusion.
	hybridOversample = 3
)

// QueryService answers queries over the vector store.
type QueryService struct {
	store    driven.VectorStore
	embedder driven.EmbeddingService
	metrics  driven.MetricsRecorder // optional
	now      func() time.Time
	log      *logger.Logger
}

// NewQueryService creates a query service. metrics may be nil.
func NewQueryService(store driven.VectorStore, embedder driven.EmbeddingService, metrics driven.MetricsRecorder) *QueryService {
	return &QueryService{
		store:    store,
		embedder: embedder,
		metrics:  metrics,
		now:      time.Now,
		log:      logger.With("query"),
	}
}

// Query ranks chunks against text.
func (s *QueryService) Query(
	ctx context.Context, text string, limit int, queryType domain.QueryType, minScore float64,
) (*domain.QueryResponse, error) {
	start := s.now()
	text = strings.TrimSpace(text)

	resp, err := s.query(ctx, text, limit, queryType, minScore)
	took := s.now().Sub(start)

	results := 0
	if resp != nil {
		resp.Info.Took = took
		results = len(resp.Results)
	}
	s.observe(queryType, took, results, err)
	return resp, err
}

func (s *QueryService) query(
	ctx context.Context, text string, limit int, queryType domain.QueryType, minScore float64,
) (*domain.QueryResponse, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	if limit == 0 {
		limit = domain.DefaultQueryLimit
	}
	if limit < 1 || limit > domain.MaxQueryLimit {
		return nil, fmt.Errorf("%w: limit must be in [1,%d], got %d", domain.ErrInvalidInput, domain.MaxQueryLimit, limit)
	}
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("%w: min_score must be in [0,1], got %g", domain.ErrInvalidInput, minScore)
	}
	qt, err := domain.ParseQueryType(string(queryType))
	if err != nil {
		return nil, err
	}

	filter := domain.SearchFilter{MinScore: minScore}

	var results []domain.SearchResult
	switch qt {
	case domain.QueryTypeSemantic:
		hits, err := s.semantic(ctx, text, limit, filter)
		if err != nil {
			return nil, err
		}
		results = toResults(hits, domain.QueryTypeSemantic)
	case domain.QueryTypeKeyword:
		hits, err := s.store.KeywordSearch(ctx, text, limit, filter)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		results = toResults(hits, domain.QueryTypeKeyword)
	case domain.QueryTypeHybrid:
		results, err = s.hybrid(ctx, text, limit, minScore)
		if err != nil {
			return nil, err
		}
	}

	return &domain.QueryResponse{
		Results: results,
		Info: domain.QueryInfo{
			Query:        text,
			QueryType:    qt,
			TotalResults: len(results),
		},
	}, nil
}

func (s *QueryService) semantic(ctx context.Context, text string, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.store.Query(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// hybrid runs both rankings in parallel and fuses them with RRF. If one
// ranking fails the other is used alone.
func (s *QueryService) hybrid(ctx context.Context, text string, limit int, minScore float64) ([]domain.SearchResult, error) {
	k := min(limit*hybridOversample, domain.MaxQueryLimit)

	var semanticHits, keywordHits []domain.ScoredChunk
	var semanticErr, keywordErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		semanticHits, semanticErr = s.semantic(ctx, text, k, domain.SearchFilter{})
	}()
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = s.store.KeywordSearch(ctx, text, k, domain.SearchFilter{})
	}()
	wg.Wait()

	switch {
	case semanticErr != nil && keywordErr != nil:
		return nil, fmt.Errorf("hybrid search: semantic: %w; keyword: %w", semanticErr, keywordErr)
	case semanticErr != nil:
		s.log.Warn("hybrid: semantic ranking failed, using keyword only: %v", semanticErr)
	case keywordErr != nil:
		s.log.Warn("hybrid: keyword ranking failed, using semantic only: %v", keywordErr)
	}

	fused := reciprocalRankFusion(semanticHits, keywordHits, rrfK)

	results := make([]domain.SearchResult, 0, limit)
	for _, f := range fused {
		if f.score < minScore {
			continue
		}
		r := toResult(f.hit, f.matchType)
		r.Score = f.score
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

type fusedHit struct {
	hit       domain.ScoredChunk
	score     float64
	matchType domain.QueryType
}

// reciprocalRankFusion merges two rankings. Scores are normalised by the
// best possible fused score (rank 1 in both lists), so they stay in [0,1].
func reciprocalRankFusion(semantic, keyword []domain.ScoredChunk, k int) []fusedHit {
	byID := make(map[string]*fusedHit)
	var order []string

	add := func(list []domain.ScoredChunk, qt domain.QueryType) {
		for rank, h := range list {
			rrf := 1.0 / float64(k+rank+1)
			f, ok := byID[h.Record.ID]
			if !ok {
				f = &fusedHit{hit: h, matchType: qt}
				byID[h.Record.ID] = f
				order = append(order, h.Record.ID)
			} else if f.matchType != qt {
				f.matchType = domain.QueryTypeHybrid
			}
			f.score += rrf
		}
	}
	add(semantic, domain.QueryTypeSemantic)
	add(keyword, domain.QueryTypeKeyword)

	best := 2.0 / float64(k+1)
	fused := make([]fusedHit, 0, len(order))
	for _, id := range order {
		f := byID[id]
		f.score /= best
		fused = append(fused, *f)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].score > fused[j].score
	})
	return fused
}

// GetChunk returns the full record of one chunk.
func (s *QueryService) GetChunk(ctx context.Context, chunkID string) (*domain.IndexRecord, error) {
	chunkID = strings.TrimSpace(chunkID)
	if chunkID == "" {
		return nil, fmt.Errorf("%w: chunk id must not be empty", domain.ErrInvalidInput)
	}
	return s.store.GetByIdentifier(ctx, chunkID)
}

// Stats summarises the index.
func (s *QueryService) Stats(ctx context.Context) (*domain.IndexStats, error) {
	return s.store.Stats(ctx)
}

// observe reports telemetry without blocking the caller.
func (s *QueryService) observe(qt domain.QueryType, took time.Duration, results int, err error) {
	if s.metrics == nil {
		return
	}
	if qt == "" {
		qt = domain.QueryTypeSemantic
	}
	go s.metrics.ObserveQuery(qt, took, results, err)
}

func toResults(hits []domain.ScoredChunk, qt domain.QueryType) []domain.SearchResult {
	results := make([]domain.SearchResult, len(hits))
	for i := range hits {
		results[i] = toResult(hits[i], qt)
	}
	return results
}

func toResult(h domain.ScoredChunk, qt domain.QueryType) domain.SearchResult {
	return domain.SearchResult{
		ChunkID:     h.Record.ID,
		SourceName:  h.Record.SourceName,
		DocumentID:  h.Record.DocumentID,
		Title:       h.Record.Title,
		HeadingPath: h.Record.HeadingPath,
		Snippet:     Snippet(h.Record.Text, SnippetLength),
		Score:       h.Score,
		MatchType:   qt,
	}
}

// Snippet shortens text to at most n characters, cutting at a word
// boundary and appending an ellipsis when shortened.
func Snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	cut := n
	for i := n; i > n/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "..."
}
