package domain

import (
	"fmt"
	"time"
)

// QueryType selects the retrieval method.
type QueryType string

const (
	// QueryTypeSemantic ranks by vector similarity.
	QueryTypeSemantic QueryType = "semantic"

	// QueryTypeKeyword ranks by full-text BM25.
	QueryTypeKeyword QueryType = "keyword"

	// QueryTypeHybrid fuses semantic and keyword rankings.
	QueryTypeHybrid QueryType = "hybrid"
)

// Query limits.
const (
	DefaultQueryLimit = 5
	MaxQueryLimit     = 50
)

// ParseQueryType validates a query type string. Empty means semantic.
func ParseQueryType(s string) (QueryType, error) {
	switch QueryType(s) {
	case "":
		return QueryTypeSemantic, nil
	case QueryTypeSemantic, QueryTypeKeyword, QueryTypeHybrid:
		return QueryType(s), nil
	default:
		return "", fmt.Errorf("%w: query_type must be semantic, keyword or hybrid, got %q", ErrInvalidInput, s)
	}
}

// SearchFilter narrows store queries.
type SearchFilter struct {
	// SourceName restricts results to one source when set.
	SourceName string

	// MinScore drops results scoring below it. Scores are in [0,1].
	MinScore float64
}

// ScoredChunk is a raw store hit.
type ScoredChunk struct {
	Record IndexRecord
	Score  float64
}

// SearchResult is one ranked hit returned to the serving layer.
type SearchResult struct {
	ChunkID     string
	SourceName  string
	DocumentID  string
	Title       string
	HeadingPath []string
	Snippet     string
	Score       float64

	// MatchType is the query type that produced the hit, or "hybrid"
	// when both rankings found it.
	MatchType QueryType
}

// QueryInfo describes a query execution.
type QueryInfo struct {
	Query        string
	QueryType    QueryType
	TotalResults int
	Took         time.Duration
}

// QueryResponse is the result of a query.
type QueryResponse struct {
	Results []SearchResult
	Info    QueryInfo
}
