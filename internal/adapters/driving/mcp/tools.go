package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// QueryDocsInput is the input schema for the query_docs tool.
type QueryDocsInput struct {
	Query     string  `json:"query" jsonschema:"the question or keywords to search the documentation for"`
	Limit     int     `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 50 (default 5)"`
	QueryType string  `json:"query_type,omitempty" jsonschema:"semantic, keyword or hybrid (default semantic)"`
	MinScore  float64 `json:"min_score,omitempty" jsonschema:"drop results scoring below this value, 0 to 1"`
}

// QueryDocsOutput is the output schema for the query_docs tool.
type QueryDocsOutput struct {
	Results   []ResultOutput `json:"results"`
	Count     int            `json:"count"`
	QueryType string         `json:"query_type"`
	TookMS    int64          `json:"took_ms"`
}

// ResultOutput is a single ranked chunk.
type ResultOutput struct {
	ChunkID     string   `json:"chunk_id"`
	Source      string   `json:"source"`
	DocumentID  string   `json:"document_id"`
	Title       string   `json:"title"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Snippet     string   `json:"snippet"`
	Score       float64  `json:"score"`
	MatchType   string   `json:"match_type"`
}

// GetChunkInput is the input schema for the get_chunk tool.
type GetChunkInput struct {
	ChunkID string `json:"chunk_id" jsonschema:"the chunk id returned by query_docs"`
}

// ChunkOutput is the full text and metadata of one chunk.
type ChunkOutput struct {
	ChunkID     string   `json:"chunk_id"`
	Source      string   `json:"source"`
	DocumentID  string   `json:"document_id"`
	Title       string   `json:"title"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Ordinal     int      `json:"ordinal"`
	TokenCount  int      `json:"token_count"`
	Text        string   `json:"text"`
	IndexedAt   string   `json:"indexed_at,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_docs",
		Description: "Search the indexed documentation and return the best matching chunks",
	}, s.handleQueryDocs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_chunk",
		Description: "Return the full text of a chunk found with query_docs",
	}, s.handleGetChunk)
}

// handleQueryDocs handles the query_docs tool invocation.
func (s *Server) handleQueryDocs(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryDocsInput,
) (*mcp.CallToolResult, QueryDocsOutput, error) {
	queryType, err := domain.ParseQueryType(input.QueryType)
	if err != nil {
		return nil, QueryDocsOutput{}, invalidParams("%v", err)
	}
	limit := input.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}
	if terr := s.checkIndex(ctx); terr != nil {
		return nil, QueryDocsOutput{}, terr
	}

	resp, err := s.ports.Query.Query(ctx, input.Query, limit, queryType, input.MinScore)
	if err != nil {
		s.log.Warn("query_docs: %v", err)
		return nil, QueryDocsOutput{}, toolError("search", err)
	}

	output := QueryDocsOutput{
		Results:   make([]ResultOutput, len(resp.Results)),
		Count:     len(resp.Results),
		QueryType: string(resp.Info.QueryType),
		TookMS:    resp.Info.Took.Milliseconds(),
	}
	for i, r := range resp.Results {
		output.Results[i] = ResultOutput{
			ChunkID:     r.ChunkID,
			Source:      r.SourceName,
			DocumentID:  r.DocumentID,
			Title:       r.Title,
			HeadingPath: r.HeadingPath,
			Snippet:     r.Snippet,
			Score:       r.Score,
			MatchType:   string(r.MatchType),
		}
	}
	return nil, output, nil
}

// handleGetChunk handles the get_chunk tool invocation.
func (s *Server) handleGetChunk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetChunkInput,
) (*mcp.CallToolResult, ChunkOutput, error) {
	if _, err := uuid.Parse(input.ChunkID); err != nil {
		return nil, ChunkOutput{}, invalidParams("chunk_id %q is not a valid id", input.ChunkID)
	}
	if terr := s.checkIndex(ctx); terr != nil {
		return nil, ChunkOutput{}, terr
	}

	rec, err := s.ports.Query.GetChunk(ctx, input.ChunkID)
	if err != nil {
		return nil, ChunkOutput{}, toolError("get chunk", err)
	}
	return nil, chunkOutput(rec), nil
}

// checkIndex reports an index that has never been built.
func (s *Server) checkIndex(ctx context.Context) *ToolError {
	stats, err := s.ports.Query.Stats(ctx)
	if err != nil {
		return toolError("index stats", err)
	}
	if stats.TotalChunks == 0 && stats.Dimensions == 0 {
		return &ToolError{Code: CodeIndexNotReady, Message: "index is empty; run `sercha-docs index` first"}
	}
	return nil
}

func chunkOutput(rec *domain.IndexRecord) ChunkOutput {
	out := ChunkOutput{
		ChunkID:     rec.ID,
		Source:      rec.SourceName,
		DocumentID:  rec.DocumentID,
		Title:       rec.Title,
		HeadingPath: rec.HeadingPath,
		Ordinal:     rec.Ordinal,
		TokenCount:  rec.TokenCount,
		Text:        rec.Text,
	}
	if !rec.IndexedAt.IsZero() {
		out.IndexedAt = rec.IndexedAt.UTC().Format(time.RFC3339)
	}
	return out
}
