package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	resp     *domain.QueryResponse
	err      error
	chunk    *domain.IndexRecord
	chunkErr error
	stats    *domain.IndexStats
	statsErr error

	// Last Query arguments.
	text      string
	limit     int
	queryType domain.QueryType
	minScore  float64
}

func (m *mockQueryService) Query(
	_ context.Context, text string, limit int, queryType domain.QueryType, minScore float64,
) (*domain.QueryResponse, error) {
	m.text, m.limit, m.queryType, m.minScore = text, limit, queryType, minScore
	return m.resp, m.err
}

func (m *mockQueryService) GetChunk(_ context.Context, _ string) (*domain.IndexRecord, error) {
	return m.chunk, m.chunkErr
}

func (m *mockQueryService) Stats(_ context.Context) (*domain.IndexStats, error) {
	if m.stats == nil && m.statsErr == nil {
		return &domain.IndexStats{TotalChunks: 3, Dimensions: 8, Model: "mock"}, nil
	}
	return m.stats, m.statsErr
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	sources []domain.Source
}

func (m *mockIngestionService) Run(_ context.Context, trigger domain.Trigger, _ ...string) (*domain.RunSummary, error) {
	return &domain.RunSummary{Trigger: trigger, Success: true}, nil
}

func (m *mockIngestionService) Sources() []domain.Source {
	return m.sources
}

// mockRefreshService is a mock implementation of driving.RefreshService.
type mockRefreshService struct {
	state domain.RefreshState
}

func (m *mockRefreshService) Trigger(_ context.Context, _ domain.Trigger) error {
	return nil
}

func (m *mockRefreshService) State() domain.RefreshState {
	return m.state
}

func (m *mockRefreshService) History(_ context.Context, _ int) ([]domain.RunSummary, error) {
	return nil, nil
}

const testChunkID = "6f1c2a52-9a43-5b8e-8d0e-3b8f0d4c2e11"

func testRecord() *domain.IndexRecord {
	return &domain.IndexRecord{
		EmbeddedChunk: domain.EmbeddedChunk{
			Chunk: domain.Chunk{
				ID:          testChunkID,
				SourceName:  "guide",
				DocumentID:  "https://docs.example.com/install",
				Ordinal:     2,
				Text:        "Run the installer and restart the service.",
				TokenCount:  9,
				HeadingPath: []string{"Install", "Linux"},
				Title:       "Installation",
			},
		},
	}
}
