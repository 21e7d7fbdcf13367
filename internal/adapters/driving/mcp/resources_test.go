package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestExtractChunkID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{"valid chunk URI", "docs://chunks/" + testChunkID, testChunkID},
		{"invalid prefix", "file://chunks/abc", ""},
		{"missing id", "docs://chunks/", ""},
		{"nested path", "docs://chunks/a/b", ""},
		{"empty URI", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractChunkID(tt.uri))
		})
	}
}

func TestServer_handleChunkResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns chunk json", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{chunk: testRecord()}})
		require.NoError(t, err)

		uri := "docs://chunks/" + testChunkID
		result, err := server.handleChunkResource(ctx, readRequest(uri))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, uri, result.Contents[0].URI)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)

		var out ChunkOutput
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &out))
		assert.Equal(t, testChunkID, out.ChunkID)
		assert.Equal(t, "guide", out.Source)
	})

	t.Run("unknown chunk is resource not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{chunkErr: domain.ErrNotFound}})
		require.NoError(t, err)

		_, err = server.handleChunkResource(ctx, readRequest("docs://chunks/"+testChunkID))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("malformed uri is resource not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{}})
		require.NoError(t, err)

		_, err = server.handleChunkResource(ctx, readRequest("docs://chunks/"))
		require.Error(t, err)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{chunkErr: errors.New("disk I/O error")}})
		require.NoError(t, err)

		_, err = server.handleChunkResource(ctx, readRequest("docs://chunks/"+testChunkID))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading chunk")
	})
}

func TestServer_handleSourcesResource(t *testing.T) {
	ctx := context.Background()

	t.Run("without ingestion port returns empty list", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{}})
		require.NoError(t, err)

		result, err := server.handleSourcesResource(ctx, readRequest("docs://sources"))
		require.NoError(t, err)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})

	t.Run("lists websites and repositories", func(t *testing.T) {
		ingest := &mockIngestionService{sources: []domain.Source{
			{
				Name: "guide", Kind: domain.SourceKindWebsite, Enabled: true,
				Website: &domain.WebsiteSource{URL: "https://docs.example.com/"},
			},
			{
				Name: "sdk", Kind: domain.SourceKindRepository,
				Repository: &domain.RepositorySource{Owner: "acme", Repo: "sdk"},
			},
		}}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingest: ingest})
		require.NoError(t, err)

		result, err := server.handleSourcesResource(ctx, readRequest("docs://sources"))
		require.NoError(t, err)

		var infos []sourceInfo
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &infos))
		require.Len(t, infos, 2)
		assert.Equal(t, sourceInfo{Name: "guide", Kind: "website", Enabled: true, Location: "https://docs.example.com/"}, infos[0])
		assert.Equal(t, "https://github.com/acme/sdk", infos[1].Location)
		assert.False(t, infos[1].Enabled)
	})
}

func TestServer_handleStatusResource(t *testing.T) {
	ctx := context.Background()

	t.Run("index only", func(t *testing.T) {
		query := &mockQueryService{stats: &domain.IndexStats{
			TotalChunks: 4, ChunksBySource: map[string]int{"guide": 4}, Model: "nomic-embed-text", Dimensions: 768,
		}}
		server, err := NewServer(&Ports{Query: query})
		require.NoError(t, err)

		result, err := server.handleStatusResource(ctx, readRequest("docs://status"))
		require.NoError(t, err)

		var info statusInfo
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &info))
		assert.Equal(t, 4, info.TotalChunks)
		assert.Equal(t, 768, info.Dimensions)
		assert.Equal(t, map[string]int{"guide": 4}, info.ChunksBySource)
		assert.Nil(t, info.Refresh)
	})

	t.Run("with refresh state", func(t *testing.T) {
		last := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
		refresh := &mockRefreshService{state: domain.RefreshState{
			Status:     domain.RefreshIdle,
			MaxJobs:    1,
			LastRun:    last,
			NextRun:    last.Add(24 * time.Hour),
			LastResult: &domain.RunSummary{Success: false},
			Dropped:    2,
		}}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Refresh: refresh})
		require.NoError(t, err)

		result, err := server.handleStatusResource(ctx, readRequest("docs://status"))
		require.NoError(t, err)

		var info statusInfo
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &info))
		require.NotNil(t, info.Refresh)
		assert.Equal(t, "idle", info.Refresh.Status)
		assert.Equal(t, "2026-05-02T08:00:00Z", info.Refresh.LastRun)
		assert.Equal(t, "2026-05-03T08:00:00Z", info.Refresh.NextRun)
		require.NotNil(t, info.Refresh.LastSuccess)
		assert.False(t, *info.Refresh.LastSuccess)
		assert.Equal(t, 2, info.Refresh.Dropped)
	})

	t.Run("stats failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{statsErr: errors.New("closed")}})
		require.NoError(t, err)

		_, err = server.handleStatusResource(ctx, readRequest("docs://status"))
		require.Error(t, err)
	})
}
