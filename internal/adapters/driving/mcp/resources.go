package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for documentation resources.
	uriScheme = "docs://"

	chunksPrefix = uriScheme + "chunks/"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: chunksPrefix + "{chunkId}",
		Name:        "chunk",
		Description: "Full text and metadata of an indexed chunk",
		MIMEType:    "application/json",
	}, s.handleChunkResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sources",
		Name:        "sources",
		Description: "Configured documentation sources",
		MIMEType:    "application/json",
	}, s.handleSourcesResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "status",
		Name:        "status",
		Description: "Index statistics and refresh state",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

// handleChunkResource returns one chunk as JSON.
func (s *Server) handleChunkResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	chunkID := extractChunkID(req.Params.URI)
	if chunkID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	rec, err := s.ports.Query.GetChunk(ctx, chunkID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk: %w", err)
	}
	return jsonResource(req.Params.URI, chunkOutput(rec))
}

type sourceInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Enabled  bool   `json:"enabled"`
	Location string `json:"location"`
}

// handleSourcesResource lists the configured sources.
func (s *Server) handleSourcesResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos := []sourceInfo{}
	if s.ports.Ingest != nil {
		for _, src := range s.ports.Ingest.Sources() {
			info := sourceInfo{Name: src.Name, Kind: string(src.Kind), Enabled: src.Enabled}
			switch {
			case src.Website != nil:
				info.Location = src.Website.URL
			case src.Repository != nil:
				info.Location = "https://github.com/" + src.Repository.FullName()
			}
			infos = append(infos, info)
		}
	}
	return jsonResource(req.Params.URI, infos)
}

type statusInfo struct {
	TotalChunks    int            `json:"total_chunks"`
	ChunksBySource map[string]int `json:"chunks_by_source"`
	Model          string         `json:"model,omitempty"`
	Dimensions     int            `json:"dimensions"`
	Refresh        *refreshInfo   `json:"refresh,omitempty"`
}

type refreshInfo struct {
	Status      string `json:"status"`
	RunningJobs int    `json:"running_jobs"`
	MaxJobs     int    `json:"max_jobs"`
	LastRun     string `json:"last_run,omitempty"`
	NextRun     string `json:"next_run,omitempty"`
	LastSuccess *bool  `json:"last_success,omitempty"`
	Dropped     int    `json:"dropped_triggers"`
}

// handleStatusResource reports index statistics and scheduler state.
func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Query.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}

	info := statusInfo{
		TotalChunks:    stats.TotalChunks,
		ChunksBySource: stats.ChunksBySource,
		Model:          stats.Model,
		Dimensions:     stats.Dimensions,
	}
	if info.ChunksBySource == nil {
		info.ChunksBySource = map[string]int{}
	}
	if s.ports.Refresh != nil {
		st := s.ports.Refresh.State()
		info.Refresh = &refreshInfo{
			Status:      string(st.Status),
			RunningJobs: st.RunningJobs,
			MaxJobs:     st.MaxJobs,
			LastRun:     formatTime(st.LastRun),
			NextRun:     formatTime(st.NextRun),
			Dropped:     st.Dropped,
		}
		if st.LastResult != nil {
			ok := st.LastResult.Success
			info.Refresh.LastSuccess = &ok
		}
	}
	return jsonResource(req.Params.URI, info)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractChunkID extracts the chunk id from docs://chunks/{chunkId}.
func extractChunkID(uri string) string {
	id, ok := strings.CutPrefix(uri, chunksPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
