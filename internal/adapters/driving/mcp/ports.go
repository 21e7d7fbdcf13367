package mcp

import (
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the MCP server.
type Ports struct {
	// Query answers query_docs and get_chunk. Required.
	Query driving.QueryService

	// Ingest lists configured sources for docs://sources.
	Ingest driving.IngestionService

	// Refresh reports scheduler state for docs://status.
	Refresh driving.RefreshService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
