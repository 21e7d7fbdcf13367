// Package driving defines what the CLI and the MCP server may ask of the
// core: run ingestion, trigger or inspect the refresh scheduler, and query
// the index. internal/core/services implements every interface here.
package driving
