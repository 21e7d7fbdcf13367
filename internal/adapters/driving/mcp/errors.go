// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants query the documentation index and read chunks.
package mcp

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// JSON-RPC style codes carried by tool errors.
const (
	CodeIndexNotReady = -32001
	CodeNotFound      = -32002
	CodeInvalidParams = -32602
	CodeInternal      = -32603
)

// ToolError is a tool failure with a JSON-RPC style code. The SDK turns it
// into an IsError result whose text is Error().
type ToolError struct {
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func invalidParams(format string, args ...any) *ToolError {
	return &ToolError{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// toolError classifies a service error.
func toolError(op string, err error) *ToolError {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return &ToolError{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return &ToolError{Code: CodeNotFound, Message: err.Error()}
	default:
		return &ToolError{Code: CodeInternal, Message: fmt.Sprintf("%s failed: %v", op, err)}
	}
}
