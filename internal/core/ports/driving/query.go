package driving

import (
	"context"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// QueryService answers queries over the index.
type QueryService interface {
	// Query ranks chunks against text. limit, queryType and minScore are
	// validated; invalid values return domain.ErrInvalidInput.
	Query(ctx context.Context, text string, limit int, queryType domain.QueryType, minScore float64) (*domain.QueryResponse, error)

	// GetChunk returns the full chunk record or domain.ErrNotFound.
	GetChunk(ctx context.Context, chunkID string) (*domain.IndexRecord, error)

	// Stats summarises the index.
	Stats(ctx context.Context) (*domain.IndexStats, error)
}
