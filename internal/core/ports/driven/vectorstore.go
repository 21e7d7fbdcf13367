package driven

import (
	"context"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// VectorStore persists index records keyed by chunk identifier.
//
// Every write commits atomically per call: readers never observe a
// partially written batch. Failures are returned as *domain.StoreError.
type VectorStore interface {
	// Upsert inserts or replaces records by chunk identifier.
	Upsert(ctx context.Context, records []domain.IndexRecord) error

	// Prune deletes every record of the source whose identifier is not in
	// live, returning the number of deleted records.
	Prune(ctx context.Context, sourceName string, live map[string]struct{}) (int, error)

	// Query returns the k records nearest to vector by cosine similarity.
	Query(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)

	// KeywordSearch returns the k best full-text matches.
	KeywordSearch(ctx context.Context, text string, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)

	// GetByIdentifier returns one record or domain.ErrNotFound.
	GetByIdentifier(ctx context.Context, id string) (*domain.IndexRecord, error)

	// DocumentChunkIDs returns the identifiers currently stored for a document.
	DocumentChunkIDs(ctx context.Context, sourceName, documentID string) ([]string, error)

	// LockSource serialises writers of one source. The returned func unlocks.
	LockSource(sourceName string) (unlock func())

	// EnsureDimensions records the model and dimensionality on first use
	// and returns domain.ErrDimensionMismatch if they later differ.
	EnsureDimensions(ctx context.Context, model string, dimensions int) error

	// Stats summarises the index.
	Stats(ctx context.Context) (*domain.IndexStats, error)

	// Close releases resources.
	Close() error
}

// RunStore keeps the history of ingestion runs.
type RunStore interface {
	// RecordRun stores a run summary.
	RecordRun(ctx context.Context, summary *domain.RunSummary) error

	// ListRuns returns recent runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)

	// PruneRuns keeps only the most recent keep runs.
	PruneRuns(ctx context.Context, keep int) error
}
