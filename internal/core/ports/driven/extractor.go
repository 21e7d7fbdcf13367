package driven

import (
	"context"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// Extractor converts fetched bytes into normalised text blocks.
// Unparseable content returns a *domain.ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, doc *domain.FetchedDocument) (*domain.ExtractedDocument, error)
}

// Chunker splits one document's blocks into ordered chunks.
type Chunker interface {
	Chunk(sourceName, documentID, title string, blocks []domain.Block) []domain.Chunk
}
