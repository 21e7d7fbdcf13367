package domain

import (
	"strings"
	"time"
)

// Chunk is a bounded span of normalised text prepared for embedding.
type Chunk struct {
	// ID is a deterministic function of (SourceName, DocumentID, Ordinal),
	// so re-chunking unchanged content yields the same identifiers.
	ID string

	SourceName string
	DocumentID string

	// Ordinal is the position of the chunk within its document.
	Ordinal int

	Text       string
	TokenCount int

	// HeadingPath is the heading breadcrumb of the chunk's first block.
	HeadingPath []string

	// Title is the title of the parent document.
	Title string
}

// EmbeddedChunk is a Chunk with its dense vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// IndexRecord is the persisted form of an EmbeddedChunk.
type IndexRecord struct {
	EmbeddedChunk
	IndexedAt time.Time
}

// Breadcrumb joins the heading path for display.
func (c *Chunk) Breadcrumb() string {
	return strings.Join(c.HeadingPath, " > ")
}

// IndexStats describes the contents of the vector store.
type IndexStats struct {
	TotalChunks    int
	ChunksBySource map[string]int
	Model          string
	Dimensions     int
}
