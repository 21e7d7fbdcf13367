package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentKind selects the extraction strategy for fetched bytes.
type ContentKind string

const (
	ContentKindHTML       ContentKind = "html"
	ContentKindMarkdown   ContentKind = "markdown"
	ContentKindText       ContentKind = "text"
	ContentKindStructured ContentKind = "structured" // YAML / JSON files
)

// FetchedDocument is the raw content retrieved for one page or file.
// It is produced by a fetcher, consumed by the extractor and discarded
// after chunking; only its cache copy survives.
type FetchedDocument struct {
	// SourceName is the Source that produced this document.
	SourceName string

	// Identifier is the canonical URL or repository path.
	Identifier string

	// Content is the raw bytes.
	Content []byte

	// ContentHash is the hex sha256 of Content.
	ContentHash string

	// FetchedAt is when the content was retrieved (or last validated).
	FetchedAt time.Time

	// Kind selects the extractor.
	Kind ContentKind

	// Title is an optional hint from the fetcher (e.g. the file name).
	Title string

	// FromCache is true when the content was served from the page cache
	// without a full download.
	FromCache bool
}

// HashContent returns the hex sha256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Block is a unit of extracted text with the headings it sits under.
type Block struct {
	Text        string
	HeadingPath []string
}

// ExtractedDocument is the extractor output for one FetchedDocument.
type ExtractedDocument struct {
	Title    string
	Blocks   []Block
	Metadata map[string]string
}
