package driven

import (
	"context"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// EmitFunc receives each document as soon as it is available.
// Returning an error stops the fetch and the error is returned from Fetch.
// A fetcher never calls emit concurrently.
type EmitFunc func(ctx context.Context, doc *domain.FetchedDocument) error

// Fetcher retrieves the documents of one kind of source.
// Documents are streamed through emit so that the pipeline can process
// them while the rest of the source is still being fetched.
type Fetcher interface {
	// Kind returns the source kind this fetcher handles.
	Kind() domain.SourceKind

	// Fetch retrieves every document of the source. Per-document failures
	// are recorded in the returned stats and do not fail the call.
	// It returns domain.ErrSourceUnreachable (with stats) when nothing
	// at all could be retrieved.
	Fetch(ctx context.Context, source domain.Source, emit EmitFunc) (*domain.FetchStats, error)
}

// PageCache stores the last-seen state and body of fetched identifiers
// for one source.
type PageCache interface {
	// Get returns the entry and cached body for an identifier.
	// Returns domain.ErrNotFound if the identifier was never cached.
	Get(ctx context.Context, identifier string) (*domain.CacheEntry, []byte, error)

	// Put records an entry and its body, replacing any previous one.
	Put(ctx context.Context, entry *domain.CacheEntry, body []byte) error

	// Delete removes an entry.
	Delete(ctx context.Context, identifier string) error

	// Entries lists all cached entries.
	Entries(ctx context.Context) ([]domain.CacheEntry, error)
}

// CacheProvider hands out per-source caches. Caches are never shared
// across sources.
type CacheProvider interface {
	ForSource(sourceName string) (PageCache, error)
}
