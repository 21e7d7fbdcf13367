package normalisers

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/html"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/markdown"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/plaintext"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/structured"
)

// Ensure Registry implements the interface.
var _ driven.Extractor = (*Registry)(nil)

// KindExtractor is an extractor that declares the kinds it handles.
type KindExtractor interface {
	driven.Extractor
	SupportedKinds() []domain.ContentKind
}

// Registry dispatches extraction on FetchedDocument.Kind.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.ContentKind]driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[domain.ContentKind]driven.Extractor)}
}

// Default returns a registry with the built-in extractors.
func Default() *Registry {
	r := NewRegistry()
	r.Register(html.New())
	r.Register(markdown.New())
	r.Register(plaintext.New(markdown.DefaultMinBlockChars))
	r.Register(structured.New())
	return r
}

// Register adds e for every kind it supports, replacing earlier entries.
func (r *Registry) Register(e KindExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range e.SupportedKinds() {
		r.extractors[kind] = e
	}
}

// Extract implements driven.Extractor.
func (r *Registry) Extract(ctx context.Context, doc *domain.FetchedDocument) (*domain.ExtractedDocument, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	e, ok := r.extractors[doc.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: content kind %q", domain.ErrUnsupportedType, doc.Kind)
	}
	return e.Extract(ctx, doc)
}
