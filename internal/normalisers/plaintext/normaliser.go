package plaintext

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/markdown"
)

// Ensure Normaliser implements the interface.
var _ driven.Extractor = (*Normaliser)(nil)

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// Normaliser handles plain text files.
type Normaliser struct {
	minBlockChars int
}

// New creates a new plain text normaliser. Paragraphs shorter than
// minBlockChars are dropped.
func New(minBlockChars int) *Normaliser {
	return &Normaliser{minBlockChars: minBlockChars}
}

// SupportedKinds returns the content kinds this normaliser handles.
func (n *Normaliser) SupportedKinds() []domain.ContentKind {
	return []domain.ContentKind{domain.ContentKindText}
}

// Extract splits text into paragraphs on blank lines. Every block sits
// under a single heading named after the file.
func (n *Normaliser) Extract(_ context.Context, doc *domain.FetchedDocument) (*domain.ExtractedDocument, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}

	title := markdown.FallbackTitle(doc.Title, doc.Identifier)
	content := strings.ReplaceAll(string(doc.Content), "\r\n", "\n")

	var blocks []domain.Block
	for _, para := range blankLines.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" || len(para) < n.minBlockChars {
			continue
		}
		blocks = append(blocks, domain.Block{Text: para, HeadingPath: []string{title}})
	}
	if len(blocks) == 0 {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "no text blocks"}
	}

	return &domain.ExtractedDocument{
		Title:    title,
		Blocks:   blocks,
		Metadata: map[string]string{"format": "text"},
	}, nil
}
