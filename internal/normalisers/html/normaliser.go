package html

import (
	"bytes"
	"context"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/markdown"
)

// Ensure Normaliser implements the interface.
var _ driven.Extractor = (*Normaliser)(nil)

// DefaultMinWords is the smallest selection a strategy may return
// before the next strategy is tried.
const DefaultMinWords = 25

// Normaliser handles HTML documents.
type Normaliser struct {
	strategies    []Strategy
	minWords      int
	minBlockChars int
	conv          *md.Converter
}

// Option configures the normaliser.
type Option func(*Normaliser)

// WithStrategies replaces the extraction chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(n *Normaliser) {
		if len(strategies) > 0 {
			n.strategies = strategies
		}
	}
}

// WithMinWords sets the word threshold a strategy must meet.
func WithMinWords(words int) Option {
	return func(n *Normaliser) {
		if words >= 0 {
			n.minWords = words
		}
	}
}

// WithMinBlockChars sets the shortest block that is kept.
func WithMinBlockChars(chars int) Option {
	return func(n *Normaliser) {
		if chars >= 0 {
			n.minBlockChars = chars
		}
	}
}

// New creates a new HTML normaliser.
func New(opts ...Option) *Normaliser {
	n := &Normaliser{
		strategies:    DefaultStrategies(),
		minWords:      DefaultMinWords,
		minBlockChars: markdown.DefaultMinBlockChars,
	}
	for _, opt := range opts {
		opt(n)
	}

	n.conv = md.NewConverter("", true, &md.Options{CodeBlockStyle: "fenced"})
	n.conv.Use(plugin.GitHubFlavored())
	return n
}

// SupportedKinds returns the content kinds this normaliser handles.
func (n *Normaliser) SupportedKinds() []domain.ContentKind {
	return []domain.ContentKind{domain.ContentKindHTML}
}

// Extract selects the main content of a page, converts it to markdown
// and splits it into heading-scoped blocks.
func (n *Normaliser) Extract(_ context.Context, doc *domain.FetchedDocument) (*domain.ExtractedDocument, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}
	if len(bytes.TrimSpace(doc.Content)) == 0 {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "empty content"}
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "parse html: " + err.Error()}
	}

	// Title and meta live in head and page chrome, read them before stripping.
	title := PageTitle(page)
	metadata := pageMeta(page)
	metadata["format"] = "html"

	stripBoilerplate(page)

	sel, strategy := n.selectContent(page)
	if sel == nil {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "no readable content"}
	}
	metadata["strategy"] = strategy

	res := markdown.Split(n.conv.Convert(sel), n.minBlockChars)
	if len(res.Blocks) == 0 {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "no text blocks"}
	}

	if title == "" {
		title = res.Title
	}
	if title == "" {
		title = markdown.FallbackTitle(doc.Title, doc.Identifier)
	}

	return &domain.ExtractedDocument{
		Title:    title,
		Blocks:   res.Blocks,
		Metadata: metadata,
	}, nil
}

// selectContent runs the strategy chain. The first selection meeting the
// word threshold wins; otherwise the largest non-empty selection is used.
func (n *Normaliser) selectContent(page *goquery.Document) (*goquery.Selection, string) {
	var (
		fallback     *goquery.Selection
		fallbackName string
		fallbackSize int
	)
	for _, s := range n.strategies {
		sel, ok := s.Select(page)
		if !ok || sel == nil {
			continue
		}
		words := wordCount(sel)
		if words >= n.minWords && words > 0 {
			return sel, s.Name
		}
		if words > fallbackSize {
			fallback, fallbackName, fallbackSize = sel, s.Name, words
		}
	}
	return fallback, fallbackName
}

// PageTitle returns the <title> text, then the first h1, then og:title.
func PageTitle(page *goquery.Document) string {
	if t := collapse(page.Find("title").First().Text()); t != "" {
		return t
	}
	if t := collapse(page.Find("h1").First().Text()); t != "" {
		return t
	}
	if t, ok := page.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return collapse(t)
	}
	return ""
}

func pageMeta(page *goquery.Document) map[string]string {
	meta := make(map[string]string)
	for _, name := range []string{"description", "author", "keywords"} {
		if v, ok := page.Find(`meta[name="` + name + `"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
			meta[name] = collapse(v)
		}
	}
	if _, ok := meta["description"]; !ok {
		if v, ok := page.Find(`meta[property="og:description"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
			meta["description"] = collapse(v)
		}
	}
	return meta
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
