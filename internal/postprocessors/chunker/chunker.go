// Package chunker splits extracted documents into token-bounded,
// overlapping chunks with deterministic identifiers.
package chunker

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// Defaults, in estimated tokens (whitespace-separated words).
const (
	DefaultTargetTokens = 512
	DefaultMinTokens    = 100
	DefaultOverlap      = 100
)

// namespace seeds chunk identifiers. Changing it changes every identifier
// in the index.
var namespace = uuid.MustParse("5b0f3d7e-8c21-4e6a-9d4f-3a7c1e2b9f60")

// Cut strengths, strongest last.
const (
	cutNone = iota
	cutSentence
	cutBlock
)

// Processor packs blocks into chunks.
type Processor struct {
	target  int
	min     int
	max     int
	overlap int
}

// Option configures the chunker.
type Option func(*Processor)

// WithTargetTokens sets the preferred chunk size.
func WithTargetTokens(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.target = n
		}
	}
}

// WithMinTokens sets the lower bound.
func WithMinTokens(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.min = n
		}
	}
}

// WithMaxTokens sets the upper bound. Defaults to target * 1.25.
func WithMaxTokens(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.max = n
		}
	}
}

// WithOverlap sets the number of tokens repeated between consecutive chunks.
func WithOverlap(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.overlap = n
		}
	}
}

// FromConfig maps a domain.ChunkConfig onto options.
func FromConfig(cfg domain.ChunkConfig) []Option {
	return []Option{
		WithTargetTokens(cfg.TargetTokens),
		WithMinTokens(cfg.MinTokens),
		WithMaxTokens(cfg.MaxTokens),
		WithOverlap(cfg.OverlapTokens),
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		target:  DefaultTargetTokens,
		min:     DefaultMinTokens,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.max < p.target {
		p.max = p.target + p.target/4
	}
	if p.min > p.target {
		p.min = p.target
	}
	if p.overlap >= p.target {
		p.overlap = p.target / 4
	}
	return p
}

// Bounds returns the configured [min, max] token bounds.
func (p *Processor) Bounds() (lower, upper int) {
	return p.min, p.max
}

// ChunkID returns the deterministic identifier for one chunk.
func ChunkID(sourceName, documentID string, ordinal int) string {
	key := sourceName + "\x00" + documentID + "\x00" + strconv.Itoa(ordinal)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// CountTokens estimates the token count of text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// word is one token with the strength of the boundary after it.
type word struct {
	text  string
	block int
	cut   int
}

// Chunk splits blocks into ordered chunks.
//
// Every chunk holds at most max tokens. Every chunk holds at least min
// tokens, except the sole chunk of a document shorter than min.
func (p *Processor) Chunk(sourceName, documentID, title string, blocks []domain.Block) []domain.Chunk {
	words := flatten(blocks)
	n := len(words)
	if n == 0 {
		return nil
	}

	var chunks []domain.Chunk
	pos, start := 0, 0
	for pos < n {
		if len(chunks) > 0 {
			start = max(pos-p.overlap, 0)
		}

		end := n
		if n-start > p.target {
			// A short remainder is absorbed when the whole fits under max.
			if n-start > p.max || n-(start+p.target) >= p.min {
				end = p.cut(words, start, pos)
			}
		}

		first := words[pos].block
		chunks = append(chunks, domain.Chunk{
			ID:          ChunkID(sourceName, documentID, len(chunks)),
			SourceName:  sourceName,
			DocumentID:  documentID,
			Ordinal:     len(chunks),
			Text:        join(words[start:end]),
			TokenCount:  end - start,
			HeadingPath: blocks[first].HeadingPath,
			Title:       title,
		})
		pos = end
	}
	return chunks
}

// cut picks the end of a chunk starting at start whose new content begins
// at pos. It prefers the latest block edge, then the latest sentence end,
// within the window that keeps this chunk and the remainder in bounds.
func (p *Processor) cut(words []word, start, pos int) int {
	n := len(words)
	lo := max(start+p.min, pos+1)
	hi := start + p.target

	// Leave enough for the final chunk (overlap + remainder) to reach min.
	if tail := p.min - p.overlap; tail > 0 && n-tail < hi && n-tail >= lo {
		hi = n - tail
	}
	if lo > hi {
		lo = hi
	}

	best, bestCut := hi, cutNone
	for c := hi; c >= lo; c-- {
		if s := words[c-1].cut; s > bestCut {
			best, bestCut = c, s
			if s == cutBlock {
				break
			}
		}
	}
	return best
}

func flatten(blocks []domain.Block) []word {
	var words []word
	for bi := range blocks {
		fields := strings.Fields(blocks[bi].Text)
		for i, f := range fields {
			w := word{text: f, block: bi}
			switch {
			case i == len(fields)-1:
				w.cut = cutBlock
			case endsSentence(f):
				w.cut = cutSentence
			}
			words = append(words, w)
		}
	}
	return words
}

func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]`)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
}

// join rebuilds text, separating blocks with a blank line.
func join(words []word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			if words[i-1].block != w.block {
				b.WriteString("\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.text)
	}
	return b.String()
}
