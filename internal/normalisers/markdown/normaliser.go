package markdown

import (
	"bufio"
	"context"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Extractor = (*Normaliser)(nil)

// DefaultMinBlockChars drops blocks too short to carry meaning.
const DefaultMinBlockChars = 20

// Normaliser handles Markdown documents.
type Normaliser struct {
	minBlockChars int
}

// Option configures the normaliser.
type Option func(*Normaliser)

// WithMinBlockChars sets the shortest block that is kept.
func WithMinBlockChars(n int) Option {
	return func(m *Normaliser) {
		if n >= 0 {
			m.minBlockChars = n
		}
	}
}

// New creates a new Markdown normaliser.
func New(opts ...Option) *Normaliser {
	n := &Normaliser{minBlockChars: DefaultMinBlockChars}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SupportedKinds returns the content kinds this normaliser handles.
func (n *Normaliser) SupportedKinds() []domain.ContentKind {
	return []domain.ContentKind{domain.ContentKindMarkdown}
}

// Extract splits a markdown document into heading-scoped blocks.
func (n *Normaliser) Extract(_ context.Context, doc *domain.FetchedDocument) (*domain.ExtractedDocument, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}
	if strings.TrimSpace(string(doc.Content)) == "" {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "empty content"}
	}

	body, meta := StripFrontMatter(string(doc.Content))
	res := Split(body, n.minBlockChars)
	if len(res.Blocks) == 0 {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "no text blocks"}
	}

	title := meta["title"]
	if title == "" {
		title = res.Title
	}
	if title == "" {
		title = FallbackTitle(doc.Title, doc.Identifier)
	}

	metadata := map[string]string{"format": "markdown"}
	for _, key := range []string{"description", "author"} {
		if v := meta[key]; v != "" {
			metadata[key] = v
		}
	}

	return &domain.ExtractedDocument{
		Title:    title,
		Blocks:   res.Blocks,
		Metadata: metadata,
	}, nil
}

// Result is the output of Split.
type Result struct {
	// Title is the text of the first level-1 heading, if any.
	Title  string
	Blocks []domain.Block
}

var (
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.+?)(?:\s+#+)?\s*$`)
	fenceLine   = regexp.MustCompile("^\\s*(```+|~~~+)")

	images      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	links       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	htmlTags    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	escapes     = regexp.MustCompile(`\\([\\` + "`" + `*_{}\[\]()#+\-.!|>~])`)
	listMarkers = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	quoteMarks  = regexp.MustCompile(`(?m)^>\s?`)
	rules       = regexp.MustCompile(`(?m)^\s*(?:[-*_]\s*){3,}$`)
	spaces      = regexp.MustCompile(`[ \t]+`)

	boilerplate = regexp.MustCompile(`(?i)^(edit this page|edit on github|table of contents|on this page|skip to (main )?content|was this page helpful\??)`)
	copyright   = regexp.MustCompile(`(?i)^(©|\(c\)|copyright\b)`)
)

type heading struct {
	level int
	text  string
}

// Split walks markdown line by line. ATX headings outside code fences set
// the heading path; paragraphs and fenced code become blocks under it.
func Split(content string, minBlockChars int) Result {
	var (
		res     Result
		stack   []heading
		para    []string
		fenced  []string
		inFence bool
		fence   string
	)

	headingPath := func() []string {
		if len(stack) == 0 {
			return nil
		}
		out := make([]string, len(stack))
		for i, h := range stack {
			out[i] = h.text
		}
		return out
	}

	emit := func(text string, code bool) {
		if !code {
			text = clean(text)
		}
		text = strings.TrimSpace(text)
		if len(text) < minBlockChars || isBoilerplate(text) {
			return
		}
		res.Blocks = append(res.Blocks, domain.Block{Text: text, HeadingPath: headingPath()})
	}

	flush := func() {
		if len(para) > 0 {
			emit(strings.Join(para, "\n"), false)
			para = para[:0]
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if m := fenceLine.FindStringSubmatch(line); m != nil {
			marker := m[1][:3]
			switch {
			case !inFence:
				flush()
				inFence, fence = true, marker
				continue
			case marker == fence:
				emit(strings.Join(fenced, "\n"), true)
				fenced = fenced[:0]
				inFence = false
				continue
			}
		}
		if inFence {
			fenced = append(fenced, line)
			continue
		}

		if m := headingLine.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			text := clean(m[2])
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: level, text: text})
			if level == 1 && res.Title == "" {
				res.Title = text
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	// Unterminated fence: keep what was collected.
	if inFence {
		emit(strings.Join(fenced, "\n"), true)
	}
	flush()

	return res
}

// clean reduces inline markdown to readable text.
func clean(s string) string {
	s = images.ReplaceAllString(s, "")
	s = links.ReplaceAllString(s, "$1")
	s = htmlTags.ReplaceAllString(s, "")
	s = rules.ReplaceAllString(s, "")
	s = listMarkers.ReplaceAllString(s, "")
	s = quoteMarks.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "`", "")
	s = escapes.ReplaceAllString(s, "$1")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func isBoilerplate(text string) bool {
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if copyright.MatchString(first) {
		return true
	}
	// Only short blocks are treated as navigation chrome.
	return len(text) < 80 && boilerplate.MatchString(first)
}

// StripFrontMatter removes a leading YAML front matter block and returns
// its scalar string fields.
func StripFrontMatter(content string) (string, map[string]string) {
	meta := map[string]string{}
	trimmed := strings.TrimLeft(content, "\uFEFF")
	if !strings.HasPrefix(trimmed, "---\n") && !strings.HasPrefix(trimmed, "---\r\n") {
		return content, meta
	}

	rest := trimmed[strings.Index(trimmed, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content, meta
	}
	header := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(header), &fields); err == nil {
		for k, v := range fields {
			if s, ok := v.(string); ok {
				meta[strings.ToLower(k)] = strings.TrimSpace(s)
			}
		}
	}
	return body, meta
}

// FallbackTitle returns hint when set, otherwise a title derived from
// the last path segment of identifier.
func FallbackTitle(hint, identifier string) string {
	if hint != "" {
		return hint
	}
	name := path.Base(strings.TrimRight(identifier, "/"))
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
