// Package structured extracts readable blocks from YAML and JSON files.
package structured

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/normalisers/markdown"
)

// Ensure Normaliser implements the interface.
var _ driven.Extractor = (*Normaliser)(nil)

// Normaliser handles YAML and JSON documents.
type Normaliser struct{}

// New creates a new structured-file normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedKinds returns the content kinds this normaliser handles.
func (n *Normaliser) SupportedKinds() []domain.ContentKind {
	return []domain.ContentKind{domain.ContentKindStructured}
}

// Extract renders each top-level key as one block under [file, key].
// Documents whose root is not a mapping become a single block.
func (n *Normaliser) Extract(_ context.Context, doc *domain.FetchedDocument) (*domain.ExtractedDocument, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}

	var root yaml.Node
	if err := yaml.Unmarshal(doc.Content, &root); err != nil {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "parse: " + err.Error()}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "empty document"}
	}

	title := markdown.FallbackTitle(doc.Title, doc.Identifier)
	top := resolve(root.Content[0])

	var blocks []domain.Block
	if top.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(top.Content); i += 2 {
			key, value := top.Content[i].Value, top.Content[i+1]
			var b strings.Builder
			writeEntry(&b, key, value, 0)
			if text := strings.TrimSpace(b.String()); text != "" {
				blocks = append(blocks, domain.Block{Text: text, HeadingPath: []string{title, key}})
			}
		}
	} else {
		var b strings.Builder
		writeValue(&b, top, 0)
		if text := strings.TrimSpace(b.String()); text != "" {
			blocks = append(blocks, domain.Block{Text: text, HeadingPath: []string{title}})
		}
	}

	if len(blocks) == 0 {
		return nil, &domain.ExtractionError{Identifier: doc.Identifier, Reason: "no text blocks"}
	}
	return &domain.ExtractedDocument{
		Title:    title,
		Blocks:   blocks,
		Metadata: map[string]string{"format": "structured"},
	}, nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func writeEntry(b *strings.Builder, key string, value *yaml.Node, indent int) {
	value = resolve(value)
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(key)
	b.WriteString(":")
	if value.Kind == yaml.ScalarNode {
		b.WriteString(" ")
		b.WriteString(value.Value)
		b.WriteString("\n")
		return
	}
	b.WriteString("\n")
	writeValue(b, value, indent+1)
}

func writeValue(b *strings.Builder, node *yaml.Node, indent int) {
	node = resolve(node)
	pad := strings.Repeat("  ", indent)
	switch node.Kind {
	case yaml.ScalarNode:
		b.WriteString(pad + node.Value + "\n")
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			writeEntry(b, node.Content[i].Value, node.Content[i+1], indent)
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			item = resolve(item)
			if item.Kind == yaml.ScalarNode {
				b.WriteString(pad + "- " + item.Value + "\n")
				continue
			}
			b.WriteString(pad + "-\n")
			writeValue(b, item, indent+1)
		}
	}
}
