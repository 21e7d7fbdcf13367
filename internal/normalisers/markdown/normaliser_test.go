package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

func TestNew(t *testing.T) {
	n := New()
	require.NotNil(t, n)
	assert.Equal(t, DefaultMinBlockChars, n.minBlockChars)
	assert.Equal(t, []domain.ContentKind{domain.ContentKindMarkdown}, n.SupportedKinds())

	n = New(WithMinBlockChars(0))
	assert.Equal(t, 0, n.minBlockChars)
}

func TestExtract_HeadingPaths(t *testing.T) {
	content := `# Getting Started

This guide walks you through installing the tool.

## Install

Download the binary for your platform and put it on your PATH.

### Linux

Use the tarball and extract it into /usr/local/bin on the machine.

## Configure

Create a configuration file in your home directory before running.
`
	doc := &domain.FetchedDocument{Identifier: "docs/start.md", Content: []byte(content)}

	out, err := New().Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "Getting Started", out.Title)
	require.Len(t, out.Blocks, 4)
	assert.Equal(t, []string{"Getting Started"}, out.Blocks[0].HeadingPath)
	assert.Equal(t, []string{"Getting Started", "Install"}, out.Blocks[1].HeadingPath)
	assert.Equal(t, []string{"Getting Started", "Install", "Linux"}, out.Blocks[2].HeadingPath)
	assert.Equal(t, []string{"Getting Started", "Configure"}, out.Blocks[3].HeadingPath)
	assert.Equal(t, "markdown", out.Metadata["format"])
}

func TestExtract_CodeFencesAreNotHeadings(t *testing.T) {
	content := "# Shell\n\nRun the following script to set things up:\n\n```bash\n# not a heading\necho \"hello world from the script\"\n```\n"
	doc := &domain.FetchedDocument{Identifier: "a.md", Content: []byte(content)}

	out, err := New().Extract(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, out.Blocks, 2)
	assert.Contains(t, out.Blocks[1].Text, "# not a heading")
	assert.Equal(t, []string{"Shell"}, out.Blocks[1].HeadingPath)
}

func TestExtract_FrontMatter(t *testing.T) {
	content := "---\ntitle: Front Title\ndescription: About the thing\nweight: 3\n---\n# Heading\n\nBody paragraph with enough characters in it.\n"
	doc := &domain.FetchedDocument{Identifier: "a.md", Content: []byte(content)}

	out, err := New().Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "Front Title", out.Title)
	assert.Equal(t, "About the thing", out.Metadata["description"])
	require.Len(t, out.Blocks, 1)
	assert.NotContains(t, out.Blocks[0].Text, "weight")
}

func TestExtract_DropsBoilerplateAndShortBlocks(t *testing.T) {
	content := `# Page

Edit this page

ok

Copyright 2026 Example Corp. All rights reserved.

Real documentation content lives in this paragraph.
`
	doc := &domain.FetchedDocument{Identifier: "a.md", Content: []byte(content)}

	out, err := New().Extract(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, out.Blocks, 1)
	assert.Equal(t, "Real documentation content lives in this paragraph.", out.Blocks[0].Text)
}

func TestExtract_CleansInlineMarkup(t *testing.T) {
	content := "Read the [install guide](https://x.dev/install) and **always** run `make test` ![logo](l.png) first.\n"
	doc := &domain.FetchedDocument{Identifier: "a.md", Content: []byte(content)}

	out, err := New().Extract(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, out.Blocks, 1)
	assert.Equal(t, "Read the install guide and always run make test first.", out.Blocks[0].Text)
	assert.Nil(t, out.Blocks[0].HeadingPath)
}

func TestExtract_TitleFallback(t *testing.T) {
	doc := &domain.FetchedDocument{
		Identifier: "docs/getting_started-guide.md",
		Content:    []byte("Just a paragraph without any heading at all.\n"),
	}

	out, err := New().Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "getting started guide", out.Title)

	doc.Title = "Hint"
	out, err = New().Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Hint", out.Title)
}

func TestExtract_Errors(t *testing.T) {
	n := New()

	_, err := n.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var extractionErr *domain.ExtractionError

	_, err = n.Extract(context.Background(), &domain.FetchedDocument{Identifier: "a.md", Content: []byte("  \n")})
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "a.md", extractionErr.Identifier)

	_, err = n.Extract(context.Background(), &domain.FetchedDocument{Identifier: "b.md", Content: []byte("# Only\n\nshort\n")})
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "no text blocks", extractionErr.Reason)
}

func TestSplit_HeadingLevelsPop(t *testing.T) {
	res := Split("## B\n\n### C\n\n# A\n\nparagraph text\n", 0)

	require.Len(t, res.Blocks, 1)
	assert.Equal(t, []string{"A"}, res.Blocks[0].HeadingPath)
	assert.Equal(t, "A", res.Title)
}

func TestSplit_ClosingHashes(t *testing.T) {
	res := Split("## Learn C# ##\n\nsome text\n", 0)

	require.Len(t, res.Blocks, 1)
	assert.Equal(t, []string{"Learn C#"}, res.Blocks[0].HeadingPath)
}

func TestStripFrontMatter_NoHeader(t *testing.T) {
	body, meta := StripFrontMatter("# Title\n---\nmore")
	assert.Equal(t, "# Title\n---\nmore", body)
	assert.Empty(t, meta)
}
