package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMarkdownATX(t *testing.T) {
	content := `# Design Notes

Intro paragraph.

## Storage

Uses a property graph.

## Queries ##

Windowed.
`
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	doc, chunks := ChunkMarkdown("docs/design.md", content, mod)

	assert.Equal(t, "Design Notes", doc.Title)
	assert.Equal(t, "docs/design.md", doc.Path)
	assert.Greater(t, doc.WordCount, 5)

	require.Len(t, chunks, 3)
	assert.Equal(t, "docs/design.md#0", chunks[0].ID)
	assert.Equal(t, "Design Notes", chunks[0].Heading)
	assert.Equal(t, 1, chunks[0].Level)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Contains(t, chunks[0].Content, "Intro paragraph.")

	assert.Equal(t, "Storage", chunks[1].Heading)
	assert.Equal(t, 2, chunks[1].Level)
	assert.Equal(t, 1, chunks[1].Ordinal)

	// Trailing hashes on a closed ATX heading are stripped.
	assert.Equal(t, "Queries", chunks[2].Heading)
	assert.Equal(t, "docs/design.md#2", chunks[2].ID)

	for _, c := range chunks {
		assert.Equal(t, "2025-06-01T12:00:00Z", c.LastModified.UTC().Format(time.RFC3339))
	}
}

func TestChunkMarkdownSetextAndPreamble(t *testing.T) {
	content := `Before any heading.

Title Line
==========

Body one.

Subtitle
--------

Body two.
`
	doc, chunks := ChunkMarkdown("README.md", content, time.Time{})

	require.Len(t, chunks, 3)
	// The preamble becomes chunk 0 with the document title as heading.
	assert.Equal(t, "Title Line", doc.Title)
	assert.Equal(t, "Title Line", chunks[0].Heading)
	assert.Equal(t, 0, chunks[0].Level)
	assert.Contains(t, chunks[0].Content, "Before any heading.")

	assert.Equal(t, "Title Line", chunks[1].Heading)
	assert.Equal(t, 1, chunks[1].Level)
	assert.Equal(t, "Subtitle", chunks[2].Heading)
	assert.Equal(t, 2, chunks[2].Level)
}

func TestChunkMarkdownFencedCodeIgnoresHeadings(t *testing.T) {
	content := "# Top\n\n```\n# not a heading\n```\n\ntail\n"
	_, chunks := ChunkMarkdown("a.md", content, time.Time{})

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "# not a heading")
	assert.Contains(t, chunks[0].Content, "tail")
}

func TestChunkMarkdownPreviewTruncation(t *testing.T) {
	body := strings.Repeat("x", 2000)
	_, chunks := ChunkMarkdown("a.md", "# H\n"+body, time.Time{})

	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Preview, 512)
	assert.Equal(t, 2000, chunks[0].Length)
	assert.Len(t, chunks[0].Content, 2000)
}

func TestChunkMarkdownUntitled(t *testing.T) {
	doc, chunks := ChunkMarkdown("notes/scratch.md", "just some text\n", time.Time{})
	assert.Equal(t, "scratch", doc.Title)
	require.Len(t, chunks, 1)
	assert.Equal(t, "scratch", chunks[0].Heading)
}

func TestChunkOrdinalsOrderSections(t *testing.T) {
	content := `# Requirements

## FR-01-02

Original search behavior.

## FR-02-01

Replaces FR-01-02 with windowed search.
`
	mod := time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC)
	_, chunks := ChunkMarkdown("docs/prd.md", content, mod)
	require.GreaterOrEqual(t, len(chunks), 3)

	// Every chunk of a file shares the one file mtime, so in-document
	// ordering has to come from ordinals, not timestamps.
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, mod, c.LastModified)
	}
	later := chunks[len(chunks)-1]
	assert.Greater(t, later.Ordinal, chunks[1].Ordinal)
	assert.Equal(t, later.LastModified, chunks[1].LastModified)
}
