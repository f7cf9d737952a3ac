package ingest

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/devgraph/devgraph-go/internal/models"
)

var (
	atxRe    = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	setextRe = regexp.MustCompile(`^(=+|-+)\s*$`)
)

// ChunkMarkdown splits a Markdown document on ATX and Setext headings
// into hierarchical chunks. Ordinals are 0-based in document order; a
// preamble before the first heading becomes chunk 0 with the document
// title as heading.
func ChunkMarkdown(docPath, content string, modTime time.Time) (models.Document, []models.Chunk) {
	lines := strings.Split(content, "\n")

	type section struct {
		heading string
		level   int
		lines   []string
	}
	var sections []section
	current := section{heading: "", level: 0}
	fenced := false

	flush := func() {
		if current.heading != "" || len(current.lines) > 0 {
			sections = append(sections, current)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			current.lines = append(current.lines, line)
			continue
		}
		if fenced {
			current.lines = append(current.lines, line)
			continue
		}

		if m := atxRe.FindStringSubmatch(line); m != nil {
			flush()
			current = section{heading: m[2], level: len(m[1])}
			continue
		}

		// Setext: a non-empty text line underlined by === (level 1) or
		// --- (level 2).
		if i+1 < len(lines) && trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if m := setextRe.FindStringSubmatch(lines[i+1]); m != nil && len(strings.TrimSpace(lines[i+1])) >= 2 {
				flush()
				level := 1
				if strings.HasPrefix(m[1], "-") {
					level = 2
				}
				current = section{heading: trimmed, level: level}
				i++ // consume the underline
				continue
			}
		}

		current.lines = append(current.lines, line)
	}
	flush()

	title := ""
	words := 0
	for _, s := range sections {
		if title == "" && s.heading != "" {
			title = s.heading
		}
		words += len(strings.Fields(s.heading)) + len(strings.Fields(strings.Join(s.lines, " ")))
	}
	if title == "" {
		title = strings.TrimSuffix(path.Base(docPath), path.Ext(docPath))
	}

	doc := models.Document{Path: docPath, Title: title, WordCount: words}

	chunks := make([]models.Chunk, 0, len(sections))
	for i, s := range sections {
		text := strings.TrimRight(strings.Join(s.lines, "\n"), "\n")
		heading := s.heading
		if heading == "" {
			heading = title
		}
		chunks = append(chunks, newChunk(docPath, heading, s.level, i, text, modTime))
	}
	return doc, chunks
}

// previewLimit bounds content_preview in characters, not bytes.
const previewLimit = 512

func newChunk(docPath, heading string, level, ordinal int, content string, modTime time.Time) models.Chunk {
	preview := content
	if runes := []rune(preview); len(runes) > previewLimit {
		preview = string(runes[:previewLimit])
	}
	return models.Chunk{
		ID:           models.ChunkID(docPath, ordinal),
		DocPath:      docPath,
		Heading:      heading,
		Level:        level,
		Ordinal:      ordinal,
		Content:      content,
		Preview:      preview,
		Length:       len(content),
		LastModified: modTime,
	}
}
