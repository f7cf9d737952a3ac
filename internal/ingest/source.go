package ingest

import (
	"path"
	"strings"
	"time"

	"github.com/devgraph/devgraph-go/internal/models"
	"github.com/devgraph/devgraph-go/internal/symbols"
)

// ChunkSource splits a code file into symbol-aware chunks: a header
// chunk covering imports and leading comments, then one chunk per
// declaration. Methods chunk at level 1 under their type.
func ChunkSource(filePath, language, content string, modTime time.Time) []models.Chunk {
	scanner := symbols.ForLanguage(language)
	lines := strings.Split(content, "\n")

	var decls []models.Symbol
	if scanner != nil {
		decls = scanner.Symbols(filePath, lines)
	}

	if len(decls) == 0 {
		// No recognized declarations: the whole file is one chunk.
		return []models.Chunk{newChunk(filePath, path.Base(filePath), 0, 0, content, modTime)}
	}

	var chunks []models.Chunk
	ordinal := 0

	header := strings.Join(lines[:decls[0].LineNumber-1], "\n")
	if strings.TrimSpace(header) != "" {
		chunks = append(chunks, newChunk(filePath, path.Base(filePath), 0, ordinal, header, modTime))
		ordinal++
	}

	for i, decl := range decls {
		start := decl.LineNumber - 1
		end := len(lines)
		if i+1 < len(decls) {
			end = decls[i+1].LineNumber - 1
		}
		level := 0
		if decl.Type == models.SymbolMethod {
			level = 1
		}
		body := strings.TrimRight(strings.Join(lines[start:end], "\n"), "\n")
		chunks = append(chunks, newChunk(filePath, decl.Name, level, ordinal, body, modTime))
		ordinal++
	}
	return chunks
}
