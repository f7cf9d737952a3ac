// Package ingest turns a filesystem snapshot into File, Directory,
// Document, and Chunk nodes plus their containment edges. The walk is a
// single traversal; chunking fans out to a worker pool and all writes
// funnel through one batched writer.
package ingest

import (
	"bytes"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/src-d/enry/v2"
)

// Classification is the per-file decision driving chunking: documents
// get Markdown chunks, code gets symbol-aware chunks, everything else
// only gets a File node.
type Classification struct {
	Language string
	IsCode   bool
	IsDoc    bool
	IsBinary bool
}

var codeExtensions = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "jsx",
	".ts":   "typescript",
	".tsx":  "tsx",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".go":   "go",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
}

var docExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".rst":      true,
	".txt":      true,
}

// Classify decides is_code/is_doc/is_other from the extension plus a
// small content sniff (BOM and UTF-8 validity). Language comes from the
// extension first, with enry as the fallback detector.
func Classify(p string, content []byte) Classification {
	ext := strings.ToLower(path.Ext(p))

	c := Classification{IsBinary: binaryContent(content)}

	if lang, ok := codeExtensions[ext]; ok {
		c.Language = lang
		c.IsCode = !c.IsBinary
		return c
	}
	if docExtensions[ext] {
		c.Language = "markdown"
		if ext == ".txt" || ext == ".rst" {
			c.Language = "text"
		}
		c.IsDoc = !c.IsBinary
		return c
	}

	if c.IsBinary || enry.IsBinary(content) {
		c.IsBinary = true
		return c
	}
	// Extension-based detection only; the bayesian classifier always
	// guesses and would mislabel unknown formats.
	if langs := enry.GetLanguagesByExtension(path.Base(p), content, nil); len(langs) == 1 {
		c.Language = strings.ToLower(langs[0])
	}
	return c
}

// binaryContent sniffs the first block for NUL bytes after stripping a
// UTF BOM; undecodable non-UTF-8 text is left for the decoder to sort
// out.
func binaryContent(content []byte) bool {
	content = StripBOM(content)
	sniff := content
	if len(sniff) > 8192 {
		sniff = sniff[:8192]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

// StripBOM removes a leading UTF-8 byte-order mark.
func StripBOM(content []byte) []byte {
	return bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
}

// ValidUTF8 reports whether the content (minus BOM) is well-formed
// UTF-8.
func ValidUTF8(content []byte) bool {
	return utf8.Valid(StripBOM(content))
}
