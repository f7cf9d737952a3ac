// Package symbols performs shallow structural analysis of source
// files: top-level declarations, import statements, and dependency
// manifests. The parsers are intentionally line-based; ambiguity (for
// example dynamic imports) is surfaced as lower confidence on the
// resulting edge rather than a parse failure.
package symbols

import (
	"strings"

	"github.com/devgraph/devgraph-go/internal/models"
)

// Import is one import/require/use statement found in a source file.
type Import struct {
	Target  string
	Dynamic bool
}

// Confidence returns the per-source confidence for the resulting edge.
// Dynamic imports cannot be resolved statically and score 0.5.
func (i Import) Confidence() float64 {
	if i.Dynamic {
		return 0.5
	}
	return 1.0
}

// Scanner extracts symbols and imports for one language family.
type Scanner interface {
	Symbols(path string, lines []string) []models.Symbol
	Imports(lines []string) []Import
}

// ForLanguage returns the scanner for a detected language, or nil when
// the language has no scanner (the file still gets File/Chunk nodes,
// just no Symbol nodes).
func ForLanguage(language string) Scanner {
	switch strings.ToLower(language) {
	case "python":
		return pythonScanner{}
	case "javascript", "typescript", "jsx", "tsx":
		return jstsScanner{}
	case "go":
		return goScanner{}
	}
	return nil
}
