package symbols

import (
	"regexp"
	"strings"

	"github.com/devgraph/devgraph-go/internal/models"
)

// pythonScanner uses indentation plus def/class rules. Top-level defs
// are functions; defs indented directly under a class are methods.
type pythonScanner struct{}

var (
	pyClassRe  = regexp.MustCompile(`^class\s+(\w+)`)
	pyDefRe    = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*(\([^)]*\))?`)
	pyImportRe = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	pyFromRe   = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
)

func (pythonScanner) Symbols(path string, lines []string) []models.Symbol {
	var symbols []models.Symbol
	classIndent := -1

	for i, line := range lines {
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, models.Symbol{
				FilePath:   path,
				Name:       m[1],
				Type:       models.SymbolClass,
				Signature:  strings.TrimRight(strings.TrimSuffix(strings.TrimSpace(line), ":"), " "),
				LineNumber: i + 1,
			})
			classIndent = 0
			continue
		}

		m := pyDefRe.FindStringSubmatch(line)
		if m == nil {
			// A non-blank line at column zero closes the class scope.
			if classIndent >= 0 && line != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
				classIndent = -1
			}
			continue
		}

		indent := len(m[1])
		symType := models.SymbolFunction
		if indent > 0 {
			if classIndent < 0 {
				continue // nested helper inside a function, not top-level
			}
			symType = models.SymbolMethod
		} else {
			classIndent = -1
		}

		symbols = append(symbols, models.Symbol{
			FilePath:   path,
			Name:       m[2],
			Type:       symType,
			Signature:  strings.TrimSuffix(strings.TrimSpace(line), ":"),
			LineNumber: i + 1,
		})
	}
	return symbols
}

func (pythonScanner) Imports(lines []string) []Import {
	var imports []Import
	for _, line := range lines {
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Import{Target: m[1]})
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Import{Target: m[1]})
			continue
		}
		if strings.Contains(line, "__import__(") || strings.Contains(line, "importlib.import_module(") {
			if target := quotedArg(line); target != "" {
				imports = append(imports, Import{Target: target, Dynamic: true})
			}
		}
	}
	return imports
}

var quotedArgRe = regexp.MustCompile(`\(\s*['"]([^'"]+)['"]`)

func quotedArg(line string) string {
	if m := quotedArgRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}
