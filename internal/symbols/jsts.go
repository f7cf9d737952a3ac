package symbols

import (
	"regexp"
	"strings"

	"github.com/devgraph/devgraph-go/internal/models"
)

// jstsScanner covers JavaScript and TypeScript with brace plus
// signature regexes. Decorators, overloads, and nested declarations are
// out of scope for the shallow parse.
type jstsScanner struct{}

var (
	jsFuncRe      = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(([^)]*)`)
	jsClassRe     = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`)
	jsInterfaceRe = regexp.MustCompile(`^(?:export\s+)?interface\s+(\w+)`)
	jsArrowRe     = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+(\w+)\s*(?::[^=]+)?=\s*(?:async\s*)?(?:\([^)]*\)|\w+)\s*=>`)
	jsMethodRe    = regexp.MustCompile(`^\s{2,}(?:public\s+|private\s+|protected\s+|static\s+|async\s+)*(\w+)\s*\(([^)]*)\)\s*(?::[^({]+)?\{`)

	jsImportRe  = regexp.MustCompile(`^\s*import\s+(?:[\w*{},\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequireRe = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	jsDynamicRe = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
)

var jsMethodKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true, "return": true,
}

func (jstsScanner) Symbols(path string, lines []string) []models.Symbol {
	var symbols []models.Symbol
	inClass := false

	for i, line := range lines {
		if m := jsClassRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolClass, line, i))
			inClass = true
			continue
		}
		if m := jsInterfaceRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolInterface, line, i))
			continue
		}
		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolFunction, line, i))
			inClass = false
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolFunction, line, i))
			inClass = false
			continue
		}
		if inClass {
			if strings.HasPrefix(line, "}") {
				inClass = false
				continue
			}
			if m := jsMethodRe.FindStringSubmatch(line); m != nil && !jsMethodKeywords[m[1]] {
				symbols = append(symbols, symbol(path, m[1], models.SymbolMethod, line, i))
			}
		}
	}
	return symbols
}

func (jstsScanner) Imports(lines []string) []Import {
	var imports []Import
	for _, line := range lines {
		if m := jsImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Import{Target: m[1]})
			continue
		}
		for _, m := range jsRequireRe.FindAllStringSubmatch(line, -1) {
			imports = append(imports, Import{Target: m[1]})
		}
		for _, m := range jsDynamicRe.FindAllStringSubmatch(line, -1) {
			imports = append(imports, Import{Target: m[1], Dynamic: true})
		}
	}
	return imports
}

func symbol(path, name, symType, line string, idx int) models.Symbol {
	sig := strings.TrimSpace(line)
	sig = strings.TrimSuffix(sig, "{")
	return models.Symbol{
		FilePath:   path,
		Name:       name,
		Type:       symType,
		Signature:  strings.TrimSpace(sig),
		LineNumber: idx + 1,
	}
}
