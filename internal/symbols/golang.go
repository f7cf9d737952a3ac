package symbols

import (
	"regexp"
	"strings"

	"github.com/devgraph/devgraph-go/internal/models"
)

// goScanner uses brace plus func/type rules. struct types map to the
// class symbol type so one vocabulary covers every language.
type goScanner struct{}

var (
	goFuncRe      = regexp.MustCompile(`^func\s+(\w+)\s*\(`)
	goMethodRe    = regexp.MustCompile(`^func\s+\([^)]+\)\s+(\w+)\s*\(`)
	goStructRe    = regexp.MustCompile(`^type\s+(\w+)\s+struct\b`)
	goInterfaceRe = regexp.MustCompile(`^type\s+(\w+)\s+interface\b`)

	goImportSingleRe = regexp.MustCompile(`^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportLineRe   = regexp.MustCompile(`^\s+(?:[\w.]+\s+)?"([^"]+)"`)
)

func (goScanner) Symbols(path string, lines []string) []models.Symbol {
	var symbols []models.Symbol
	for i, line := range lines {
		if m := goMethodRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolMethod, line, i))
			continue
		}
		if m := goFuncRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolFunction, line, i))
			continue
		}
		if m := goStructRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolClass, line, i))
			continue
		}
		if m := goInterfaceRe.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, symbol(path, m[1], models.SymbolInterface, line, i))
		}
	}
	return symbols
}

func (goScanner) Imports(lines []string) []Import {
	var imports []Import
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock:
			if m := goImportLineRe.FindStringSubmatch(line); m != nil {
				imports = append(imports, Import{Target: m[1]})
			}
		default:
			if m := goImportSingleRe.FindStringSubmatch(line); m != nil {
				imports = append(imports, Import{Target: m[1]})
			}
		}
	}
	return imports
}
