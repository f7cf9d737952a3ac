package symbols

import (
	"sort"
	"strings"

	"github.com/devgraph/devgraph-go/internal/pathutil"
)

// Resolver maps import targets onto repo files where possible and onto
// external library names otherwise.
type Resolver struct {
	files    map[string]bool
	byDir    map[string][]string
	goModule string
}

// NewResolver indexes the repo file set (normalized POSIX paths).
// goModule is the module path from go.mod, or empty.
func NewResolver(files []string, goModule string) *Resolver {
	r := &Resolver{
		files:    make(map[string]bool, len(files)),
		byDir:    make(map[string][]string),
		goModule: goModule,
	}
	for _, f := range files {
		f = pathutil.Normalize(f)
		r.files[f] = true
		dir := pathutil.Parent(f)
		r.byDir[dir] = append(r.byDir[dir], f)
	}
	for dir := range r.byDir {
		sort.Strings(r.byDir[dir])
	}
	return r
}

// Resolve returns either a repo-relative file path or an external
// library name for an import target. Exactly one of the returns is
// non-empty.
func (r *Resolver) Resolve(fromFile, target, language string) (repoPath, library string) {
	switch strings.ToLower(language) {
	case "python":
		return r.resolvePython(target)
	case "javascript", "typescript", "jsx", "tsx":
		return r.resolveJS(fromFile, target)
	case "go":
		return r.resolveGo(target)
	}
	return "", target
}

func (r *Resolver) resolvePython(target string) (string, string) {
	base := strings.ReplaceAll(target, ".", "/")
	for _, candidate := range []string{base + ".py", base + "/__init__.py"} {
		if r.files[candidate] {
			return candidate, ""
		}
	}
	// "pkg.module" style imports resolve against the first segment too.
	root := strings.SplitN(target, ".", 2)[0]
	return "", root
}

func (r *Resolver) resolveJS(fromFile, target string) (string, string) {
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		base := pathutil.Normalize(pathutil.Parent(fromFile) + "/" + target)
		suffixes := []string{"", ".js", ".ts", ".jsx", ".tsx", ".mjs", ".cjs",
			"/index.js", "/index.ts", "/index.jsx", "/index.tsx"}
		for _, suffix := range suffixes {
			if r.files[base+suffix] {
				return base + suffix, ""
			}
		}
		return "", ""
	}
	// Bare specifier: "@scope/name/deep" -> "@scope/name", "lodash/fp" -> "lodash".
	parts := strings.Split(target, "/")
	if strings.HasPrefix(target, "@") && len(parts) >= 2 {
		return "", parts[0] + "/" + parts[1]
	}
	return "", parts[0]
}

func (r *Resolver) resolveGo(target string) (string, string) {
	if r.goModule != "" && (target == r.goModule || strings.HasPrefix(target, r.goModule+"/")) {
		dir := strings.TrimPrefix(strings.TrimPrefix(target, r.goModule), "/")
		for _, f := range r.byDir[dir] {
			if strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go") {
				return f, ""
			}
		}
		return "", ""
	}
	return "", target
}
