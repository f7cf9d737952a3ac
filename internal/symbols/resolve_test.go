package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testResolver() *Resolver {
	return NewResolver([]string{
		"app/core/engine.py",
		"app/core/__init__.py",
		"app/util.py",
		"web/src/api.ts",
		"web/src/components/index.ts",
		"internal/graph/client.go",
		"internal/graph/client_test.go",
	}, "github.com/devgraph/devgraph-go")
}

func TestResolvePython(t *testing.T) {
	r := testResolver()

	repo, lib := r.Resolve("app/main.py", "app.core.engine", "python")
	assert.Equal(t, "app/core/engine.py", repo)
	assert.Empty(t, lib)

	repo, lib = r.Resolve("app/main.py", "app.core", "python")
	assert.Equal(t, "app/core/__init__.py", repo)
	assert.Empty(t, lib)

	repo, lib = r.Resolve("app/main.py", "requests.adapters", "python")
	assert.Empty(t, repo)
	assert.Equal(t, "requests", lib)
}

func TestResolveJSRelative(t *testing.T) {
	r := testResolver()

	repo, lib := r.Resolve("web/src/app.tsx", "./api", "typescript")
	assert.Equal(t, "web/src/api.ts", repo)
	assert.Empty(t, lib)

	repo, lib = r.Resolve("web/src/app.tsx", "./components", "typescript")
	assert.Equal(t, "web/src/components/index.ts", repo)
	assert.Empty(t, lib)

	// Unresolvable relative imports yield neither a file nor a library.
	repo, lib = r.Resolve("web/src/app.tsx", "./missing", "typescript")
	assert.Empty(t, repo)
	assert.Empty(t, lib)
}

func TestResolveJSBare(t *testing.T) {
	r := testResolver()

	_, lib := r.Resolve("web/src/app.tsx", "lodash/fp", "javascript")
	assert.Equal(t, "lodash", lib)

	_, lib = r.Resolve("web/src/app.tsx", "@tanstack/react-query/devtools", "javascript")
	assert.Equal(t, "@tanstack/react-query", lib)
}

func TestResolveGo(t *testing.T) {
	r := testResolver()

	repo, lib := r.Resolve("cmd/main.go", "github.com/devgraph/devgraph-go/internal/graph", "go")
	assert.Equal(t, "internal/graph/client.go", repo)
	assert.Empty(t, lib)

	repo, lib = r.Resolve("cmd/main.go", "github.com/sirupsen/logrus", "go")
	assert.Empty(t, repo)
	assert.Equal(t, "github.com/sirupsen/logrus", lib)

	_, lib = r.Resolve("cmd/main.go", "fmt", "go")
	assert.Equal(t, "fmt", lib)
}
