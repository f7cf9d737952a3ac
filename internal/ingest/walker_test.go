package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/models"
)

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dirs := []string{
		"src/api",
		"docs",
		".git/objects",
		"node_modules/react",
	}
	files := map[string]string{
		"README.md":                   "# Hello\n",
		"src/api/server.py":           "import os\n",
		"src/api/server.log":          "noise\n",
		"docs/design.md":              "# Design\n",
		".git/objects/ab":             "blob",
		"node_modules/x.js":           "junk",
		"node_modules/react/index.js": "junk",
	}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	for p, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte(content), 0o644))
	}
	return root
}

func collect(t *testing.T, w *Walker) (dirs []string, files []string) {
	t.Helper()
	err := w.Walk(
		func(d models.Directory) error {
			dirs = append(dirs, d.Path)
			return nil
		},
		func(f FileEntry) error {
			files = append(files, f.Path)
			return nil
		})
	require.NoError(t, err)
	return dirs, files
}

func TestWalkerPrunesAndNormalizes(t *testing.T) {
	root := seedTree(t)
	w := NewWalker(root, "", nil, logrus.New())

	dirs, files := collect(t, w)

	assert.ElementsMatch(t, []string{"src", "src/api", "docs"}, dirs)
	assert.ElementsMatch(t, []string{
		"README.md", "src/api/server.py", "src/api/server.log", "docs/design.md",
	}, files)
}

func TestWalkerExcludePatterns(t *testing.T) {
	root := seedTree(t)
	w := NewWalker(root, "", []string{"*.log"}, logrus.New())

	_, files := collect(t, w)
	assert.NotContains(t, files, "src/api/server.log")
	assert.Contains(t, files, "src/api/server.py")
}

func TestWalkerSubpath(t *testing.T) {
	root := seedTree(t)
	w := NewWalker(root, "src", nil, logrus.New())

	dirs, files := collect(t, w)
	assert.ElementsMatch(t, []string{"src", "src/api"}, dirs)
	assert.ElementsMatch(t, []string{"src/api/server.py", "src/api/server.log"}, files)
}

func TestWalkerBadSubpath(t *testing.T) {
	root := seedTree(t)
	w := NewWalker(root, "no/such/dir", nil, logrus.New())

	err := w.Walk(
		func(models.Directory) error { return nil },
		func(FileEntry) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}

func TestWalkerDirectoryDepth(t *testing.T) {
	root := seedTree(t)
	w := NewWalker(root, "", nil, logrus.New())

	depths := map[string]int{}
	err := w.Walk(
		func(d models.Directory) error {
			depths[d.Path] = d.Depth
			return nil
		},
		func(FileEntry) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 1, depths["src"])
	assert.Equal(t, 2, depths["src/api"])
}
