package ingest

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/models"
	"github.com/devgraph/devgraph-go/internal/pathutil"
)

// FileEntry is one regular file found by the walker, addressed by its
// normalized repo-relative path.
type FileEntry struct {
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// defaultIgnores are pruned before descent: version-control metadata,
// dependency caches, build outputs, editor state.
var defaultIgnores = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".tox":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".next":        true,
	".idea":        true,
	".vscode":      true,
	".DS_Store":    true,
}

// Walker streams the file tree in a single filesystem traversal.
// Ignored directories are pruned before descent so memory stays bounded
// by depth times fan-out.
type Walker struct {
	root     string
	subpath  string
	excludes []string
	logger   *logrus.Logger
}

func NewWalker(root, subpath string, excludePatterns []string, logger *logrus.Logger) *Walker {
	return &Walker{root: root, subpath: pathutil.Normalize(subpath), excludes: excludePatterns, logger: logger}
}

// Walk visits every kept directory and file under the root (or the
// configured subpath), invoking dirFn before descending into a
// directory and fileFn for each regular file.
func (w *Walker) Walk(dirFn func(models.Directory) error, fileFn func(FileEntry) error) error {
	start := w.root
	if w.subpath != "" {
		start = filepath.Join(w.root, filepath.FromSlash(w.subpath))
		if info, err := os.Stat(start); err != nil || !info.IsDir() {
			return errs.Newf(errs.KindConfig, "subpath %q is not a directory under the repository", w.subpath)
		}
	}

	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errs.Wrapf(err, errs.KindRepository, "walk failed at %s", p)
		}

		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return errs.Wrapf(relErr, errs.KindRepository, "cannot relativize %s", p)
		}
		norm := pathutil.Normalize(rel)

		if d.IsDir() {
			if norm != "" && w.ignored(norm, d.Name()) {
				w.logger.WithField("dir", norm).Debug("pruned directory")
				return filepath.SkipDir
			}
			if norm == "" {
				return nil // repo root has no Directory node
			}
			return dirFn(models.Directory{Path: norm, Depth: pathutil.Depth(norm)})
		}

		if !d.Type().IsRegular() || w.ignored(norm, d.Name()) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			w.logger.WithError(infoErr).WithField("file", norm).Warn("skipping unstattable file")
			return nil
		}
		return fileFn(FileEntry{Path: norm, AbsPath: p, Size: info.Size(), ModTime: info.ModTime()})
	})
}

func (w *Walker) ignored(norm, base string) bool {
	if defaultIgnores[base] {
		return true
	}
	for _, pattern := range w.excludes {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, norm); ok {
			return true
		}
	}
	return false
}
