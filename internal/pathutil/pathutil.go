// Package pathutil normalizes repository paths before they are hashed
// or used as graph keys. The same file ingested on Windows and POSIX
// must yield one node.
package pathutil

import (
	"path"
	"strings"
)

// Normalize converts a repo-relative path to POSIX form: forward
// slashes, no leading "./", no ".." segments, case preserved.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	if p == "." || p == ".." {
		return ""
	}
	return strings.TrimPrefix(p, "/")
}

// Depth returns the directory depth of a normalized path; the repo
// root is depth 0.
func Depth(p string) int {
	p = Normalize(p)
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// Parent returns the normalized parent directory, or "" at the root.
func Parent(p string) string {
	dir := path.Dir(Normalize(p))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
