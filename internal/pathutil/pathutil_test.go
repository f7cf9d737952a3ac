package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"src/a.go", "src/a.go"},
		{`src\sub\a.go`, "src/sub/a.go"},
		{"./docs/readme.md", "docs/readme.md"},
		{"a/../b/c.md", "b/c.md"},
		{"../escape.md", "escape.md"},
		{"Case/Sensitive.MD", "Case/Sensitive.MD"},
		{"/rooted/a.go", "rooted/a.go"},
		{".", ""},
		{"a//b.go", "a/b.go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 0, Depth(""))
	assert.Equal(t, 1, Depth("a"))
	assert.Equal(t, 2, Depth("a/b"))
	assert.Equal(t, 3, Depth("a/b/c.go"))
}

func TestParent(t *testing.T) {
	assert.Equal(t, "a/b", Parent("a/b/c.go"))
	assert.Equal(t, "", Parent("top.go"))
	assert.Equal(t, "", Parent(""))
}
