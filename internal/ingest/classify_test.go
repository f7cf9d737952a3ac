package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByExtension(t *testing.T) {
	tests := []struct {
		path     string
		content  string
		language string
		isCode   bool
		isDoc    bool
	}{
		{"src/app.py", "import os\n", "python", true, false},
		{"web/index.tsx", "export const App = () => null;\n", "tsx", true, false},
		{"internal/graph/client.go", "package graph\n", "go", true, false},
		{"docs/readme.md", "# Title\n", "markdown", false, true},
		{"notes.txt", "plain\n", "text", false, true},
		{"assets/data.blob", "opaque payload", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := Classify(tt.path, []byte(tt.content))
			assert.Equal(t, tt.language, c.Language)
			assert.Equal(t, tt.isCode, c.IsCode)
			assert.Equal(t, tt.isDoc, c.IsDoc)
		})
	}
}

func TestClassifyBinary(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01}, make([]byte, 32)...)
	c := Classify("img/logo.png", png)
	assert.True(t, c.IsBinary)
	assert.False(t, c.IsCode)
	assert.False(t, c.IsDoc)

	// A NUL byte disqualifies even a code extension.
	c = Classify("weird.py", []byte("a\x00b"))
	assert.True(t, c.IsBinary)
	assert.False(t, c.IsCode)
}

func TestClassifyBOM(t *testing.T) {
	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("# Title\n")...)
	c := Classify("doc.md", bom)
	assert.True(t, c.IsDoc)
	assert.False(t, c.IsBinary)
}
