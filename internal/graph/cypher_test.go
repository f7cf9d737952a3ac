package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeNodeParameterizesValues(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.MergeNode("File", "path", "src/a.go", map[string]any{
		"language": "Go",
		"is_code":  true,
	})
	require.NoError(t, err)

	assert.Contains(t, query, "MERGE (n:File {path: $p0})")
	assert.NotContains(t, query, "src/a.go", "values must never appear in query text")
	assert.Equal(t, "src/a.go", b.Params()["p0"])
	assert.Len(t, b.Params(), 3)
}

func TestMergeNodeRejectsBadLabel(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.MergeNode("File) DETACH DELETE (n", "path", "x", nil)
	require.Error(t, err)
}

func TestMergeNodeRejectsBadPropertyKey(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.MergeNode("File", "path", "x", map[string]any{"bad key": 1})
	require.Error(t, err)
}

func TestMergeEdgeShape(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.MergeEdge(
		"GitCommit", "hash", "abc123",
		"File", "path", "src/a.go",
		"TOUCHED",
		map[string]any{"change_type": "M", "additions": 3},
	)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "MATCH (from:GitCommit {hash: $p0})"))
	assert.Contains(t, query, "MERGE (from)-[r:TOUCHED]->(to)")
	assert.Contains(t, query, "SET ")
	assert.Equal(t, "abc123", b.Params()["p0"])
	assert.Equal(t, "src/a.go", b.Params()["p1"])
}

func TestMergeEdgeRejectsBadRel(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.MergeEdge("File", "path", "a", "File", "path", "b", "TOUCHED]->() MATCH", nil)
	require.Error(t, err)
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"File", true},
		{"CO_OCCURS_WITH", true},
		{"_private", true},
		{"p0", true},
		{"", false},
		{"0start", false},
		{"has space", false},
		{"semi;colon", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, validIdentifier(tt.in), tt.in)
	}
}

func TestMergeNodeCommitUpsertShape(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.MergeNode("GitCommit", "hash", "abc123", map[string]any{
		"message":      "fix: escape paths",
		"author":       "dev",
		"author_email": "dev@example.com",
		"timestamp":    "2025-06-01T00:00:00Z",
		"branch":       "main",
		"uid":          "abc123",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "MERGE (n:GitCommit {hash: $p0})"))
	assert.Contains(t, query, "n.uid = ")
	assert.Equal(t, "abc123", b.Params()["p0"])
	assert.Len(t, b.Params(), 7)
}
