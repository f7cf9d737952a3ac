package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgraph/devgraph-go/internal/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "devgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1000, cfg.CommitLimit)
	assert.True(t, cfg.DeriveRelationships)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Greater(t, cfg.MaxWorkers, 0)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "repo_path: /tmp\nshard_count: 4\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
	assert.Contains(t, err.Error(), "shard_count")
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
repo_path: /tmp
commit_limit: 250
exclude_patterns:
  - "*.min.js"
  - "vendor"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", cfg.RepoPath)
	assert.Equal(t, 250, cfg.CommitLimit)
	assert.Equal(t, []string{"*.min.js", "vendor"}, cfg.ExcludePatterns)
}

func TestValidateRequiresRepoPath(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
	assert.Equal(t, 2, errs.ExitCode(err))
}

func TestValidateRejectsBadPattern(t *testing.T) {
	cfg := Default()
	cfg.RepoPath = t.TempDir()
	cfg.ExcludePatterns = []string{"[unclosed"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}

func TestValidateRejectsMissingSubpath(t *testing.T) {
	cfg := Default()
	cfg.RepoPath = t.TempDir()
	cfg.Subpath = "does/not/exist"
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateAcceptsMinimal(t *testing.T) {
	cfg := Default()
	cfg.RepoPath = t.TempDir()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonDirectoryRepo(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := Default()
	cfg.RepoPath = file
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}
