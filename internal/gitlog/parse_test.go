package gitlog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgraph/devgraph-go/internal/models"
)

func parseAll(t *testing.T, branch, output string) []models.Commit {
	t.Helper()
	parser := newLogParser(branch)
	var commits []models.Commit
	for _, line := range strings.Split(output, "\n") {
		if c, ok := parser.feed(line); ok {
			commits = append(commits, c)
		}
	}
	if c, ok := parser.flush(); ok {
		commits = append(commits, c)
	}
	return commits
}

func TestParseSingleCommit(t *testing.T) {
	output := "\x01aaaa|Ada Lovelace|ada@example.com|2025-06-05T10:00:00+02:00|Implement FR-01-02 across search.py\n" +
		"\x02\n" +
		"5\t1\tsearch.py\n" +
		"M\tsearch.py\n"

	commits := parseAll(t, "main", output)
	require.Len(t, commits, 1)

	c := commits[0]
	assert.Equal(t, "aaaa", c.Hash)
	assert.Equal(t, "Ada Lovelace", c.Author)
	assert.Equal(t, "ada@example.com", c.AuthorEmail)
	assert.Equal(t, "main", c.Branch)
	assert.Equal(t, "Implement FR-01-02 across search.py", c.Message)
	// Committer timestamps are normalized to UTC at the boundary.
	assert.Equal(t, time.UTC, c.Timestamp.Location())
	assert.Equal(t, "2025-06-05T08:00:00Z", c.Timestamp.Format(time.RFC3339))

	require.Len(t, c.Deltas, 1)
	assert.Equal(t, models.FileDelta{
		Path: "search.py", ChangeType: "M", Additions: 5, Deletions: 1,
	}, c.Deltas[0])
}

func TestParseRenameDelta(t *testing.T) {
	output := "\x01bbbb|Bob|bob@example.com|2025-06-06T00:00:00Z|Rename module\n" +
		"\x02\n" +
		"3\t0\told.py => new.py\n" +
		"R097\told.py\tnew.py\n"

	commits := parseAll(t, "main", output)
	require.Len(t, commits, 1)
	require.Len(t, commits[0].Deltas, 1)

	d := commits[0].Deltas[0]
	assert.Equal(t, "new.py", d.Path)
	assert.Equal(t, "old.py", d.PrevPath)
	assert.Equal(t, models.ChangeRenamed, d.ChangeType)
	assert.Equal(t, 3, d.Additions)
	assert.Equal(t, 0, d.Deletions)
}

func TestParseBracedRenamePath(t *testing.T) {
	assert.Equal(t, "src/core/b.py", numstatPath("src/{old => core}/b.py"))
	assert.Equal(t, "b.py", numstatPath("a.py => b.py"))
	assert.Equal(t, "plain.py", numstatPath("plain.py"))
	assert.Equal(t, "src/b.py", numstatPath("src/{old => }/b.py"))
}

func TestParseMultipleCommitsWithPipesInMessage(t *testing.T) {
	output := "\x01c1|A|a@x|2025-01-01T00:00:00Z|first | with pipe\n" +
		"\x02\n" +
		"1\t1\ta.go\n" +
		"M\ta.go\n" +
		"\x01c2|B|b@x|2025-01-02T00:00:00Z|second\n" +
		"\x02\n" +
		"2\t0\tb.go\n" +
		"A\tb.go\n"

	commits := parseAll(t, "main", output)
	require.Len(t, commits, 2)
	assert.Equal(t, "first | with pipe", commits[0].Message)
	assert.Equal(t, "c2", commits[1].Hash)
	assert.Equal(t, models.ChangeAdded, commits[1].Deltas[0].ChangeType)
}

func TestParseMultiLineMessageBody(t *testing.T) {
	output := "\x01dddd|Dana|dana@example.com|2025-06-07T00:00:00Z|Add windowed search\n" +
		"\n" +
		"Implements FR-02-01 and FR-02-03.\n" +
		"2\t0\tnot-a-file.txt\n" +
		"\x02\n" +
		"4\t2\tsearch.py\n" +
		"M\tsearch.py\n"

	commits := parseAll(t, "main", output)
	require.Len(t, commits, 1)

	c := commits[0]
	assert.Equal(t, "Add windowed search\n\nImplements FR-02-01 and FR-02-03.\n2\t0\tnot-a-file.txt", c.Message)
	// Body lines shaped like stat lines stay in the message.
	require.Len(t, c.Deltas, 1)
	assert.Equal(t, "search.py", c.Deltas[0].Path)
	assert.Equal(t, 4, c.Deltas[0].Additions)
}

func TestParseBinaryNumstat(t *testing.T) {
	output := "\x01c1|A|a@x|2025-01-01T00:00:00Z|binary\n" +
		"\x02\n" +
		"-\t-\tlogo.png\n" +
		"A\tlogo.png\n"

	commits := parseAll(t, "main", output)
	require.Len(t, commits, 1)
	d := commits[0].Deltas[0]
	assert.Equal(t, 0, d.Additions)
	assert.Equal(t, 0, d.Deletions)
	assert.Equal(t, models.ChangeAdded, d.ChangeType)
}

func TestParseCopyDelta(t *testing.T) {
	output := "\x01c1|A|a@x|2025-01-01T00:00:00Z|copy\n" +
		"\x02\n" +
		"C080\ttemplate.py\tvariant.py\n"

	commits := parseAll(t, "main", output)
	require.Len(t, commits, 1)
	d := commits[0].Deltas[0]
	assert.Equal(t, models.ChangeCopied, d.ChangeType)
	assert.Equal(t, "template.py", d.PrevPath)
	assert.Equal(t, "variant.py", d.Path)
}

func TestParseBlamePorcelain(t *testing.T) {
	sha := strings.Repeat("a", 40)
	output := sha + " 1 1 2\n" +
		"author Ada\n" +
		"author-mail <ada@example.com>\n" +
		"\tfirst line\n" +
		sha + " 2 2\n" +
		"\tsecond line\n"

	lines := parseBlame(output)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Line)
	assert.Equal(t, sha, lines[0].CommitHash)
	assert.Equal(t, "Ada", lines[0].Author)
	assert.Equal(t, 2, lines[1].Line)
}

func TestUnquotePath(t *testing.T) {
	assert.Equal(t, "docs/übersicht.md", unquotePath(`"docs/\303\274bersicht.md"`))
	assert.Equal(t, "plain.md", unquotePath("plain.md"))
}
