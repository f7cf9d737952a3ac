package sprints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSprintFolder(t *testing.T) {
	tests := []struct {
		path   string
		number int
		ok     bool
	}{
		{"docs/sprints/sprint-07/plan.md", 7, true},
		{"sprints/sprint-12/retro.md", 12, true},
		{"a/b/sprints/sprint-3/notes/deep.md", 3, true},
		{"docs/sprint-07/plan.md", 0, false},
		{"docs/sprints/retro.md", 0, false},
		{"docs/sprints/sprint-abc/x.md", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			n, ok := SprintFolder(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.number, n)
		})
	}
}

func TestParseDatesFrontMatter(t *testing.T) {
	content := `---
title: Sprint 7
start_date: 2025-06-01
end_date: 2025-06-14
---

# Sprint 7 Plan
`
	start, end, ok := ParseDates(content)
	require.True(t, ok)
	// Dates come back exactly as written, never reformatted.
	assert.Equal(t, "2025-06-01", start)
	assert.Equal(t, "2025-06-14", end)
}

func TestParseDatesInline(t *testing.T) {
	content := `# Sprint 9

**Start Date:** 2025-08-04
**End Date:** 2025-08-18

Goals follow.
`
	start, end, ok := ParseDates(content)
	require.True(t, ok)
	assert.Equal(t, "2025-08-04", start)
	assert.Equal(t, "2025-08-18", end)
}

func TestParseDatesMissing(t *testing.T) {
	_, _, ok := ParseDates("# No dates here\n")
	assert.False(t, ok)

	// Front matter without an end_date falls through to inline scan.
	_, _, ok = ParseDates("---\nstart_date: 2025-01-01\n---\nbody\n")
	assert.False(t, ok)
}

func TestParseDatesVerbatimTimestamps(t *testing.T) {
	content := "start_date: 2025-06-01T09:00:00+02:00\nend_date: 2025-06-14T17:00:00+02:00\n"
	start, end, ok := ParseDates(content)
	require.True(t, ok)
	assert.Equal(t, "2025-06-01T09:00:00+02:00", start)
	assert.Equal(t, "2025-06-14T17:00:00+02:00", end)
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, "2025-06-14T23:59:59Z", upperBound("2025-06-14"))
	assert.Equal(t, "2025-06-14T17:00:00Z", upperBound("2025-06-14T17:00:00Z"))
}
