package derive

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeRule(t *testing.T) {
	assert.InDelta(t, 0.95, Compose(0.9, 0.5), 1e-9)
	assert.InDelta(t, 0.9, Compose(0, 0.9), 1e-9)
	assert.InDelta(t, 1.0, Compose(1.0, 0.3), 1e-9)

	// Composition never decreases confidence.
	prev := 0.0
	for _, c := range []float64{0.3, 0.1, 0.9, 0.05} {
		next := Compose(prev, c)
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
}

func TestReduceCommitAndDocMention(t *testing.T) {
	t1 := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)

	up := Reduce([]Evidence{
		{Source: SourceCommitMessage, Timestamp: t1},
		{Source: SourceDocMention, Timestamp: t2},
	})

	assert.InDelta(t, 0.95, up.Confidence, 1e-9)
	assert.Equal(t, []string{"commit-message", "doc-mention"}, up.Sources)
	assert.Equal(t, "2025-06-05T10:00:00Z", up.FirstSeen)
	assert.Equal(t, "2025-06-09T10:00:00Z", up.LastSeen)
}

func TestReduceDeduplicatesSources(t *testing.T) {
	up := Reduce([]Evidence{
		{Source: SourceCommitMessage},
		{Source: SourceCommitMessage},
	})
	assert.Equal(t, []string{"commit-message"}, up.Sources)
	assert.InDelta(t, 0.99, up.Confidence, 1e-9)
	assert.Empty(t, up.FirstSeen)
}

func TestCoCommitConfidenceScales(t *testing.T) {
	assert.InDelta(t, 0.3, Evidence{Source: SourceCoCommit, Count: 3}.Confidence(), 1e-9)
	assert.InDelta(t, 1.0, Evidence{Source: SourceCoCommit, Count: 10}.Confidence(), 1e-9)
	assert.InDelta(t, 1.0, Evidence{Source: SourceCoCommit, Count: 40}.Confidence(), 1e-9)
}

func TestSourceConfidences(t *testing.T) {
	tests := map[Source]float64{
		SourceCommitMessage:   0.9,
		SourceDocMention:      0.5,
		SourceCodeComment:     0.8,
		SourceSprintWindow:    0.3,
		SourceImportGraph:     0.8,
		SourceGitRename:       1.0,
		SourceFulltextExact:   0.7,
		SourceFulltextPartial: 0.4,
		SourceCoLibrary:       0.4,
	}
	for source, want := range tests {
		assert.Equal(t, want, Evidence{Source: source}.Confidence(), string(source))
	}
}

func TestHistogramBins(t *testing.T) {
	var h Histogram
	for _, c := range []float64{0.1, 0.29, 0.3, 0.5, 0.69, 0.7, 0.95, 1.0} {
		h.Add(c)
	}
	assert.Equal(t, 2, h.Low)
	assert.Equal(t, 3, h.Medium)
	assert.Equal(t, 3, h.High)
}

func TestReduceConfidenceBounded(t *testing.T) {
	ev := make([]Evidence, 50)
	for i := range ev {
		ev[i] = Evidence{Source: SourceCommitMessage}
	}
	up := Reduce(ev)
	assert.LessOrEqual(t, up.Confidence, 1.0)
	assert.False(t, math.IsNaN(up.Confidence))
}

func TestEffectiveWatermark(t *testing.T) {
	// No override keeps the stored watermark.
	assert.Equal(t, "2025-01-01T00:00:00Z", effectiveWatermark("2025-01-01T00:00:00Z", ""))
	// since earlier than the watermark forces a full rerun.
	assert.Equal(t, "", effectiveWatermark("2025-01-01T00:00:00Z", "2024-06-01T00:00:00Z"))
	// since later than the watermark narrows the window.
	assert.Equal(t, "2025-03-01T00:00:00Z", effectiveWatermark("2025-01-01T00:00:00Z", "2025-03-01T00:00:00Z"))
	// since with no stored watermark is used as-is.
	assert.Equal(t, "2025-03-01T00:00:00Z", effectiveWatermark("", "2025-03-01T00:00:00Z"))
}

func TestRequirementAndEvolutionPatterns(t *testing.T) {
	ids := requirementIDRe.FindAllString("Implement FR-01-02 and FR-03-04 across search.py", -1)
	assert.Equal(t, []string{"FR-01-02", "FR-03-04"}, ids)

	m := evolutionRe.FindStringSubmatch("FR-02-01 supersedes FR-01-02 going forward")
	require.NotNil(t, m)
	assert.Equal(t, "FR-01-02", m[2])

	assert.Nil(t, evolutionRe.FindStringSubmatch("plain refactor commit"))
}

func TestSyntheticRequirementID(t *testing.T) {
	assert.Equal(t, "REQ-0123456789", syntheticID("0123456789abcdef0123456789abcdef01234567"))
	assert.True(t, syntheticRe.MatchString("Implement search caching"))
	assert.True(t, syntheticRe.MatchString("feat: new parser"))
	assert.False(t, syntheticRe.MatchString("Fix typo"))
}

func TestFirstLineAndDedup(t *testing.T) {
	assert.Equal(t, "subject", firstLine("subject\n\nbody text"))
	assert.Equal(t, "subject", firstLine("subject"))
	assert.Equal(t, []string{"a", "b"}, dedup([]string{"a", "b", "a"}))
}

func TestEscapeLuceneModulePaths(t *testing.T) {
	// Module paths and scoped packages carry slashes, which open a
	// regex literal in the fulltext parser unless escaped.
	assert.Equal(t, `golang.org\/x\/sync`, escapeLucene("golang.org/x/sync"))
	assert.Equal(t, `@scope\/pkg`, escapeLucene("@scope/pkg"))
}

func TestEscapeLuceneOperators(t *testing.T) {
	cases := map[string]string{
		"operator+":       `operator\+`,
		"main(argc)":      `main\(argc\)`,
		"ns::method":      `ns\:\:method`,
		"a && b || c":     `a \&& b \|| c`,
		"glob*?[x]{y}^~!": `glob\*\?\[x\]\{y\}\^\~\!`,
		`back\slash "q"`:  `back\\slash \"q\"`,
		"plain_name":      "plain_name",
	}
	for in, want := range cases {
		assert.Equal(t, want, escapeLucene(in), "term %q", in)
	}
}
