// Package derive infers semantic edges from accumulated evidence. Every
// derived edge carries its provenance (sources), a calibrated
// confidence, and the first/last timestamps at which evidence was seen.
package derive

import (
	"time"
)

// Source tags one kind of evidence. Each source carries a fixed
// per-source confidence; co-commit evidence scales with the shared
// commit count instead.
type Source string

const (
	SourceCommitMessage   Source = "commit-message"
	SourceDocMention      Source = "doc-mention"
	SourceCodeComment     Source = "code-comment"
	SourceSprintWindow    Source = "sprint-window"
	SourceImportGraph     Source = "import-graph"
	SourceGitRename       Source = "git-rename"
	SourceDocEvolution    Source = "doc-evolution"
	SourceFulltextExact   Source = "fulltext-exact"
	SourceFulltextPartial Source = "fulltext-partial"
	SourceCoLibrary       Source = "co-library"
	SourceCoCommit        Source = "co-commit"
)

var sourceConfidence = map[Source]float64{
	SourceCommitMessage:   0.9,
	SourceDocMention:      0.5,
	SourceCodeComment:     0.8,
	SourceSprintWindow:    0.3,
	SourceImportGraph:     0.8,
	SourceGitRename:       1.0,
	SourceDocEvolution:    0.6,
	SourceFulltextExact:   0.7,
	SourceFulltextPartial: 0.4,
	SourceCoLibrary:       0.4,
}

// Evidence is one observation supporting a derived edge, a tagged
// variant over the evidence sources. Count is meaningful only for
// co-commit evidence.
type Evidence struct {
	Source    Source
	Timestamp time.Time
	Count     int
}

// Confidence returns the per-source confidence of this observation.
func (e Evidence) Confidence() float64 {
	if e.Source == SourceCoCommit {
		c := float64(e.Count) / 10
		if c > 1 {
			c = 1
		}
		return c
	}
	return sourceConfidence[e.Source]
}

// Compose folds a new per-source confidence into an existing one using
// the complementary-probability rule. Confidence never decreases.
func Compose(prev, c float64) float64 {
	return 1 - (1-prev)*(1-c)
}

// EdgeUpsert is the reduced form of an evidence list, ready to merge
// onto an edge. FirstSeen/LastSeen are UTC ISO-8601, empty when no
// observation carried a timestamp.
type EdgeUpsert struct {
	Confidence float64
	Sources    []string
	FirstSeen  string
	LastSeen   string
}

// Reduce folds evidence into a single upsert: composed confidence,
// deduplicated source tags in first-seen order, min/max timestamps.
// Reduce is pure; the store-side merge applies the same composition
// against any existing edge.
func Reduce(evidence []Evidence) EdgeUpsert {
	up := EdgeUpsert{}
	seen := map[string]bool{}

	var first, last time.Time
	for _, e := range evidence {
		up.Confidence = Compose(up.Confidence, e.Confidence())
		tag := string(e.Source)
		if !seen[tag] {
			seen[tag] = true
			up.Sources = append(up.Sources, tag)
		}
		if !e.Timestamp.IsZero() {
			if first.IsZero() || e.Timestamp.Before(first) {
				first = e.Timestamp
			}
			if last.IsZero() || e.Timestamp.After(last) {
				last = e.Timestamp
			}
		}
	}
	if !first.IsZero() {
		up.FirstSeen = first.UTC().Format(time.RFC3339)
		up.LastSeen = last.UTC().Format(time.RFC3339)
	}
	return up
}

// Histogram buckets derived-edge confidences at the 0.3 and 0.7
// boundaries for the dry-run report.
type Histogram struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

func (h *Histogram) Add(confidence float64) {
	switch {
	case confidence < 0.3:
		h.Low++
	case confidence < 0.7:
		h.Medium++
	default:
		h.High++
	}
}
