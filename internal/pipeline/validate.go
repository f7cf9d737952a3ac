package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/models"
)

// CheckResult is one invariant check. Violations counts offending
// nodes or relationships; zero means the check passed.
type CheckResult struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Violations int64  `json:"violations"`
	Details    string `json:"details,omitempty"`
}

// ValidationReport aggregates a check group.
type ValidationReport struct {
	Checks []CheckResult `json:"checks"`
	Passed bool          `json:"passed"`
}

// DayActivity is one day's commit count.
type DayActivity struct {
	Day     string `json:"day"`
	Commits int64  `json:"commits"`
}

// Analytics is the read-side health summary: graph composition,
// requirement traceability, and commit activity.
type Analytics struct {
	Nodes                     map[string]int64 `json:"nodes"`
	Edges                     map[string]int64 `json:"edges"`
	TraceabilityPct           float64          `json:"traceability_pct"`
	RequirementsWithoutPartOf int64            `json:"requirements_without_part_of"`
	ActivityPerDay            []DayActivity    `json:"activity_per_day"`
	PeakDay                   string           `json:"peak_day,omitempty"`
	PeakCommits               int64            `json:"peak_commits"`
}

// Validator runs invariant checks against an ingested graph. Checks
// are read-only except CleanupOrphans.
type Validator struct {
	client *graph.Client
	logger *logrus.Logger
}

func NewValidator(client *graph.Client, logger *logrus.Logger) *Validator {
	return &Validator{client: client, logger: logger}
}

// derivedRels carry calibrated confidence and evidence sources.
var derivedRels = []string{
	models.RelImplements,
	models.RelEvolvesFrom,
	models.RelDependsOn,
	models.RelRelatesTo,
	models.RelCoOccursWith,
	models.RelMentionsSym,
	models.RelMentionsFile,
	models.RelMentionsCmt,
	models.RelMentionsLib,
}

type check struct {
	name    string
	details string
	query   string
}

// Schema verifies node identity invariants: every node carries its
// natural key and commit timestamps parse as datetimes.
func (v *Validator) Schema(ctx context.Context) (*ValidationReport, error) {
	checks := []check{
		{
			name:    "commits_have_hash",
			details: "GitCommit nodes missing a hash",
			query:   `MATCH (c:GitCommit) WHERE c.hash IS NULL OR c.hash = '' RETURN count(c) AS n`,
		},
		{
			name:    "commits_have_valid_timestamp",
			details: "GitCommit timestamps not in ISO-8601 UTC form",
			query: `MATCH (c:GitCommit)
				WHERE c.timestamp IS NULL
				   OR NOT c.timestamp =~ '\\d{4}-\\d{2}-\\d{2}T\\d{2}:\\d{2}:\\d{2}Z'
				RETURN count(c) AS n`,
		},
		{
			name:    "files_have_path",
			details: "File nodes missing a repo-relative path",
			query:   `MATCH (f:File) WHERE f.path IS NULL OR f.path = '' RETURN count(f) AS n`,
		},
		{
			name:    "chunks_have_id",
			details: "Chunk nodes missing a deterministic id",
			query:   `MATCH (c:Chunk) WHERE c.id IS NULL OR c.id = '' RETURN count(c) AS n`,
		},
		{
			name:    "sprints_have_number",
			details: "Sprint nodes missing a number",
			query:   `MATCH (s:Sprint) WHERE s.number IS NULL RETURN count(s) AS n`,
		},
	}
	return v.runChecks(ctx, checks)
}

// Temporal verifies the timestamp discipline: temporal relationship
// kinds always carry one, structural kinds never do.
func (v *Validator) Temporal(ctx context.Context) (*ValidationReport, error) {
	var temporalKinds, structuralKinds []string
	for rel := range models.TemporalRels {
		temporalKinds = append(temporalKinds, rel)
	}
	for rel := range models.StructuralRels {
		structuralKinds = append(structuralKinds, rel)
	}

	checks := []check{
		{
			name:    "temporal_edges_have_timestamp",
			details: "temporal relationships missing a timestamp",
			query: fmt.Sprintf(`MATCH ()-[r]->()
				WHERE type(r) IN [%s] AND r.timestamp IS NULL
				RETURN count(r) AS n`, quoteList(temporalKinds)),
		},
		{
			name:    "structural_edges_have_no_timestamp",
			details: "structural relationships carrying a timestamp",
			query: fmt.Sprintf(`MATCH ()-[r]->()
				WHERE type(r) IN [%s] AND r.timestamp IS NOT NULL
				RETURN count(r) AS n`, quoteList(structuralKinds)),
		},
		{
			name:    "touched_edges_match_commit_timestamp",
			details: "TOUCHED edges whose timestamp differs from their commit",
			query: `MATCH (c:GitCommit)-[t:TOUCHED]->()
				WHERE t.timestamp <> c.timestamp
				RETURN count(t) AS n`,
		},
	}
	return v.runChecks(ctx, checks)
}

// Relationships verifies derived-edge calibration: confidence in
// (0, 1], at least one evidence source, and no unlinked chunks.
func (v *Validator) Relationships(ctx context.Context) (*ValidationReport, error) {
	derived := quoteList(derivedRels)
	checks := []check{
		{
			name:    "derived_confidence_in_range",
			details: "derived relationships with confidence outside (0, 1]",
			query: fmt.Sprintf(`MATCH ()-[r]->()
				WHERE type(r) IN [%s]
				  AND (r.confidence IS NULL OR r.confidence <= 0 OR r.confidence > 1)
				RETURN count(r) AS n`, derived),
		},
		{
			name:    "derived_edges_have_sources",
			details: "derived relationships without evidence sources",
			query: fmt.Sprintf(`MATCH ()-[r]->()
				WHERE type(r) IN [%s]
				  AND (r.sources IS NULL OR size(r.sources) = 0)
				RETURN count(r) AS n`, derived),
		},
		{
			name:    "chunks_are_linked",
			details: "chunks not reachable through CONTAINS_CHUNK",
			query: `MATCH (c:Chunk)
				WHERE NOT EXISTS { MATCH ()-[:CONTAINS_CHUNK]->(c) }
				RETURN count(c) AS n`,
		},
		{
			name:    "implements_target_files",
			details: "IMPLEMENTS edges not ending at a File",
			query: `MATCH ()-[r:IMPLEMENTS]->(x)
				WHERE NOT x:File
				RETURN count(r) AS n`,
		},
	}
	return v.runChecks(ctx, checks)
}

// CleanupOrphans deletes nodes with no relationships at all and
// returns how many were removed. Watermarks are intentionally
// relationship-free and are left alone.
func (v *Validator) CleanupOrphans(ctx context.Context) (int64, error) {
	res, err := v.client.Write(ctx, `
		MATCH (n)
		WHERE NOT (n)--() AND NOT n:DerivationWatermark
		DETACH DELETE n
		RETURN count(n) AS n`, nil)
	if err != nil {
		return 0, err
	}
	removed := countFrom(res)
	if removed > 0 {
		v.logger.WithField("removed", removed).Info("orphan nodes deleted")
	}
	return removed, nil
}

// Analytics computes the read-side health summary in a handful of
// aggregate queries.
func (v *Validator) Analytics(ctx context.Context) (*Analytics, error) {
	out := &Analytics{
		Nodes: map[string]int64{},
		Edges: map[string]int64{},
	}

	res, err := v.client.Read(ctx, `
		CALL {
			MATCH (n)
			UNWIND labels(n) AS name
			RETURN 'node' AS kind, name, count(*) AS n
			UNION ALL
			MATCH ()-[r]->()
			RETURN 'edge' AS kind, type(r) AS name, count(*) AS n
		}
		RETURN kind, name, n`, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range res.Records {
		kind, _ := rec.Get("kind")
		name, _ := rec.Get("name")
		n, _ := rec.Get("n")
		count, _ := n.(int64)
		label, _ := name.(string)
		if kind == "node" {
			out.Nodes[label] = count
		} else {
			out.Edges[label] = count
		}
	}

	implemented, err := v.client.ReadInt(ctx, `
		MATCH (req:Requirement)
		WHERE EXISTS { MATCH (req)-[:IMPLEMENTS]->(:File) }
		RETURN count(req) AS n`, nil)
	if err != nil {
		return nil, err
	}
	if total := out.Nodes[models.LabelRequirement]; total > 0 {
		out.TraceabilityPct = 100 * float64(implemented) / float64(total)
	}

	out.RequirementsWithoutPartOf, err = v.client.ReadInt(ctx, `
		MATCH (req:Requirement)
		WHERE NOT EXISTS { MATCH (req)-[:PART_OF]->() }
		RETURN count(req) AS n`, nil)
	if err != nil {
		return nil, err
	}

	res, err = v.client.Read(ctx, `
		MATCH (c:GitCommit)
		WITH date(datetime(c.timestamp)) AS day, count(*) AS commits
		RETURN toString(day) AS day, commits
		ORDER BY day`, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range res.Records {
		dayVal, _ := rec.Get("day")
		commitsVal, _ := rec.Get("commits")
		day, _ := dayVal.(string)
		commits, _ := commitsVal.(int64)
		out.ActivityPerDay = append(out.ActivityPerDay, DayActivity{Day: day, Commits: commits})
		if commits > out.PeakCommits {
			out.PeakCommits = commits
			out.PeakDay = day
		}
	}
	return out, nil
}

func (v *Validator) runChecks(ctx context.Context, checks []check) (*ValidationReport, error) {
	report := &ValidationReport{Passed: true}
	for _, c := range checks {
		violations, err := v.client.ReadInt(ctx, c.query, nil)
		if err != nil {
			return nil, err
		}
		result := CheckResult{
			Name:       c.name,
			Passed:     violations == 0,
			Violations: violations,
		}
		if violations > 0 {
			result.Details = c.details
			report.Passed = false
			v.logger.WithFields(logrus.Fields{
				"check":      c.name,
				"violations": violations,
			}).Warn("invariant check failed")
		}
		report.Checks = append(report.Checks, result)
	}
	return report, nil
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + item + "'"
	}
	return strings.Join(quoted, ", ")
}

func countFrom(res *neo4j.EagerResult) int64 {
	if len(res.Records) == 0 {
		return 0
	}
	v, ok := res.Records[0].Get("n")
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}
