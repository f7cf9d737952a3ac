// Package sprints maps sprint documents onto the commit timeline.
// Sprint folders follow the convention **/sprints/sprint-<number>/**;
// each sprint declares start_date and end_date in YAML front matter or
// in the document body. Dates are written to the graph verbatim, never
// reformatted or timezone-shifted.
package sprints

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/graph"
)

var (
	sprintFolderRe = regexp.MustCompile(`(?:^|/)sprints/sprint-(\d+)(?:/|$)`)
	frontMatterRe  = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*(?:\n|\z)`)
	startDateRe    = regexp.MustCompile(`(?mi)^\**\s*start[ _-]date\**\s*[:=]\s*\**\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[^\s*]*)`)
	endDateRe      = regexp.MustCompile(`(?mi)^\**\s*end[ _-]date\**\s*[:=]\s*\**\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[^\s*]*)`)
	requirementRe  = regexp.MustCompile(`\bFR-\d+-\d+\b`)
)

// SprintFolder extracts the sprint number from a document path, if the
// path lies under a sprint folder.
func SprintFolder(path string) (int, bool) {
	m := sprintFolderRe.FindStringSubmatch(path)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseDates pulls start_date and end_date out of a sprint document:
// YAML front matter first, then inline declarations. The returned
// strings are exactly as written.
func ParseDates(content string) (start, end string, ok bool) {
	if m := frontMatterRe.FindStringSubmatch(content); m != nil {
		var fm struct {
			StartDate string `yaml:"start_date"`
			EndDate   string `yaml:"end_date"`
		}
		if err := yaml.Unmarshal([]byte(m[1]), &fm); err == nil && fm.StartDate != "" && fm.EndDate != "" {
			return fm.StartDate, fm.EndDate, true
		}
	}

	sm := startDateRe.FindStringSubmatch(content)
	em := endDateRe.FindStringSubmatch(content)
	if sm != nil && em != nil {
		return sm[1], em[1], true
	}
	return "", "", false
}

// Result reports Stage 5 outcomes.
type Result struct {
	Sprints      int           `json:"sprints"`
	Includes     int           `json:"includes_edges"`
	Involves     int           `json:"involves_file_edges"`
	Docs         int           `json:"contains_doc_edges"`
	Requirements int           `json:"requirements_linked"`
	Duration     time.Duration `json:"-"`
}

// Mapper links sprints to commits by timestamp range, to their
// documents, and to the requirements those documents mention.
type Mapper struct {
	client *graph.Client
	load   func(path string) (string, error)
	logger *logrus.Logger
}

func NewMapper(client *graph.Client, load func(path string) (string, error), logger *logrus.Logger) *Mapper {
	return &Mapper{client: client, load: load, logger: logger}
}

type sprintDocs struct {
	number int
	name   string
	start  string
	end    string
	docs   []string
}

// Run maps every sprint found among the ingested document paths.
func (m *Mapper) Run(ctx context.Context, docPaths []string) (*Result, error) {
	started := time.Now()
	result := &Result{}

	byNumber := map[int]*sprintDocs{}
	for _, p := range docPaths {
		number, ok := SprintFolder(p)
		if !ok {
			continue
		}
		s := byNumber[number]
		if s == nil {
			s = &sprintDocs{number: number, name: "sprint-" + strconv.Itoa(number)}
			byNumber[number] = s
		}
		s.docs = append(s.docs, p)
	}

	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		sprint := byNumber[n]
		if err := m.resolveDates(sprint); err != nil {
			m.logger.WithField("sprint", n).WithError(err).Warn("sprint skipped: no date window")
			continue
		}
		if err := m.mapSprint(ctx, sprint, result); err != nil {
			return result, err
		}
		result.Sprints++
	}

	result.Duration = time.Since(started)
	m.logger.WithFields(logrus.Fields{
		"sprints":      result.Sprints,
		"includes":     result.Includes,
		"involves":     result.Involves,
		"requirements": result.Requirements,
		"duration":     result.Duration.String(),
	}).Info("sprint mapping completed")

	return result, nil
}

func (m *Mapper) resolveDates(sprint *sprintDocs) error {
	for _, doc := range sprint.docs {
		content, err := m.load(doc)
		if err != nil {
			continue
		}
		if start, end, ok := ParseDates(content); ok {
			sprint.start, sprint.end = start, end
			return nil
		}
	}
	return errs.Newf(errs.KindInternal, "no document declares start_date/end_date for sprint %d", sprint.number)
}

// upperBound widens a date-only end bound to the end of that day so the
// window is inclusive. The stored end_date stays verbatim.
func upperBound(end string) string {
	if len(end) == len("2006-01-02") {
		return end + "T23:59:59Z"
	}
	return end
}

func (m *Mapper) mapSprint(ctx context.Context, sprint *sprintDocs, result *Result) error {
	if _, err := m.client.Write(ctx, `
		MERGE (s:Sprint {number: $number})
		SET s.name = $name, s.start_date = $start, s.end_date = $end, s.uid = 'sprint-' + toString($number)
	`, map[string]any{
		"number": sprint.number, "name": sprint.name,
		"start": sprint.start, "end": sprint.end,
	}); err != nil {
		return errs.Wrapf(err, errs.KindOf(err), "sprint %d upsert failed", sprint.number)
	}

	includes, err := m.writeCount(ctx, `
		MATCH (s:Sprint {number: $number})
		MATCH (c:GitCommit)
		WHERE c.timestamp >= $start AND c.timestamp <= $end
		MERGE (s)-[:INCLUDES]->(c)
		RETURN count(c) AS n
	`, map[string]any{"number": sprint.number, "start": sprint.start, "end": upperBound(sprint.end)})
	if err != nil {
		return err
	}
	result.Includes += includes

	involves, err := m.writeCount(ctx, `
		MATCH (s:Sprint {number: $number})-[:INCLUDES]->(:GitCommit)-[:TOUCHED]->(f:File)
		WITH DISTINCT s, f
		MERGE (s)-[:INVOLVES_FILE]->(f)
		RETURN count(f) AS n
	`, map[string]any{"number": sprint.number})
	if err != nil {
		return err
	}
	result.Involves += involves

	docs, err := m.writeCount(ctx, `
		MATCH (s:Sprint {number: $number})
		MATCH (d:Document)
		WHERE d.path IN $paths
		MERGE (s)-[:CONTAINS_DOC]->(d)
		RETURN count(d) AS n
	`, map[string]any{"number": sprint.number, "paths": sprint.docs})
	if err != nil {
		return err
	}
	result.Docs += docs

	linked, err := m.linkRequirements(ctx, sprint)
	if err != nil {
		return err
	}
	result.Requirements += linked
	return nil
}

// linkRequirements scans the sprint documents' chunks for requirement
// ids, creating Requirement nodes, MENTIONS edges, and PART_OF links to
// both the sprint and the declaring document.
func (m *Mapper) linkRequirements(ctx context.Context, sprint *sprintDocs) (int, error) {
	res, err := m.client.Read(ctx, `
		MATCH (d:Document)-[:CONTAINS_CHUNK]->(ch:Chunk)
		WHERE d.path IN $paths
		RETURN ch.id AS id, ch.content AS content, d.path AS doc
	`, map[string]any{"paths": sprint.docs})
	if err != nil {
		return 0, err
	}

	type mention struct{ chunkID, reqID, doc string }
	var mentions []mention
	seen := map[string]bool{}
	for _, record := range res.Records {
		id, _ := record.Get("id")
		content, _ := record.Get("content")
		doc, _ := record.Get("doc")
		for _, reqID := range requirementRe.FindAllString(content.(string), -1) {
			key := id.(string) + "\x00" + reqID
			if seen[key] {
				continue
			}
			seen[key] = true
			mentions = append(mentions, mention{chunkID: id.(string), reqID: reqID, doc: doc.(string)})
		}
	}
	if len(mentions) == 0 {
		return 0, nil
	}

	rows := make([]map[string]any, len(mentions))
	for i, mt := range mentions {
		rows[i] = map[string]any{"chunk": mt.chunkID, "req": mt.reqID, "doc": mt.doc}
	}
	if _, err := m.client.Write(ctx, `
		UNWIND $rows AS row
		MATCH (ch:Chunk {id: row.chunk})
		MATCH (d:Document {path: row.doc})
		MATCH (s:Sprint {number: $number})
		MERGE (r:Requirement {id: row.req})
		ON CREATE SET r.title = row.req, r.type = 'functional', r.uid = row.req
		MERGE (ch)-[:MENTIONS]->(r)
		MERGE (r)-[:PART_OF]->(s)
		MERGE (r)-[:PART_OF]->(d)
	`, map[string]any{"rows": rows, "number": sprint.number}); err != nil {
		return 0, errs.Wrapf(err, errs.KindOf(err), "requirement linking failed for sprint %d", sprint.number)
	}

	distinct := map[string]bool{}
	for _, mt := range mentions {
		distinct[mt.reqID] = true
	}
	return len(distinct), nil
}

func (m *Mapper) writeCount(ctx context.Context, query string, params map[string]any) (int, error) {
	res, err := m.client.Write(ctx, query, params)
	if err != nil {
		return 0, errs.Wrapf(err, errs.KindOf(err), "sprint mapping query failed")
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	if v, ok := res.Records[0].Get("n"); ok {
		if n, ok := v.(int64); ok {
			return int(n), nil
		}
	}
	return 0, nil
}
