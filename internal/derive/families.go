package derive

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/devgraph/devgraph-go/internal/errs"
)

var (
	requirementIDRe = regexp.MustCompile(`\bFR-\d+-\d+\b`)
	evolutionRe     = regexp.MustCompile(`(?i)(replaces|supersedes|evolves from)\s+(FR-\d+-\d+)`)
	syntheticRe     = regexp.MustCompile(`(?i)^(implement|feat|feature)[:\s]`)
)

// pair keys evidence accumulation for one candidate edge.
type pair struct{ from, to string }

// deriveImplements accumulates Requirement->File evidence from commit
// messages, doc mentions, code comments, and sprint windows, then
// merges IMPLEMENTS edges under the composition rule.
func (d *Deriver) deriveImplements(ctx context.Context, run runner, watermark string, hist *Histogram) (int, string, error) {
	evidence := map[pair][]Evidence{}
	requirements := map[string]string{} // id -> title

	// Commit-message match [0.9]. Messages without a requirement id but
	// with an implementing verb synthesize a commit-derived requirement;
	// those have no natural PART_OF parent and are surfaced by the
	// requirements_without_part_of metric instead of fabricated links.
	records, err := run.run(ctx, `
		MATCH (c:GitCommit)
		WHERE ($wm = '' OR c.timestamp > $wm)
		MATCH (c)-[:TOUCHED]->(f:File)
		RETURN c.hash AS hash, c.message AS message, c.timestamp AS ts, collect(f.path) AS files
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	for _, rec := range records {
		hash := recString(rec, "hash")
		message := recString(rec, "message")
		ts := recTime(rec, "ts")
		files := recStrings(rec, "files")

		ids := requirementIDRe.FindAllString(message, -1)
		if len(ids) == 0 {
			if !syntheticRe.MatchString(message) {
				continue
			}
			id := syntheticID(hash)
			requirements[id] = firstLine(message)
			ids = []string{id}
		}
		for _, id := range dedup(ids) {
			if _, ok := requirements[id]; !ok {
				requirements[id] = id
			}
			for _, file := range files {
				p := pair{from: id, to: file}
				evidence[p] = append(evidence[p], Evidence{Source: SourceCommitMessage, Timestamp: ts})
			}
		}
	}

	if err := d.mergeRequirements(ctx, run, requirements); err != nil {
		return 0, "", err
	}

	// Doc mention [0.5]: the chunk mentions the requirement and names
	// the file, and its document's sprint includes a commit touching it.
	records, err = run.run(ctx, `
		MATCH (ch:Chunk)-[:MENTIONS]->(r:Requirement)
		MATCH (:Document)-[:CONTAINS_CHUNK]->(ch)
		MATCH (s:Sprint)-[:CONTAINS_DOC]->(:Document)-[:CONTAINS_CHUNK]->(ch)
		MATCH (s)-[:INCLUDES]->(:GitCommit)-[t:TOUCHED]->(f:File)
		WHERE ($wm = '' OR t.timestamp > $wm) AND ch.content CONTAINS f.path
		RETURN r.id AS req, f.path AS file, max(t.timestamp) AS ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	collectPairs(records, evidence, SourceDocMention)

	// Code comment [0.8]: a code chunk's content carries the id.
	records, err = run.run(ctx, `
		MATCH (r:Requirement)
		MATCH (f:File)-[:CONTAINS_CHUNK]->(ch:Chunk)
		WHERE f.is_code = true AND ch.content CONTAINS r.id
			AND ($wm = '' OR ch.last_modified_timestamp > $wm)
		RETURN r.id AS req, f.path AS file, max(ch.last_modified_timestamp) AS ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	collectPairs(records, evidence, SourceCodeComment)

	// Sprint window [0.3], the weak fallback.
	records, err = run.run(ctx, `
		MATCH (r:Requirement)-[:PART_OF]->(s:Sprint)-[:INCLUDES]->(:GitCommit)-[t:TOUCHED]->(f:File)
		WHERE ($wm = '' OR t.timestamp > $wm)
		RETURN r.id AS req, f.path AS file, max(t.timestamp) AS ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	collectPairs(records, evidence, SourceSprintWindow)

	return d.composeEdges(ctx, run, "Requirement", "id", "File", "path", "IMPLEMENTS", evidence, hist)
}

// deriveEvolves links requirement generations from commit messages
// matching the evolution pattern, with same-document mention ordering
// as weak secondary evidence.
func (d *Deriver) deriveEvolves(ctx context.Context, run runner, watermark string, hist *Histogram) (int, string, error) {
	evidence := map[pair][]Evidence{}
	requirements := map[string]string{}

	records, err := run.run(ctx, `
		MATCH (c:GitCommit)
		WHERE ($wm = '' OR c.timestamp > $wm)
		RETURN c.message AS message, c.timestamp AS ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	for _, rec := range records {
		message := recString(rec, "message")
		m := evolutionRe.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		oldID := m[2]
		ts := recTime(rec, "ts")
		// The new id is any other requirement mentioned in the message.
		for _, id := range dedup(requirementIDRe.FindAllString(message, -1)) {
			if id == oldID {
				continue
			}
			requirements[id] = id
			requirements[oldID] = oldID
			p := pair{from: id, to: oldID}
			evidence[p] = append(evidence[p], Evidence{Source: SourceCommitMessage, Timestamp: ts})
		}
	}

	if err := d.mergeRequirements(ctx, run, requirements); err != nil {
		return 0, "", err
	}

	// Doc evolution [0.6]: the same document mentions both ids and the
	// newer id appears in a later section. Chunk ordinals carry the
	// in-document order; mtimes cannot, since every chunk of a file
	// shares the one file mtime.
	records, err = run.run(ctx, `
		MATCH (d:Document)-[:CONTAINS_CHUNK]->(c1:Chunk)-[:MENTIONS]->(r1:Requirement)
		MATCH (d)-[:CONTAINS_CHUNK]->(c2:Chunk)-[:MENTIONS]->(r2:Requirement)
		WHERE r1.id <> r2.id
			AND c1.ordinal > c2.ordinal
			AND ($wm = '' OR c1.last_modified_timestamp > $wm)
		RETURN r1.id AS req, r2.id AS file, max(c1.last_modified_timestamp) AS ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	collectPairs(records, evidence, SourceDocEvolution)

	return d.composeEdges(ctx, run, "Requirement", "id", "Requirement", "id", "EVOLVES_FROM", evidence, hist)
}

// deriveDepends emits Requirement dependencies when the import graph
// between their implementation files crosses the overlap threshold
// max(2, ceil(0.3*n)).
func (d *Deriver) deriveDepends(ctx context.Context, run runner, watermark string, hist *Histogram) (int, string, error) {
	records, err := run.run(ctx, `
		MATCH (r1:Requirement)-[i1:IMPLEMENTS]->(f:File)-[:IMPORTS]->(g:File)<-[i2:IMPLEMENTS]-(r2:Requirement)
		WHERE r1.id <> r2.id
			AND ($wm = '' OR i1.last_seen_ts > $wm OR i2.last_seen_ts > $wm)
		WITH r1, r2, count(DISTINCT f.path + '>' + g.path) AS overlap,
			max(coalesce(i1.last_seen_ts, '')) AS ts
		MATCH (r1)-[:IMPLEMENTS]->(fn:File)
		WITH r1, r2, overlap, ts, count(DISTINCT fn) AS n
		WITH r1, r2, overlap, ts,
			CASE WHEN toInteger(ceil(0.3 * n)) > 2 THEN toInteger(ceil(0.3 * n)) ELSE 2 END AS threshold
		WHERE overlap >= threshold
		MERGE (r1)-[dep:DEPENDS_ON]->(r2)
		SET dep.confidence = 0.8,
			dep.sources = ['import-graph'],
			dep.weight = overlap,
			dep.last_seen_ts = CASE WHEN ts <> '' THEN ts ELSE dep.last_seen_ts END
		RETURN dep.confidence AS conf, ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	count, maxTS := tallyEdges(records, hist)
	return count, maxTS, nil
}

// luceneEscaper neutralizes the classic query parser's operators so a
// node property can travel as a fulltext search term. Library names
// like golang.org/x/sync or @scope/pkg otherwise open a regex literal
// and abort the query with a parse error.
var luceneEscaper = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `&&`, `\&&`, `||`, `\||`, `!`, `\!`,
	`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`^`, `\^`, `"`, `\"`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `/`, `\/`,
)

func escapeLucene(term string) string {
	return luceneEscaper.Replace(term)
}

// mentionKind pairs the term-listing query with the target node shape
// of one mention family. The read query returns key (target natural
// key), term (fulltext search term), exact (substring for the exact
// check), and path (chunk doc_path to exclude, '' for none).
type mentionKind struct {
	read    string
	label   string
	keyProp string
	rel     string
}

var mentionKinds = []mentionKind{
	{
		read:    `MATCH (sym:Symbol) RETURN sym.uid AS key, sym.name AS term, sym.name AS exact, sym.file_path AS path`,
		label:   "Symbol",
		keyProp: "uid",
		rel:     "MENTIONS_SYMBOL",
	},
	{
		read:    `MATCH (f:File) RETURN f.path AS key, last(split(f.path, '/')) AS term, f.path AS exact, f.path AS path`,
		label:   "File",
		keyProp: "path",
		rel:     "MENTIONS_FILE",
	},
	{
		read:    `MATCH (c:GitCommit) RETURN c.hash AS key, c.hash AS term, c.hash AS exact, '' AS path`,
		label:   "GitCommit",
		keyProp: "hash",
		rel:     "MENTIONS_COMMIT",
	},
	{
		read:    `MATCH (l:Library) RETURN l.name AS key, l.name AS term, l.name AS exact, '' AS path`,
		label:   "Library",
		keyProp: "name",
		rel:     "MENTIONS_LIBRARY",
	},
}

// deriveMentions drives the four mention kinds off the fulltext
// indexes: exact matches score 0.7, partial matches 0.4. Terms are
// read out first so the search string can be Lucene-escaped before it
// reaches the index.
func (d *Deriver) deriveMentions(ctx context.Context, run runner, watermark string, hist *Histogram) (int, string, error) {
	total := 0
	maxTS := ""
	for _, kind := range mentionKinds {
		records, err := run.run(ctx, kind.read, nil)
		if err != nil {
			return total, maxTS, err
		}

		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			term := recString(rec, "term")
			if term == "" {
				continue
			}
			rows = append(rows, map[string]any{
				"key":   recString(rec, "key"),
				"q":     escapeLucene(term),
				"exact": recString(rec, "exact"),
				"path":  recString(rec, "path"),
			})
		}
		if len(rows) == 0 {
			continue
		}

		query := fmt.Sprintf(`
			UNWIND $rows AS row
			MATCH (t:%s {%s: row.key})
			CALL db.index.fulltext.queryNodes('chunk_fulltext', row.q) YIELD node AS ch
			WHERE ($wm = '' OR ch.last_modified_timestamp > $wm)
				AND (row.path = '' OR ch.doc_path <> row.path)
			WITH t, ch, ch.content CONTAINS row.exact AS exact
			MERGE (ch)-[m:%s]->(t)
			SET m.confidence = CASE WHEN exact THEN 0.7 ELSE 0.4 END,
				m.sources = [CASE WHEN exact THEN 'fulltext-exact' ELSE 'fulltext-partial' END],
				m.last_seen_ts = ch.last_modified_timestamp
			RETURN m.confidence AS conf, ch.last_modified_timestamp AS ts
		`, kind.label, kind.keyProp, kind.rel)

		records, err = run.run(ctx, query, map[string]any{"wm": watermark, "rows": rows})
		if err != nil {
			return total, maxTS, err
		}
		count, ts := tallyEdges(records, hist)
		total += count
		if ts > maxTS {
			maxTS = ts
		}
	}
	return total, maxTS, nil
}

// deriveRelates connects chunks to files through a shared library.
func (d *Deriver) deriveRelates(ctx context.Context, run runner, watermark string, hist *Histogram) (int, string, error) {
	records, err := run.run(ctx, `
		MATCH (ch:Chunk)-[:MENTIONS_LIBRARY]->(:Library)<-[:USES_LIBRARY]-(f:File)
		WHERE ($wm = '' OR ch.last_modified_timestamp > $wm)
		MERGE (ch)-[r:RELATES_TO]->(f)
		SET r.confidence = 0.4,
			r.sources = ['co-library'],
			r.last_seen_ts = ch.last_modified_timestamp
		RETURN r.confidence AS conf, ch.last_modified_timestamp AS ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	count, maxTS := tallyEdges(records, hist)
	return count, maxTS, nil
}

// deriveCoOccurs weights file pairs by shared commits. Weight
// accumulates across incremental runs; confidence is min(1, weight/10).
func (d *Deriver) deriveCoOccurs(ctx context.Context, run runner, watermark string, hist *Histogram) (int, string, error) {
	records, err := run.run(ctx, `
		MATCH (c:GitCommit)-[:TOUCHED]->(f1:File)
		MATCH (c)-[:TOUCHED]->(f2:File)
		WHERE f1.path < f2.path AND ($wm = '' OR c.timestamp > $wm)
		WITH f1, f2, count(DISTINCT c) AS shared, max(c.timestamp) AS ts
		MERGE (f1)-[r:CO_OCCURS_WITH]->(f2)
		SET r.weight = coalesce(r.weight, 0) + shared
		WITH r, ts
		SET r.confidence = CASE WHEN r.weight >= 10 THEN 1.0 ELSE r.weight / 10.0 END,
			r.sources = ['co-commit'],
			r.last_seen_ts = ts
		RETURN r.confidence AS conf, ts
	`, map[string]any{"wm": watermark})
	if err != nil {
		return 0, "", err
	}
	count, maxTS := tallyEdges(records, hist)
	return count, maxTS, nil
}

// composeEdges reduces per-pair evidence and merges the edges, applying
// the complementary-probability composition against any existing edge.
func (d *Deriver) composeEdges(ctx context.Context, run runner, fromLabel, fromKey, toLabel, toKey, rel string, evidence map[pair][]Evidence, hist *Histogram) (int, string, error) {
	if len(evidence) == 0 {
		return 0, "", nil
	}

	rows := make([]map[string]any, 0, len(evidence))
	maxTS := ""
	for p, ev := range evidence {
		up := Reduce(ev)
		hist.Add(up.Confidence)
		if up.LastSeen > maxTS {
			maxTS = up.LastSeen
		}
		rows = append(rows, map[string]any{
			"from":       p.from,
			"to":         p.to,
			"confidence": up.Confidence,
			"sources":    up.Sources,
			"first_seen": up.FirstSeen,
			"last_seen":  up.LastSeen,
		})
	}

	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (a:%s {%s: row.from})
		MATCH (b:%s {%s: row.to})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r.confidence = row.confidence,
			r.sources = row.sources,
			r.first_seen_ts = row.first_seen,
			r.last_seen_ts = row.last_seen,
			r.timestamp = row.last_seen
		ON MATCH SET r.confidence = 1 - (1 - r.confidence) * (1 - row.confidence),
			r.sources = [s IN coalesce(r.sources, []) WHERE NOT s IN row.sources] + row.sources,
			r.first_seen_ts = CASE WHEN row.first_seen <> '' AND (r.first_seen_ts IS NULL OR row.first_seen < r.first_seen_ts)
				THEN row.first_seen ELSE r.first_seen_ts END,
			r.last_seen_ts = CASE WHEN row.last_seen > coalesce(r.last_seen_ts, '')
				THEN row.last_seen ELSE r.last_seen_ts END,
			r.timestamp = CASE WHEN row.last_seen > coalesce(r.timestamp, '')
				THEN row.last_seen ELSE r.timestamp END
		RETURN count(r) AS n
	`, fromLabel, fromKey, toLabel, toKey, rel)

	if _, err := run.run(ctx, query, map[string]any{"rows": rows}); err != nil {
		return 0, "", errs.Wrapf(err, errs.KindOf(err), "%s edge merge failed", rel)
	}
	return len(rows), maxTS, nil
}

func (d *Deriver) mergeRequirements(ctx context.Context, run runner, requirements map[string]string) error {
	if len(requirements) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(requirements))
	for id, title := range requirements {
		rows = append(rows, map[string]any{"id": id, "title": title})
	}
	_, err := run.run(ctx, `
		UNWIND $rows AS row
		MERGE (r:Requirement {id: row.id})
		ON CREATE SET r.title = row.title, r.type = 'functional', r.uid = row.id
	`, map[string]any{"rows": rows})
	if err != nil {
		return errs.Wrap(err, errs.KindOf(err), "requirement merge failed")
	}
	return nil
}

// collectPairs folds (req, file, ts) rows into the evidence map.
func collectPairs(records []*neo4j.Record, evidence map[pair][]Evidence, source Source) {
	for _, rec := range records {
		req := recString(rec, "req")
		file := recString(rec, "file")
		if req == "" || file == "" {
			continue
		}
		p := pair{from: req, to: file}
		evidence[p] = append(evidence[p], Evidence{Source: source, Timestamp: recTime(rec, "ts")})
	}
}

// tallyEdges reads per-edge (conf, ts) rows into the histogram and
// returns the edge count and latest timestamp.
func tallyEdges(records []*neo4j.Record, hist *Histogram) (int, string) {
	maxTS := ""
	for _, rec := range records {
		if v, ok := rec.Get("conf"); ok {
			if conf, ok := v.(float64); ok {
				hist.Add(conf)
			}
		}
		if ts := recString(rec, "ts"); ts > maxTS {
			maxTS = ts
		}
	}
	return len(records), maxTS
}

func recString(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func recTime(rec *neo4j.Record, key string) time.Time {
	s := recString(rec, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func recStrings(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func dedup(items []string) []string {
	seen := map[string]bool{}
	out := items[:0:0]
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func syntheticID(hash string) string {
	if len(hash) > 10 {
		hash = hash[:10]
	}
	return "REQ-" + hash
}

func firstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return strings.TrimSpace(message[:i])
	}
	return strings.TrimSpace(message)
}
