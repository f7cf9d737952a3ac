// Package query serves temporally-scoped subgraphs, commit-density
// buckets, full-text search, and telemetry. Reads are routed to
// replicas; hot queries hit a 30-second result cache.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/temporal"
)

// Service is the windowed query layer.
type Service struct {
	client  *graph.Client
	cache   *ResultCache
	metrics *temporal.MetricsRing
	logger  *logrus.Logger
}

func NewService(client *graph.Client, cache *ResultCache, metrics *temporal.MetricsRing, logger *logrus.Logger) *Service {
	return &Service{client: client, cache: cache, metrics: metrics, logger: logger}
}

// Node is one returned graph node.
type Node struct {
	UID    string         `json:"uid"`
	Labels []string       `json:"labels"`
	Props  map[string]any `json:"properties"`
}

// Edge is one returned relationship between two returned nodes.
type Edge struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	Type  string         `json:"type"`
	Props map[string]any `json:"properties"`
}

// Pagination carries the cursor for the next page.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Performance reports per-query timing for the latency budgets.
type Performance struct {
	WallMs   float64 `json:"wall_ms"`
	DriverMs float64 `json:"driver_ms"`
	CacheHit bool    `json:"cache_hit"`
}

// SubgraphRequest scopes a windowed subgraph query. Empty From/To leave
// that side of the window open.
type SubgraphRequest struct {
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	NodeTypes []string `json:"node_types,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Cursor    string   `json:"cursor,omitempty"`
}

// SubgraphResponse is the windowed subgraph plus induced edges.
type SubgraphResponse struct {
	Nodes       []Node      `json:"nodes"`
	Edges       []Edge      `json:"edges"`
	Pagination  Pagination  `json:"pagination"`
	Performance Performance `json:"performance"`
}

const defaultSubgraphLimit = 2000

// Subgraph returns nodes whose temporal attachment intersects the
// window, plus all edges among them, cursor-paginated by uid.
func (s *Service) Subgraph(ctx context.Context, req SubgraphRequest) (*SubgraphResponse, error) {
	if req.Limit <= 0 {
		req.Limit = defaultSubgraphLimit
	}
	key := cacheKey("subgraph", req)
	if payload, ok := s.cache.Get(ctx, key); ok {
		resp := &SubgraphResponse{}
		if err := json.Unmarshal(payload, resp); err == nil {
			resp.Performance.CacheHit = true
			s.record("subgraph", 0, 0, true)
			return resp, nil
		}
	}

	start := time.Now()
	types := req.NodeTypes
	if types == nil {
		types = []string{}
	}

	result, err := s.client.Read(ctx, `
		MATCH (n)
		WHERE (size($types) = 0 OR any(l IN labels(n) WHERE l IN $types))
			AND ($cursor = '' OR n.uid > $cursor)
			AND (
				EXISTS {
					MATCH (n)-[e]-()
					WHERE e.timestamp IS NOT NULL
						AND ($from = '' OR e.timestamp >= $from)
						AND ($to = '' OR e.timestamp <= $to)
				}
				OR (n:Chunk
					AND n.last_modified_timestamp IS NOT NULL
					AND ($from = '' OR n.last_modified_timestamp >= $from)
					AND ($to = '' OR n.last_modified_timestamp <= $to))
			)
		WITH n ORDER BY n.uid LIMIT $limit
		WITH collect(n) AS selected
		UNWIND selected AS a
		OPTIONAL MATCH (a)-[e]->(b)
		WHERE b IN selected
		RETURN a, collect(CASE WHEN e IS NULL THEN NULL ELSE {
			from: a.uid, to: b.uid, type: type(e), props: properties(e)
		} END) AS edges
	`, map[string]any{
		"types": types, "from": req.From, "to": req.To,
		"cursor": req.Cursor, "limit": req.Limit + 1,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindOf(err), "subgraph query failed")
	}

	resp := &SubgraphResponse{Nodes: []Node{}, Edges: []Edge{}}
	edgeSeen := map[string]bool{}
	for _, rec := range result.Records {
		if v, ok := rec.Get("a"); ok {
			if n, ok := v.(neo4j.Node); ok {
				resp.Nodes = append(resp.Nodes, Node{UID: nodeUID(n), Labels: n.Labels, Props: n.Props})
			}
		}
		if v, ok := rec.Get("edges"); ok {
			for _, raw := range asSlice(v) {
				edge, ok := raw.(map[string]any)
				if !ok || edge == nil {
					continue
				}
				e := Edge{
					From:  str(edge["from"]),
					To:    str(edge["to"]),
					Type:  str(edge["type"]),
					Props: asMap(edge["props"]),
				}
				dedupKey := e.From + "|" + e.Type + "|" + e.To + "|" + str(e.Props["timestamp"])
				if !edgeSeen[dedupKey] {
					edgeSeen[dedupKey] = true
					resp.Edges = append(resp.Edges, e)
				}
			}
		}
	}

	trimPage(resp, req.Limit)

	wall := time.Since(start)
	driver := result.Summary.ResultAvailableAfter()
	resp.Performance = Performance{WallMs: ms(wall), DriverMs: ms(driver)}
	s.record("subgraph", wall, driver, false)
	s.cacheStore(ctx, key, resp)
	return resp, nil
}

// trimPage drops the limit+1 overfetch row and keeps the edge set
// induced over the surviving page: an edge may not reference a uid
// the response no longer carries.
func trimPage(resp *SubgraphResponse, limit int) {
	if len(resp.Nodes) <= limit {
		return
	}
	resp.Nodes = resp.Nodes[:limit]
	resp.Pagination.HasMore = true
	resp.Pagination.NextCursor = resp.Nodes[len(resp.Nodes)-1].UID

	kept := make(map[string]bool, len(resp.Nodes))
	for _, n := range resp.Nodes {
		kept[n.UID] = true
	}
	edges := resp.Edges[:0]
	for _, e := range resp.Edges {
		if kept[e.From] && kept[e.To] {
			edges = append(edges, e)
		}
	}
	resp.Edges = edges
}

// Bucket is one histogram bar of commit density.
type Bucket struct {
	Timestamp string `json:"ts"`
	Count     int64  `json:"count"`
}

// BucketsResponse is the commit-density histogram.
type BucketsResponse struct {
	Buckets     []Bucket    `json:"buckets"`
	Performance Performance `json:"performance"`
}

var validGranularities = map[string]bool{"hour": true, "day": true, "week": true}

// CommitBuckets aggregates commit density in one store query.
func (s *Service) CommitBuckets(ctx context.Context, granularity, from, to string, maxBuckets int) (*BucketsResponse, error) {
	if !validGranularities[granularity] {
		return nil, errs.Newf(errs.KindConfig, "invalid granularity %q (hour|day|week)", granularity)
	}
	if maxBuckets <= 0 {
		maxBuckets = 500
	}
	key := cacheKey("buckets", map[string]any{"g": granularity, "from": from, "to": to, "max": maxBuckets})
	if payload, ok := s.cache.Get(ctx, key); ok {
		resp := &BucketsResponse{}
		if err := json.Unmarshal(payload, resp); err == nil {
			resp.Performance.CacheHit = true
			s.record("commits_buckets", 0, 0, true)
			return resp, nil
		}
	}

	start := time.Now()
	result, err := s.client.Read(ctx, `
		MATCH (c:GitCommit)
		WHERE ($from = '' OR c.timestamp >= $from) AND ($to = '' OR c.timestamp <= $to)
		WITH datetime.truncate($granularity, datetime(c.timestamp)) AS bucket, count(*) AS n
		RETURN toString(bucket) AS ts, n
		ORDER BY ts
		LIMIT $max
	`, map[string]any{"granularity": granularity, "from": from, "to": to, "max": maxBuckets})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindOf(err), "commit buckets query failed")
	}

	resp := &BucketsResponse{Buckets: []Bucket{}}
	for _, rec := range result.Records {
		ts, _ := rec.Get("ts")
		n, _ := rec.Get("n")
		count, _ := n.(int64)
		resp.Buckets = append(resp.Buckets, Bucket{Timestamp: str(ts), Count: count})
	}

	wall := time.Since(start)
	driver := result.Summary.ResultAvailableAfter()
	resp.Performance = Performance{WallMs: ms(wall), DriverMs: ms(driver)}
	s.record("commits_buckets", wall, driver, false)
	s.cacheStore(ctx, key, resp)
	return resp, nil
}

// Search runs full-text search over the chunk and commit indexes.
func (s *Service) Search(ctx context.Context, q, nodeType, relType string, limit int) ([]Node, *Performance, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil, errs.New(errs.KindConfig, "empty search query")
	}
	if limit <= 0 {
		limit = 50
	}
	key := cacheKey("search", map[string]any{"q": q, "nt": nodeType, "rt": relType, "limit": limit})
	if payload, ok := s.cache.Get(ctx, key); ok {
		var nodes []Node
		if err := json.Unmarshal(payload, &nodes); err == nil {
			s.record("search", 0, 0, true)
			return nodes, &Performance{CacheHit: true}, nil
		}
	}

	start := time.Now()
	result, err := s.client.Read(ctx, `
		CALL {
			CALL db.index.fulltext.queryNodes('chunk_fulltext', $q) YIELD node, score
			RETURN node, score
			UNION ALL
			CALL db.index.fulltext.queryNodes('commit_fulltext', $q) YIELD node, score
			RETURN node, score
		}
		WITH node, score
		WHERE ($nodeType = '' OR $nodeType IN labels(node))
			AND ($relType = '' OR EXISTS { MATCH (node)-[r]-() WHERE type(r) = $relType })
		RETURN node ORDER BY score DESC LIMIT $limit
	`, map[string]any{"q": q, "nodeType": nodeType, "relType": relType, "limit": limit})
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.KindOf(err), "search query failed")
	}

	nodes := []Node{}
	for _, rec := range result.Records {
		if v, ok := rec.Get("node"); ok {
			if n, ok := v.(neo4j.Node); ok {
				nodes = append(nodes, Node{UID: nodeUID(n), Labels: n.Labels, Props: n.Props})
			}
		}
	}

	wall := time.Since(start)
	driver := result.Summary.ResultAvailableAfter()
	s.record("search", wall, driver, false)
	if payload, err := json.Marshal(nodes); err == nil {
		s.cache.Set(ctx, key, payload)
	}
	return nodes, &Performance{WallMs: ms(wall), DriverMs: ms(driver)}, nil
}

// SprintSubgraph returns a sprint with its direct neighborhood.
func (s *Service) SprintSubgraph(ctx context.Context, number int) (*SubgraphResponse, error) {
	start := time.Now()
	result, err := s.client.Read(ctx, `
		MATCH (s:Sprint {number: $number})
		OPTIONAL MATCH (s)-[e]->(m)
		RETURN s, collect(CASE WHEN m IS NULL THEN NULL ELSE {
			node: m, type: type(e), props: properties(e)
		} END) AS neighbors
	`, map[string]any{"number": number})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindOf(err), "sprint subgraph query failed")
	}
	if len(result.Records) == 0 {
		return nil, errs.Newf(errs.KindConfig, "sprint %d not found", number)
	}

	resp := &SubgraphResponse{Nodes: []Node{}, Edges: []Edge{}}
	rec := result.Records[0]
	sprintUID := ""
	if v, ok := rec.Get("s"); ok {
		if n, ok := v.(neo4j.Node); ok {
			sprintUID = nodeUID(n)
			resp.Nodes = append(resp.Nodes, Node{UID: sprintUID, Labels: n.Labels, Props: n.Props})
		}
	}
	if v, ok := rec.Get("neighbors"); ok {
		for _, raw := range asSlice(v) {
			entry, ok := raw.(map[string]any)
			if !ok || entry == nil {
				continue
			}
			if n, ok := entry["node"].(neo4j.Node); ok {
				uid := nodeUID(n)
				resp.Nodes = append(resp.Nodes, Node{UID: uid, Labels: n.Labels, Props: n.Props})
				resp.Edges = append(resp.Edges, Edge{
					From: sprintUID, To: uid,
					Type: str(entry["type"]), Props: asMap(entry["props"]),
				})
			}
		}
	}

	wall := time.Since(start)
	driver := result.Summary.ResultAvailableAfter()
	resp.Performance = Performance{WallMs: ms(wall), DriverMs: ms(driver)}
	s.record("sprint_subgraph", wall, driver, false)
	return resp, nil
}

// Telemetry reports query timing, cache behavior, and process memory.
type Telemetry struct {
	AvgQueryTimeMs   float64                `json:"avg_query_time_ms"`
	CacheHitRate     float64                `json:"cache_hit_rate"`
	MemoryUsageMB    float64                `json:"memory_usage_mb"`
	LastQueryMetrics []temporal.QueryMetric `json:"last_query_metrics"`
}

func (s *Service) Telemetry() *Telemetry {
	entries, avg, hitRate := s.metrics.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	last := entries
	if len(last) > 10 {
		last = last[len(last)-10:]
	}
	return &Telemetry{
		AvgQueryTimeMs:   avg,
		CacheHitRate:     hitRate,
		MemoryUsageMB:    float64(mem.Alloc) / (1024 * 1024),
		LastQueryMetrics: last,
	}
}

// Stats holds consolidated totals, produced by one store query.
type Stats struct {
	Nodes map[string]int64 `json:"nodes"`
	Edges map[string]int64 `json:"edges"`
}

// TotalNodes sums the per-label node counts.
func (st *Stats) TotalNodes() int64 {
	var total int64
	for _, n := range st.Nodes {
		total += n
	}
	return total
}

// TotalEdges sums the per-type edge counts.
func (st *Stats) TotalEdges() int64 {
	var total int64
	for _, n := range st.Edges {
		total += n
	}
	return total
}

// Stats executes the consolidated totals as a single store query.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	result, err := s.client.Read(ctx, `
		CALL {
			MATCH (n)
			RETURN 'node' AS kind, coalesce(labels(n)[0], '_unlabeled') AS key, count(*) AS cnt
			UNION ALL
			MATCH ()-[r]->()
			RETURN 'edge' AS kind, type(r) AS key, count(*) AS cnt
		}
		RETURN kind, key, cnt
	`, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindOf(err), "stats query failed")
	}

	stats := &Stats{Nodes: map[string]int64{}, Edges: map[string]int64{}}
	for _, rec := range result.Records {
		kind, _ := rec.Get("kind")
		key, _ := rec.Get("key")
		cnt, _ := rec.Get("cnt")
		n, _ := cnt.(int64)
		switch str(kind) {
		case "node":
			stats.Nodes[str(key)] = n
		case "edge":
			stats.Edges[str(key)] = n
		}
	}
	return stats, nil
}

func (s *Service) record(name string, wall, driver time.Duration, cacheHit bool) {
	s.metrics.Record(temporal.QueryMetric{
		Name:     name,
		WallMs:   ms(wall),
		DriverMs: ms(driver),
		CacheHit: cacheHit,
	})
}

func (s *Service) cacheStore(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, payload)
}

// cacheKey normalizes a request into a deterministic cache key.
func cacheKey(prefix string, v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return prefix
	}
	return prefix + ":" + string(payload)
}

func nodeUID(n neo4j.Node) string {
	if uid, ok := n.Props["uid"].(string); ok && uid != "" {
		return uid
	}
	for _, key := range []string{"id", "path", "hash", "name"} {
		if v, ok := n.Props[key]; ok {
			return str(v)
		}
	}
	return n.ElementId
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
