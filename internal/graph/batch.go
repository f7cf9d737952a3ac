package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/models"
)

// BatchWriter is the single bulk-write primitive used by every stage.
// Rows are grouped into UNWIND batches; per-row transactions are never
// issued. Batches retry with exponential backoff on transient store
// errors (3 attempts, 1s/4s/16s) under a 30 second deadline each.
type BatchWriter struct {
	client    *Client
	batchSize int
	logger    *logrus.Logger
}

// NewBatchWriter creates a writer with the given batch size (default
// 500 rows when size <= 0).
func NewBatchWriter(client *Client, batchSize int, logger *logrus.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BatchWriter{client: client, batchSize: batchSize, logger: logger}
}

// UpsertNodes MERGEs node rows of one label keyed on the label's
// natural key. Rows must contain the key property.
func (w *BatchWriter) UpsertNodes(ctx context.Context, label string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	if !validIdentifier(label) {
		return errs.Newf(errs.KindStorePermanent, "invalid node label %q", label)
	}
	key := models.UniqueKey(label)

	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (n:%s {%s: row.%s})
		SET n += row
	`, label, key, key)

	return w.runBatches(ctx, query, "rows", rows, label)
}

// EdgeSpec fixes the endpoint labels and relationship for a
// homogeneous edge batch, the common case for stage writes.
type EdgeSpec struct {
	FromLabel string
	ToLabel   string
	Rel       string
}

// EdgeRow is one edge in a homogeneous batch. From and To hold the
// natural key values of the endpoints.
type EdgeRow struct {
	From  any
	To    any
	Props map[string]any
}

// UpsertEdges MERGEs a homogeneous batch of edges. Properties are
// applied with SET += so repeated ingestion leaves a single edge.
func (w *BatchWriter) UpsertEdges(ctx context.Context, spec EdgeSpec, rows []EdgeRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, id := range []string{spec.FromLabel, spec.ToLabel, spec.Rel} {
		if !validIdentifier(id) {
			return errs.Newf(errs.KindStorePermanent, "invalid edge identifier %q", id)
		}
	}

	fromKey := models.UniqueKey(spec.FromLabel)
	toKey := models.UniqueKey(spec.ToLabel)

	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (from:%s {%s: row.from})
		MATCH (to:%s {%s: row.to})
		MERGE (from)-[r:%s]->(to)
		SET r += row.props
	`, spec.FromLabel, fromKey, spec.ToLabel, toKey, spec.Rel)

	params := make([]map[string]any, len(rows))
	for i, row := range rows {
		props := row.Props
		if props == nil {
			props = map[string]any{}
		}
		params[i] = map[string]any{"from": row.From, "to": row.To, "props": props}
	}

	return w.runBatches(ctx, query, "rows", params, spec.Rel)
}

// UpsertMixedEdges handles batches whose endpoints vary per row, the
// heterogeneous case (e.g. Chunk PART_OF File|Document). Slower than
// UpsertEdges; label is matched per row.
func (w *BatchWriter) UpsertMixedEdges(ctx context.Context, rel string, edges []models.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	if !validIdentifier(rel) {
		return errs.Newf(errs.KindStorePermanent, "invalid relationship %q", rel)
	}

	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (from)
		WHERE row.from_label IN labels(from) AND from[row.from_key] = row.from
		MATCH (to)
		WHERE row.to_label IN labels(to) AND to[row.to_key] = row.to
		MERGE (from)-[r:%s]->(to)
		SET r += row.props
	`, rel)

	params := make([]map[string]any, len(edges))
	for i, e := range edges {
		props := e.Props
		if props == nil {
			props = map[string]any{}
		}
		params[i] = map[string]any{
			"from_label": e.FromLabel, "from_key": models.UniqueKey(e.FromLabel), "from": e.FromKey,
			"to_label": e.ToLabel, "to_key": models.UniqueKey(e.ToLabel), "to": e.ToKey,
			"props": props,
		}
	}

	return w.runBatches(ctx, query, "rows", params, rel)
}

func (w *BatchWriter) runBatches(ctx context.Context, query, paramName string, rows []map[string]any, what string) error {
	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		err := errs.Retry(ctx, 3, time.Second, func() error {
			batchCtx, cancel := context.WithTimeout(ctx, BatchDeadline)
			defer cancel()
			_, err := w.client.Write(batchCtx, query, map[string]any{paramName: batch})
			return err
		})
		if err != nil {
			return errs.Wrapf(err, errs.KindOf(err), "batch write failed for %s (rows %d-%d)", what, start, end)
		}

		w.logger.WithFields(logrus.Fields{
			"target": what,
			"rows":   len(batch),
		}).Debug("batch written")
	}
	return nil
}
