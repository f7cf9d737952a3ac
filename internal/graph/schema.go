package graph

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
)

// Schema declares the graph store's constraints and indexes. Every
// declaration is IF NOT EXISTS so the whole set is re-runnable; it runs
// first on every bootstrap and before any derivation. Any declaration
// failure is fatal and aborts the pipeline.
type Schema struct {
	client *Client
	logger *logrus.Logger
}

func NewSchema(client *Client, logger *logrus.Logger) *Schema {
	return &Schema{client: client, logger: logger}
}

var constraintStatements = []string{
	`CREATE CONSTRAINT commit_hash IF NOT EXISTS FOR (c:GitCommit) REQUIRE c.hash IS UNIQUE`,
	`CREATE CONSTRAINT file_path IF NOT EXISTS FOR (f:File) REQUIRE f.path IS UNIQUE`,
	`CREATE CONSTRAINT directory_path IF NOT EXISTS FOR (d:Directory) REQUIRE d.path IS UNIQUE`,
	`CREATE CONSTRAINT document_path IF NOT EXISTS FOR (d:Document) REQUIRE d.path IS UNIQUE`,
	`CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT symbol_uid IF NOT EXISTS FOR (s:Symbol) REQUIRE s.uid IS UNIQUE`,
	`CREATE CONSTRAINT library_name IF NOT EXISTS FOR (l:Library) REQUIRE l.name IS UNIQUE`,
	`CREATE CONSTRAINT requirement_id IF NOT EXISTS FOR (r:Requirement) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT sprint_number IF NOT EXISTS FOR (s:Sprint) REQUIRE s.number IS UNIQUE`,
	`CREATE CONSTRAINT watermark_key IF NOT EXISTS FOR (w:DerivationWatermark) REQUIRE w.key IS UNIQUE`,
}

var indexStatements = []string{
	`CREATE INDEX commit_timestamp IF NOT EXISTS FOR (c:GitCommit) ON (c.timestamp)`,
	`CREATE INDEX chunk_last_modified IF NOT EXISTS FOR (c:Chunk) ON (c.last_modified_timestamp)`,
	`CREATE INDEX touched_timestamp IF NOT EXISTS FOR ()-[r:TOUCHED]-() ON (r.timestamp)`,
	`CREATE INDEX implements_timestamp IF NOT EXISTS FOR ()-[r:IMPLEMENTS]-() ON (r.timestamp)`,
	`CREATE INDEX evolves_timestamp IF NOT EXISTS FOR ()-[r:EVOLVES_FROM]-() ON (r.timestamp)`,
	`CREATE INDEX refactored_timestamp IF NOT EXISTS FOR ()-[r:REFACTORED_TO]-() ON (r.timestamp)`,
	`CREATE INDEX deprecated_timestamp IF NOT EXISTS FOR ()-[r:DEPRECATED_BY]-() ON (r.timestamp)`,
	`CREATE INDEX directory_path_idx IF NOT EXISTS FOR (d:Directory) ON (d.path)`,
	`CREATE INDEX directory_depth_idx IF NOT EXISTS FOR (d:Directory) ON (d.depth)`,
	`CREATE FULLTEXT INDEX chunk_fulltext IF NOT EXISTS FOR (c:Chunk) ON EACH [c.content, c.heading]`,
	`CREATE FULLTEXT INDEX commit_fulltext IF NOT EXISTS FOR (c:GitCommit) ON EACH [c.message]`,
}

// Apply declares all constraints and indexes. Idempotent.
func (s *Schema) Apply(ctx context.Context) error {
	for _, stmt := range append(append([]string{}, constraintStatements...), indexStatements...) {
		if _, err := s.client.Write(ctx, stmt, nil); err != nil {
			return errs.Wrapf(err, errs.KindStorePermanent, "schema declaration failed: %s", stmt)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"constraints": len(constraintStatements),
		"indexes":     len(indexStatements),
	}).Info("graph schema applied")
	return nil
}
