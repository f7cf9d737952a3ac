// Package temporal materialises the commit timeline: GitCommit nodes,
// TOUCHED edges to the files each commit changed, and REFACTORED_TO
// edges for renames. It also hosts the query-metrics ring buffer the
// telemetry endpoint reads.
package temporal

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/gitlog"
	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/models"
	"github.com/devgraph/devgraph-go/internal/pathutil"
)

// Result reports Stage 4 outcomes.
type Result struct {
	Commits  int           `json:"commits"`
	Touched  int           `json:"touched_edges"`
	Renames  int           `json:"refactored_to_edges"`
	Duration time.Duration `json:"-"`
}

// Engine iterates commits oldest-first and writes each commit in one
// transaction so the commit stays atomic in the graph. Commits fan out
// to a worker pool; MERGE keeps duplicate-hash re-ingestion a no-op.
type Engine struct {
	git        *gitlog.Service
	client     *graph.Client
	maxWorkers int
	logger     *logrus.Logger
}

func NewEngine(git *gitlog.Service, client *graph.Client, maxWorkers int, logger *logrus.Logger) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Engine{git: git, client: client, maxWorkers: maxWorkers, logger: logger}
}

// Run ingests up to opts.Limit commits. Workers check cancellation
// between commits; an in-flight commit transaction always completes.
func (e *Engine) Run(ctx context.Context, opts gitlog.ListOptions) (*Result, error) {
	start := time.Now()
	result := &Result{}

	commits, errc := e.git.ListCommits(ctx, opts)

	var counts struct {
		commits, touched, renames int
	}
	g, workCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	tally := make(chan [3]int, e.maxWorkers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for t := range tally {
			counts.commits += t[0]
			counts.touched += t[1]
			counts.renames += t[2]
		}
	}()

	for commit := range commits {
		commit := commit
		g.Go(func() error {
			if err := workCtx.Err(); err != nil {
				return errs.Wrap(err, errs.KindCancelled, "commit ingestion cancelled")
			}
			touched, renames, err := e.writeCommit(workCtx, commit)
			if err != nil {
				return err
			}
			tally <- [3]int{1, touched, renames}
			return nil
		})
	}

	err := g.Wait()
	close(tally)
	<-done

	if err == nil {
		err = <-errc
	}

	result.Commits = counts.commits
	result.Touched = counts.touched
	result.Renames = counts.renames
	result.Duration = time.Since(start)

	e.logger.WithFields(logrus.Fields{
		"commits":  result.Commits,
		"touched":  result.Touched,
		"renames":  result.Renames,
		"duration": result.Duration.String(),
	}).Info("temporal ingestion completed")

	return result, err
}

// writeCommit performs all writes for one commit in a single managed
// transaction: the GitCommit node, its TOUCHED edges, and any
// REFACTORED_TO edges from renames.
func (e *Engine) writeCommit(ctx context.Context, commit models.Commit) (touched, renames int, err error) {
	ts := commit.Timestamp.UTC().Format(time.RFC3339)

	touchRows := make([]map[string]any, 0, len(commit.Deltas))
	var renameRows []map[string]any
	for _, delta := range commit.Deltas {
		path := pathutil.Normalize(delta.Path)
		touchRows = append(touchRows, map[string]any{
			"path":        path,
			"change_type": delta.ChangeType,
			"additions":   delta.Additions,
			"deletions":   delta.Deletions,
		})
		if delta.ChangeType == models.ChangeRenamed && delta.PrevPath != "" {
			renameRows = append(renameRows, map[string]any{
				"prev_path": pathutil.Normalize(delta.PrevPath),
				"path":      path,
			})
		}
	}

	builder := graph.NewCypherBuilder()
	commitQuery, err := builder.MergeNode(models.LabelGitCommit, "hash", commit.Hash, map[string]any{
		"message":      commit.Message,
		"author":       commit.Author,
		"author_email": commit.AuthorEmail,
		"timestamp":    ts,
		"branch":       commit.Branch,
		"uid":          commit.Hash,
	})
	if err != nil {
		return 0, 0, err
	}

	err = e.client.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, commitQuery, builder.Params()); err != nil {
			return err
		}

		if len(touchRows) > 0 {
			if _, err := tx.Run(ctx, `
				MATCH (c:GitCommit {hash: $hash})
				UNWIND $rows AS row
				MERGE (f:File {path: row.path})
				ON CREATE SET f.uid = row.path
				MERGE (c)-[t:TOUCHED {timestamp: $timestamp}]->(f)
				SET t.change_type = row.change_type,
					t.additions = row.additions,
					t.deletions = row.deletions
			`, map[string]any{"hash": commit.Hash, "timestamp": ts, "rows": touchRows}); err != nil {
				return err
			}
		}

		if len(renameRows) > 0 {
			if _, err := tx.Run(ctx, `
				UNWIND $rows AS row
				MERGE (old:File {path: row.prev_path})
				ON CREATE SET old.uid = row.prev_path
				MERGE (new:File {path: row.path})
				ON CREATE SET new.uid = row.path
				MERGE (old)-[r:REFACTORED_TO {timestamp: $timestamp}]->(new)
				SET r.sources = ["git-rename"], r.confidence = 1.0
			`, map[string]any{"timestamp": ts, "rows": renameRows}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, errs.Wrapf(err, errs.KindOf(err), "commit %s write failed", commit.Hash)
	}
	return len(touchRows), len(renameRows), nil
}
