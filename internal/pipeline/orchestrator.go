package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/config"
	"github.com/devgraph/devgraph-go/internal/derive"
	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/gitlog"
	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/ingest"
	"github.com/devgraph/devgraph-go/internal/sprints"
	"github.com/devgraph/devgraph-go/internal/symbols"
	"github.com/devgraph/devgraph-go/internal/temporal"
)

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageOutcome is the per-stage entry in a bootstrap report.
type StageOutcome struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Counts     map[string]any `json:"counts,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Report summarizes a bootstrap run. A failed or cancelled run still
// carries the outcomes of every stage that started.
type Report struct {
	JobID           string         `json:"job_id"`
	Status          JobStatus      `json:"status"`
	Stages          []StageOutcome `json:"stages"`
	DurationSeconds float64        `json:"duration_seconds"`
	Derivation      *derive.Report `json:"derivation,omitempty"`
}

// stageNames in execution order. Embeddings and derivation may be
// skipped but always appear in the report.
var stageNames = []string{
	"schema",
	"repository",
	"filesystem",
	"git_history",
	"sprints",
	"symbols",
	"embeddings",
	"derivation",
}

// Orchestrator drives the ingestion stages in fixed order against one
// graph store. Stages run sequentially; each stage parallelizes
// internally.
type Orchestrator struct {
	cfg      *config.Config
	client   *graph.Client
	embedder Embedder
	logger   *logrus.Logger
}

func NewOrchestrator(cfg *config.Config, client *graph.Client, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, client: client, logger: logger}
}

// WithEmbedder enables the embedding stage. Without one the stage is
// reported as skipped.
func (o *Orchestrator) WithEmbedder(e Embedder) *Orchestrator {
	o.embedder = e
	return o
}

// Bootstrap runs all stages. The optional progress callback fires
// after each stage with the stage name and completed fraction.
func (o *Orchestrator) Bootstrap(ctx context.Context, jobID string, progress func(stage string, frac float64)) (*Report, error) {
	started := time.Now()
	report := &Report{JobID: jobID, Status: JobRunning}

	git := gitlog.NewService(o.cfg.RepoPath, o.logger)
	writer := graph.NewBatchWriter(o.client, o.cfg.BatchSize, o.logger)
	load := ingest.ContentLoader(o.cfg.RepoPath)

	var ingestResult *ingest.Result

	stages := []struct {
		name string
		run  func(context.Context) (map[string]any, error)
	}{
		{"schema", func(ctx context.Context) (map[string]any, error) {
			return o.runSchema(ctx)
		}},
		{"repository", func(ctx context.Context) (map[string]any, error) {
			if err := git.Verify(ctx); err != nil {
				return nil, err
			}
			branch, err := git.Branch(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"branch": branch}, nil
		}},
		{"filesystem", func(ctx context.Context) (map[string]any, error) {
			walker := ingest.NewWalker(o.cfg.RepoPath, o.cfg.Subpath, o.cfg.ExcludePatterns, o.logger)
			ingester := ingest.NewIngester(walker, writer, o.client, o.cfg.RepoPath, o.cfg.MaxWorkers, o.cfg.BatchSize, o.logger)
			res, err := ingester.Run(ctx)
			if err != nil {
				return nil, err
			}
			ingestResult = res
			return map[string]any{
				"directories":   res.Directories,
				"files":         res.Files,
				"documents":     res.Documents,
				"chunks":        res.Chunks,
				"decode_errors": res.DecodeErrors,
			}, nil
		}},
		{"git_history", func(ctx context.Context) (map[string]any, error) {
			engine := temporal.NewEngine(git, o.client, o.cfg.MaxWorkers, o.logger)
			res, err := engine.Run(ctx, gitlog.ListOptions{Limit: o.cfg.CommitLimit})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"commits":             res.Commits,
				"touched_edges":       res.Touched,
				"refactored_to_edges": res.Renames,
			}, nil
		}},
		{"sprints", func(ctx context.Context) (map[string]any, error) {
			mapper := sprints.NewMapper(o.client, load, o.logger)
			res, err := mapper.Run(ctx, ingestResult.DocPaths)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"sprints":             res.Sprints,
				"includes_edges":      res.Includes,
				"involves_file_edges": res.Involves,
				"contains_doc_edges":  res.Docs,
				"requirements_linked": res.Requirements,
			}, nil
		}},
		{"symbols", func(ctx context.Context) (map[string]any, error) {
			extractor := symbols.NewExtractor(o.client, writer, symbols.Loader(load), o.cfg.MaxWorkers, o.logger)
			res, err := extractor.Run(ctx, ingestResult.CodeFiles, ingestResult.Manifests)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"files_scanned":      res.FilesScanned,
				"symbols":            res.Symbols,
				"import_edges":       res.ImportEdges,
				"libraries":          res.Libraries,
				"uses_library_edges": res.UsesEdges,
			}, nil
		}},
		{"embeddings", o.runEmbeddings},
		{"derivation", func(ctx context.Context) (map[string]any, error) {
			if !o.cfg.DeriveRelationships {
				return nil, errSkipStage
			}
			deriver := derive.NewDeriver(o.client, o.logger)
			res, err := deriver.Run(ctx, derive.Options{DryRun: o.cfg.DryRun})
			if err != nil {
				return nil, err
			}
			report.Derivation = res
			edges := 0
			for _, f := range res.Families {
				edges += f.Edges
			}
			return map[string]any{"families": len(res.Families), "edges": edges}, nil
		}},
	}

	for i, stage := range stages {
		outcome, err := o.runStage(ctx, stage.name, stage.run)
		report.Stages = append(report.Stages, outcome)
		if err != nil {
			report.Status = JobFailed
			report.DurationSeconds = time.Since(started).Seconds()
			return report, err
		}
		if progress != nil && outcome.Status == StageCompleted {
			progress(stage.name, float64(i+1)/float64(len(stages)))
		}
	}

	report.Status = JobDone
	report.DurationSeconds = time.Since(started).Seconds()
	return report, nil
}

// errSkipStage signals a stage declined to run; it is never surfaced.
var errSkipStage = errs.New(errs.KindInternal, "stage skipped")

func (o *Orchestrator) runStage(ctx context.Context, name string, run func(context.Context) (map[string]any, error)) (StageOutcome, error) {
	outcome := StageOutcome{Name: name}

	if err := ctx.Err(); err != nil {
		outcome.Status = StageFailed
		wrapped := errs.Wrap(err, errs.KindCancelled, "pipeline cancelled").WithStage(name)
		outcome.Error = wrapped.Error()
		return outcome, wrapped
	}

	o.logger.WithField("stage", name).Info("stage started")
	started := time.Now()
	counts, err := run(ctx)
	outcome.DurationMs = time.Since(started).Milliseconds()
	outcome.Counts = counts

	switch {
	case err == errSkipStage:
		outcome.Status = StageSkipped
		o.logger.WithField("stage", name).Info("stage skipped")
		return outcome, nil
	case err != nil:
		outcome.Status = StageFailed
		kind := errs.KindOf(err)
		if ctx.Err() != nil {
			kind = errs.KindCancelled
		}
		wrapped := errs.Wrapf(err, kind, "stage %s failed", name).WithStage(name)
		outcome.Error = wrapped.Error()
		o.logger.WithError(err).WithField("stage", name).Error("stage failed")
		return outcome, wrapped
	default:
		outcome.Status = StageCompleted
		o.logger.WithFields(logrus.Fields{
			"stage":       name,
			"duration_ms": outcome.DurationMs,
		}).Info("stage completed")
		return outcome, nil
	}
}

// runSchema optionally wipes the graph, then applies constraints and
// indexes. Reset before apply keeps the schema intact on a fresh run.
func (o *Orchestrator) runSchema(ctx context.Context) (map[string]any, error) {
	counts := map[string]any{"reset": o.cfg.ResetGraph}
	if o.cfg.ResetGraph {
		if err := o.client.ResetGraph(ctx); err != nil {
			return nil, err
		}
	}
	if err := graph.NewSchema(o.client, o.logger).Apply(ctx); err != nil {
		return nil, err
	}
	return counts, nil
}

func (o *Orchestrator) runEmbeddings(ctx context.Context) (map[string]any, error) {
	if o.embedder == nil {
		return nil, errSkipStage
	}
	embedded, err := o.embedder.EmbedPending(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"chunks_embedded": embedded}, nil
}
