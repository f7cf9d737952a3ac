package derive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/graph"
)

// runner abstracts query execution so a dry run can route every
// statement through one explicit transaction that is rolled back.
type runner interface {
	run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error)
}

type liveRunner struct{ client *graph.Client }

func (r liveRunner) run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := r.client.Write(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

type txRunner struct{ tx neo4j.ExplicitTransaction }

func (r txRunner) run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := r.tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

// Family names, in the fixed derivation order.
const (
	FamilyImplements = "implements"
	FamilyEvolves    = "evolves_from"
	FamilyDepends    = "depends_on"
	FamilyMentions   = "mentions"
	FamilyRelates    = "relates_to"
	FamilyCoOccurs   = "co_occurs_with"
)

var familyOrder = []string{
	FamilyImplements, FamilyEvolves, FamilyDepends,
	FamilyMentions, FamilyRelates, FamilyCoOccurs,
}

// Options scope a derivation run.
type Options struct {
	Since      string   // ISO-8601; earlier than a watermark forces a full rerun
	DryRun     bool     // wrap all writes in a rolled-back transaction
	Strategies []string // subset of family names; empty means all
}

// FamilyReport is one family's outcome.
type FamilyReport struct {
	Name     string        `json:"name"`
	Edges    int           `json:"edges"`
	Duration time.Duration `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Report is the derivation result: per-family counts, the confidence
// histogram, and total wall time.
type Report struct {
	RunID      string         `json:"run_id"`
	DryRun     bool           `json:"dry_run"`
	Families   []FamilyReport `json:"families"`
	Histogram  Histogram      `json:"confidence_histogram"`
	WallTimeMs int64          `json:"wall_time_ms"`
}

// Deriver runs the evidence-accumulating inference families in fixed
// order. Families are isolated: one failing family neither aborts the
// others nor advances its own watermark.
type Deriver struct {
	client *graph.Client
	logger *logrus.Logger
}

func NewDeriver(client *graph.Client, logger *logrus.Logger) *Deriver {
	return &Deriver{client: client, logger: logger}
}

type familyFunc func(ctx context.Context, run runner, watermark string, hist *Histogram) (edges int, maxTS string, err error)

// Run executes the selected families. With DryRun every query runs
// inside one explicit transaction that is rolled back at the end, so
// counts are real but the graph is untouched.
func (d *Deriver) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.DryRun {
		report := &Report{}
		err := d.client.DryRunTx(ctx, func(tx neo4j.ExplicitTransaction) error {
			r, err := d.runFamilies(ctx, txRunner{tx: tx}, opts)
			*report = *r
			return err
		})
		report.DryRun = true
		return report, err
	}
	return d.runFamilies(ctx, liveRunner{client: d.client}, opts)
}

func (d *Deriver) runFamilies(ctx context.Context, run runner, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	watermarks := NewWatermarks(run)

	selected := map[string]bool{}
	for _, s := range opts.Strategies {
		selected[s] = true
	}

	families := map[string]familyFunc{
		FamilyImplements: d.deriveImplements,
		FamilyEvolves:    d.deriveEvolves,
		FamilyDepends:    d.deriveDepends,
		FamilyMentions:   d.deriveMentions,
		FamilyRelates:    d.deriveRelates,
		FamilyCoOccurs:   d.deriveCoOccurs,
	}

	failures := 0
	ran := 0
	for _, name := range familyOrder {
		if len(selected) > 0 && !selected[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, errs.Wrap(err, errs.KindCancelled, "derivation cancelled")
		}
		ran++

		fr := FamilyReport{Name: name}
		familyStart := time.Now()

		watermark, err := watermarks.Get(ctx, name)
		if err == nil {
			watermark = effectiveWatermark(watermark, opts.Since)
			var maxTS string
			fr.Edges, maxTS, err = families[name](ctx, run, watermark, &report.Histogram)
			if err == nil {
				err = watermarks.Advance(ctx, name, maxTS, report.RunID)
			}
		}
		fr.Duration = time.Since(familyStart)

		if err != nil {
			failures++
			fr.Error = err.Error()
			d.logger.WithField("family", name).WithError(err).Error("derivation family failed")
		} else {
			d.logger.WithFields(logrus.Fields{
				"family":   name,
				"edges":    fr.Edges,
				"duration": fr.Duration.String(),
			}).Info("derivation family completed")
		}
		report.Families = append(report.Families, fr)
	}

	report.WallTimeMs = time.Since(start).Milliseconds()
	if ran > 0 && failures == ran {
		return report, errs.New(errs.KindDerivation, "all derivation families failed")
	}
	return report, nil
}

// effectiveWatermark applies the since override: asking for a window
// earlier than the stored watermark forces a full rerun.
func effectiveWatermark(watermark, since string) string {
	if since == "" {
		return watermark
	}
	if watermark != "" && since < watermark {
		return ""
	}
	return since
}
