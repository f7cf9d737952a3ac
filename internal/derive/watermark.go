package derive

import (
	"context"

	"github.com/devgraph/devgraph-go/internal/errs"
)

// Watermarks persists per-family derivation watermarks as
// DerivationWatermark nodes so incrementality survives restarts.
// Advancement is monotone: a watermark never moves backwards.
type Watermarks struct {
	run runner
}

func NewWatermarks(run runner) *Watermarks {
	return &Watermarks{run: run}
}

// Get returns the stored watermark timestamp for a family, or "" when
// the family has never completed.
func (w *Watermarks) Get(ctx context.Context, family string) (string, error) {
	records, err := w.run.run(ctx, `
		MATCH (w:DerivationWatermark {key: $key})
		RETURN w.last_ts AS ts
	`, map[string]any{"key": family})
	if err != nil {
		return "", errs.Wrapf(err, errs.KindOf(err), "watermark read failed for %s", family)
	}
	if len(records) == 0 {
		return "", nil
	}
	if ts, ok := records[0].Get("ts"); ok {
		if s, ok := ts.(string); ok {
			return s, nil
		}
	}
	return "", nil
}

// Advance moves the family watermark forward to ts. A ts at or before
// the stored value leaves the watermark unchanged.
func (w *Watermarks) Advance(ctx context.Context, family, ts, runID string) error {
	if ts == "" {
		return nil
	}
	_, err := w.run.run(ctx, `
		MERGE (w:DerivationWatermark {key: $key})
		ON CREATE SET w.last_ts = $ts, w.last_run_id = $run
		ON MATCH SET
			w.last_ts = CASE WHEN w.last_ts IS NULL OR $ts > w.last_ts THEN $ts ELSE w.last_ts END,
			w.last_run_id = $run
	`, map[string]any{"key": family, "ts": ts, "run": runID})
	if err != nil {
		return errs.Wrapf(err, errs.KindOf(err), "watermark advance failed for %s", family)
	}
	return nil
}
