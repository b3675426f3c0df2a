// Package reconcile repairs cumulative meter counters and derives their
// per-interval delta columns. The classifier (package validate) decides
// what is wrong; this package decides what to sacrifice.
package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/etdata/meterflow/internal/monitoring"
	"github.com/etdata/meterflow/internal/series"
	"github.com/etdata/meterflow/internal/validate"
)

const negEpsilon = 1e-10

// DiffSuffix is appended to a cumulative column's name to form its
// derived delta column.
const DiffSuffix = "Diff"

// Options bundles the caller policy for a reconciliation pass.
type Options struct {
	// MaxGap and MinCoverage are handed to the classifier.
	MaxGap      time.Duration
	MinCoverage float64

	// DropOnFailure discards the entire household table when any
	// classifier finding fails, instead of attempting repair.
	DropOnFailure bool

	// Context prefixes log lines, typically with a household id.
	Context string
}

// DefaultOptions returns the standard reconciliation policy.
func DefaultOptions() Options {
	return Options{
		MaxGap:      validate.DefaultMaxGap,
		MinCoverage: validate.DefaultMinCoverage,
	}
}

// AddDiffColumns classifies and reconciles every listed cumulative
// column of the table in place, appending one <name>Diff column per
// cumulative column present. It returns the classifier reports and,
// when Options.DropOnFailure applies, dropped=true with the table left
// unmodified. A non-nil error means a repair post-condition was
// violated, which indicates corrupt input rather than a quality finding.
func AddDiffColumns(tbl *series.Table, cumulative []string, opts Options) (reports []validate.AnomalyReport, dropped bool, err error) {
	logf := monitoring.Context(opts.Context)
	tbl.SortByTime()

	allOK := true
	for _, col := range cumulative {
		r := validate.Classify(tbl, col, opts.MaxGap, opts.MinCoverage, opts.Context)
		reports = append(reports, r)
		if !r.OK() {
			allOK = false
		}
	}
	if !allOK {
		var failed []string
		for _, r := range reports {
			for _, f := range r.Failed() {
				failed = append(failed, r.Column+":"+f)
			}
		}
		if opts.DropOnFailure {
			logf("some cumulative columns did not pass validation (%v); dropping table", failed)
			return reports, true, nil
		}
		logf("some cumulative columns did not pass validation (%v); keeping table", failed)
	}

	for i, col := range cumulative {
		if err := Reconcile(tbl, col, reports[i], opts.Context); err != nil {
			return reports, false, err
		}
	}
	return reports, false, nil
}

// Reconcile repairs a single cumulative column according to its anomaly
// report and recomputes its delta column. The repair guarantees that no
// negative delta remains computable; if one does after correction, the
// input data is defective and an error is returned.
//
// Repair policy per negative gap-free delta at time t:
//   - no later present reading with a nonzero delta: the meter is
//     presumed broken from t on, and the rest of the column is nulled;
//   - the next nonzero delta recovers at least the dip: the dip was a
//     transient fault, null [t, next);
//   - the next nonzero delta is itself negative: unrecoverable span,
//     null [t, next);
//   - otherwise the counter evidently reset near zero: sacrifice only
//     the value at t. The reset itself is absorbed downstream by
//     fill-down, not here.
func Reconcile(tbl *series.Table, column string, report validate.AnomalyReport, context string) error {
	logf := monitoring.Context(context)

	if !report.HasColumn {
		logf("cumulative column %q not found; no %s column created", column, DiffSuffix)
		return nil
	}

	col := tbl.Column(column)
	diffName := column + DiffSuffix
	tbl.SetColumn(diffName, series.Deltas(col))

	if report.NoNegativeDiff {
		return nil
	}

	// Work over the present-only subsequence so missing rows do not hide
	// or fabricate dips. Both the dip locations and the deltas are fixed
	// up-front; corrections below only ever null values.
	present := series.PresentReadings(tbl.Times, col)
	deltas := make([]float64, len(present))
	for i := 1; i < len(present); i++ {
		deltas[i] = round10(present[i].Value.Float - present[i-1].Value.Float)
	}

	for i := 1; i < len(present); i++ {
		if deltas[i] >= -negEpsilon {
			continue
		}
		rd := present[i].Time
		gap := deltas[i]

		next := -1
		for j := i + 1; j < len(present); j++ {
			if math.Abs(deltas[j]) > negEpsilon {
				next = j
				break
			}
		}

		if next < 0 {
			logf("removing all values in %q from %s on: no subsequent increases after the negative diff",
				column, rd.Format(time.RFC3339))
			nullRange(tbl.Times, col, rd, time.Time{})
			continue
		}

		nextDelta := deltas[next]
		nextDate := present[next].Time
		switch {
		case nextDelta >= -gap:
			logf("removing transient dip in %q between %s and %s",
				column, rd.Format(time.RFC3339), nextDate.Format(time.RFC3339))
			nullRange(tbl.Times, col, rd, nextDate)
		case nextDelta < 0:
			logf("two negative diffs one after the other in %q between %s and %s; removing all values in that span",
				column, rd.Format(time.RFC3339), nextDate.Format(time.RFC3339))
			nullRange(tbl.Times, col, rd, nextDate)
		default:
			// Counter reset near its previous level: sacrificing the one
			// offending value keeps every later reading usable.
			logf("negative gap jump in %q at %s; removing single cumulative value",
				column, rd.Format(time.RFC3339))
			nullAt(tbl.Times, col, rd)
		}
	}

	logf("re-calculating %s for %q after corrections", DiffSuffix, column)
	diffs := series.Deltas(col)
	tbl.SetColumn(diffName, diffs)

	for i, d := range diffs {
		if d.Valid && d.Float < -negEpsilon {
			return fmt.Errorf("reconcile: column %q still has a negative delta (%g) at %s after corrections",
				column, d.Float, tbl.Times[i].Format(time.RFC3339))
		}
	}
	return nil
}

// nullRange sets col to unknown for every row with from <= t < to.
// A zero `to` nulls everything from `from` onward.
func nullRange(times []time.Time, col []series.Value, from, to time.Time) {
	for i, t := range times {
		if t.Before(from) {
			continue
		}
		if !to.IsZero() && !t.Before(to) {
			continue
		}
		col[i] = series.NA
	}
}

func nullAt(times []time.Time, col []series.Value, at time.Time) {
	for i, t := range times {
		if t.Equal(at) {
			col[i] = series.NA
		}
	}
}

func round10(f float64) float64 {
	return math.Round(f*1e10) / 1e10
}
