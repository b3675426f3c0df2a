// Package validate inspects household tables for data-quality problems:
// anomalies in cumulative meter counters, per-record threshold
// violations and dataset-level plausibility checks. Nothing in this
// package mutates data or returns errors for quality findings; findings
// are values consumed by the reconciler and the fleet index.
package validate

import (
	"time"

	"github.com/etdata/meterflow/internal/monitoring"
	"github.com/etdata/meterflow/internal/series"
)

// negEpsilon absorbs floating round-off when deciding whether a counter
// actually decreased.
const negEpsilon = 1e-10

// Default classifier parameters.
const (
	DefaultMaxGap      = time.Hour
	DefaultMinCoverage = 0.9
)

// AnomalyReport records the findings of one classification pass over a
// cumulative column. Every finding defaults to passing; a missing
// column fails only HasColumn, leaving the other checks vacuously true.
// Reports are created fresh per pass and never mutated afterwards.
type AnomalyReport struct {
	Column string

	HasColumn        bool
	GapWithinBound   bool
	NoNegativeDiff   bool
	NoUnexpectedZero bool
	EnoughCoverage   bool

	// WorstGapStart/WorstGap describe the largest observed gap between
	// consecutive present readings when GapWithinBound is false.
	WorstGapStart time.Time
	WorstGap      time.Duration

	// NegativeDiffAt lists every timestamp whose counter value decreased
	// relative to the previous present reading.
	NegativeDiffAt []time.Time

	// ZeroFrom/ZeroTo bound the unexpected-zero window when
	// NoUnexpectedZero is false.
	ZeroFrom time.Time
	ZeroTo   time.Time

	// Coverage is the forward-filled fraction of present rows.
	Coverage float64
}

// OK reports whether every finding passed.
func (r AnomalyReport) OK() bool {
	return r.HasColumn && r.GapWithinBound && r.NoNegativeDiff &&
		r.NoUnexpectedZero && r.EnoughCoverage
}

// Failed lists the names of the findings that did not pass.
func (r AnomalyReport) Failed() []string {
	var out []string
	if !r.HasColumn {
		out = append(out, "has_column")
	}
	if !r.GapWithinBound {
		out = append(out, "gap_within_bound")
	}
	if !r.NoNegativeDiff {
		out = append(out, "no_negative_diff")
	}
	if !r.NoUnexpectedZero {
		out = append(out, "no_unexpected_zero")
	}
	if !r.EnoughCoverage {
		out = append(out, "enough_coverage")
	}
	return out
}

// Classify inspects one cumulative column of a table. It is a pure
// function over a read view of the table: data-quality problems are
// reported, never raised, and the table is left untouched.
func Classify(tbl *series.Table, column string, maxGap time.Duration, minCoverage float64, context string) AnomalyReport {
	logf := monitoring.Context(context)
	report := AnomalyReport{
		Column:           column,
		HasColumn:        true,
		GapWithinBound:   true,
		NoNegativeDiff:   true,
		NoUnexpectedZero: true,
		EnoughCoverage:   true,
	}

	if !tbl.HasColumn(column) {
		logf("column %q not found in table", column)
		report.HasColumn = false
		return report
	}

	col := tbl.Column(column)
	present := series.PresentReadings(tbl.Times, col)

	// Gap check over consecutive present readings.
	for i := 1; i < len(present); i++ {
		gap := present[i].Time.Sub(present[i-1].Time)
		if gap > maxGap && gap > report.WorstGap {
			report.WorstGap = gap
			report.WorstGapStart = present[i-1].Time
		}
	}
	if report.WorstGap > 0 {
		logf("column %q has a gap of %s > allowed (%s) starting at %s",
			column, report.WorstGap, maxGap, report.WorstGapStart.Format(time.RFC3339))
		report.GapWithinBound = false
	}

	// Negative-diff check over consecutive present values.
	for i := 1; i < len(present); i++ {
		if present[i].Value.Float-present[i-1].Value.Float < -negEpsilon {
			report.NegativeDiffAt = append(report.NegativeDiffAt, present[i].Time)
		}
	}
	if len(report.NegativeDiffAt) > 0 {
		logf("column %q has a decrease in subsequent cumulative values at %d timestamps, first %s",
			column, len(report.NegativeDiffAt), report.NegativeDiffAt[0].Format(time.RFC3339))
		report.NoNegativeDiff = false

		// Only hunt for spurious zeros once a decrease proves the
		// counter misbehaved.
		first := report.NegativeDiffAt[0]
		for _, r := range present {
			if r.Value.Float == 0 && !r.Time.Before(first) {
				if report.ZeroFrom.IsZero() {
					report.ZeroFrom = r.Time
				}
				report.ZeroTo = r.Time
			}
		}
		if !report.ZeroFrom.IsZero() {
			logf("column %q has unexpected zero values from %s to %s",
				column, report.ZeroFrom.Format(time.RFC3339), report.ZeroTo.Format(time.RFC3339))
			report.NoUnexpectedZero = false
		}
	}

	// Coverage: fraction of rows covered after forward-filling, i.e.
	// every row at or after the first present reading counts.
	report.Coverage = ffillCoverage(col)
	if report.Coverage < minCoverage {
		logf("column %q has less than %.0f%% forward-filled values (%.1f%%)",
			column, minCoverage*100, report.Coverage*100)
		report.EnoughCoverage = false
	}

	return report
}

func ffillCoverage(col []series.Value) float64 {
	if len(col) == 0 {
		return 0
	}
	first := -1
	for i, v := range col {
		if v.Valid {
			first = i
			break
		}
	}
	if first < 0 {
		return 0
	}
	return float64(len(col)-first) / float64(len(col))
}
