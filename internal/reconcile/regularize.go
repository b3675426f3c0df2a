package reconcile

import (
	"time"

	"github.com/etdata/meterflow/internal/monitoring"
	"github.com/etdata/meterflow/internal/series"
)

// DefaultPeriod is the nominal sampling interval of household meters.
const DefaultPeriod = 5 * time.Minute

// Regularize ensures the table has exactly one row per sampling period
// across its observed span. Missing slots become all-unknown rows;
// excess rows (duplicate or sub-interval timestamps) are dropped by
// joining against the canonical grid, which is surfaced as a
// data-quality warning because it means the data source is suspect.
func Regularize(tbl *series.Table, period time.Duration, context string) *series.Table {
	logf := monitoring.Context(context)
	if tbl.Len() == 0 {
		return tbl
	}
	tbl.SortByTime()

	earliest := tbl.Times[0]
	latest := tbl.Times[tbl.Len()-1]
	expected := int(latest.Sub(earliest)/period) + 1

	if expected == tbl.Len() {
		logf("expected number of records based on start and end date; not adding %s intervals", period)
		return tbl
	}

	grid := make([]time.Time, 0, expected)
	for ts := earliest; !ts.After(latest); ts = ts.Add(period) {
		grid = append(grid, ts)
	}
	onGrid := make(map[int64]bool, len(grid))
	for _, ts := range grid {
		onGrid[ts.UnixNano()] = true
	}

	if expected < tbl.Len() {
		logf("more records (%d) than possible at a %s interval (%d); joining against the grid to reduce records, check data source",
			tbl.Len(), period, expected)
		return tbl.Reindex(grid)
	}

	// Outer join: every grid slot plus any off-grid source rows. Count
	// first so duplicate source timestamps can be detected before they
	// inflate the result.
	distinctInGrid := make(map[int64]bool)
	offGrid := make([]time.Time, 0)
	for _, ts := range tbl.Times {
		if onGrid[ts.UnixNano()] {
			distinctInGrid[ts.UnixNano()] = true
		} else {
			offGrid = append(offGrid, ts)
		}
	}
	outerCount := len(grid) + tbl.Len() - len(distinctInGrid)
	if outerCount > expected {
		logf("outer join would produce %d records, more than possible at a %s interval (%d); joining left against the grid, check data source",
			outerCount, period, expected)
		return tbl.Reindex(grid)
	}

	logf("adding %s intervals (%d -> %d records)", period, tbl.Len(), expected)
	union := append(append([]time.Time(nil), grid...), offGrid...)
	out := tbl.Reindex(union)
	out.SortByTime()
	return out
}
