package validate

import (
	"github.com/etdata/meterflow/internal/catalog"
	"github.com/etdata/meterflow/internal/series"
)

// Expected record counts for roughly one year of 5-minute sampling.
const (
	MinYearlyRecords = 100000
	MaxYearlyRecords = 110000
)

// DatasetCheck is one household-level finding: a named check with a
// tri-state outcome, Unknown when the data needed to decide is absent.
// These feed the fleet-level index.
type DatasetCheck struct {
	Name   string
	Result series.Tri
}

// DatasetChecks evaluates the household-level plausibility checks:
// the record-count window, non-decreasing cumulative counters, and
// per-interval deltas within the catalog's declared bounds.
func DatasetChecks(tbl *series.Table, cat *catalog.Catalog) []DatasetCheck {
	out := []DatasetCheck{
		{Name: "monitoring_data_counts", Result: recordCountInRange(tbl)},
	}
	for _, name := range cat.CumulativeColumns() {
		out = append(out, DatasetCheck{
			Name:   name + "_nondecreasing",
			Result: nonDecreasing(tbl.Column(name)),
		})
		if t, ok := cat.Lookup(name + "Diff"); ok {
			out = append(out, DatasetCheck{
				Name:   name + "Diff_within_bounds",
				Result: diffsWithinBounds(tbl.Column(name), t),
			})
		}
	}
	return out
}

func recordCountInRange(tbl *series.Table) series.Tri {
	if tbl.Len() == 0 {
		return series.Unknown
	}
	return series.TriOf(tbl.Len() >= MinYearlyRecords && tbl.Len() <= MaxYearlyRecords)
}

// nonDecreasing reports whether a cumulative column never decreases
// across its known values. Fewer than two known values is undecidable.
func nonDecreasing(col []series.Value) series.Tri {
	if col == nil {
		return series.Unknown
	}
	prev := series.NA
	pairs := 0
	for _, v := range col {
		if !v.Valid {
			continue
		}
		if prev.Valid {
			pairs++
			if v.Float-prev.Float < -negEpsilon {
				return series.False
			}
		}
		prev = v
	}
	if pairs == 0 {
		return series.Unknown
	}
	return series.True
}

// diffsWithinBounds checks every adjacent-row delta of a cumulative
// column against the catalog bounds declared for its delta column.
func diffsWithinBounds(col []series.Value, bounds catalog.Threshold) series.Tri {
	if col == nil {
		return series.Unknown
	}
	pairs := 0
	for i := 1; i < len(col); i++ {
		if !col[i].Valid || !col[i-1].Valid {
			continue
		}
		pairs++
		if bounds.InRange(series.V(col[i].Float-col[i-1].Float)) == series.False {
			return series.False
		}
	}
	if pairs == 0 {
		return series.Unknown
	}
	return series.True
}
