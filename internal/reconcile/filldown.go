package reconcile

import "github.com/etdata/meterflow/internal/series"

// DefaultFillDownColumns lists counters from devices that only report
// when their value changes, so long unknown stretches are expected and
// safe to fill.
var DefaultFillDownColumns = []string{
	"ElectricityBoilerTank",
	"ElectricityBooster",
}

// FillDownInfrequent imputes cumulative counters of infrequently
// reporting devices: forward fill, then backward fill, then zero.
// This is only safe for columns where a missing reading means "no
// change"; running it on a misbehaving data source hides real gaps, so
// the column list is caller-supplied configuration.
func FillDownInfrequent(tbl *series.Table, columns []string) {
	for _, name := range columns {
		col := tbl.Column(name)
		if col == nil {
			continue
		}
		last := series.NA
		for i := range col {
			if col[i].Valid {
				last = col[i]
			} else if last.Valid {
				col[i] = last
			}
		}
		next := series.NA
		for i := len(col) - 1; i >= 0; i-- {
			if col[i].Valid {
				next = col[i]
			} else if next.Valid {
				col[i] = next
			}
		}
		for i := range col {
			if !col[i].Valid {
				col[i] = series.V(0)
			}
		}
	}
}
