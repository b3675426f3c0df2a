package validate

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/etdata/meterflow/internal/catalog"
	"github.com/etdata/meterflow/internal/series"
)

// RecordValidator produces one tri-state diagnostic column for a table.
// Validators are plain structs binding their column names and bounds at
// construction time, so the set built from the catalog is data, not
// code, and nothing is captured late.
type RecordValidator struct {
	Name string
	Eval func(tbl *series.Table) []series.Tri
}

// nominalSpacing is the expected distance between consecutive readings.
const nominalSpacing = 300 * time.Second

// RecordValidators builds the full validator set for a catalog: the
// fixed structural and cross-variable checks plus one threshold check
// per non-cumulative variable and one outlier check per cumulative
// delta column.
func RecordValidators(cat *catalog.Catalog) []RecordValidator {
	out := []RecordValidator{
		{Name: "validate_reading_date_unique", Eval: validateUniqueTimestamps},
		{Name: "validate_300sec", Eval: validateSpacing},
		{Name: "validate_electricity_balance", Eval: validateElectricityBalance},
		{Name: "validate_heat_production", Eval: validateHeatProduction},
		{Name: "validate_thresholds_combined", Eval: thresholdsCombined(cat)},
	}
	for _, name := range cat.Variables() {
		t, _ := cat.Lookup(name)
		if t.Kind == catalog.Cumulative {
			continue
		}
		rule := columnRule{column: name, bounds: t}
		out = append(out, RecordValidator{Name: "validate_" + name, Eval: rule.eval})
	}
	for _, name := range cat.CumulativeColumns() {
		rule := outlierRule{column: name + "Diff"}
		out = append(out, RecordValidator{Name: "validate_" + name + "Diff_outliers", Eval: rule.eval})
	}
	return out
}

// AddRecordFlags runs every validator and attaches the resulting
// diagnostic columns to the table.
func AddRecordFlags(tbl *series.Table, cat *catalog.Catalog) {
	for _, v := range RecordValidators(cat) {
		tbl.SetFlag(v.Name, v.Eval(tbl))
	}
}

// columnRule checks one column against its catalog bounds per row.
type columnRule struct {
	column string
	bounds catalog.Threshold
}

func (r columnRule) eval(tbl *series.Table) []series.Tri {
	out := make([]series.Tri, tbl.Len())
	col := tbl.Column(r.column)
	if col == nil {
		return out
	}
	for i, v := range col {
		out[i] = r.bounds.InRange(v)
	}
	return out
}

// outlierRule flags statistical outliers in a delta column using the
// interquartile range of its positive values.
type outlierRule struct {
	column string
}

func (r outlierRule) eval(tbl *series.Table) []series.Tri {
	out := make([]series.Tri, tbl.Len())
	col := tbl.Column(r.column)
	if col == nil {
		return out
	}
	var positive []float64
	for _, v := range col {
		if v.Valid && v.Float > 0 {
			positive = append(positive, v.Float)
		}
	}
	if len(positive) == 0 {
		return out
	}
	sort.Float64s(positive)
	q1 := stat.Quantile(0.25, stat.LinInterp, positive, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, positive, nil)
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr
	for i, v := range col {
		if !v.Valid || v.Float <= 0 {
			continue
		}
		out[i] = series.TriOf(v.Float >= lower && v.Float <= upper)
	}
	return out
}

func validateUniqueTimestamps(tbl *series.Table) []series.Tri {
	out := make([]series.Tri, tbl.Len())
	seen := make(map[int64]bool, tbl.Len())
	for i, t := range tbl.Times {
		key := t.UnixNano()
		out[i] = series.TriOf(!seen[key])
		seen[key] = true
	}
	return out
}

func validateSpacing(tbl *series.Table) []series.Tri {
	out := make([]series.Tri, tbl.Len())
	for i := 1; i < tbl.Len(); i++ {
		d := tbl.Times[i].Sub(tbl.Times[i-1])
		if d < 0 {
			d = -d
		}
		out[i] = series.TriOf(d == nominalSpacing)
	}
	return out
}

// validateElectricityBalance checks that household consumption never
// exceeds the sum of its possible sources.
func validateElectricityBalance(tbl *series.Table) []series.Tri {
	return crossCheck(tbl,
		[]string{"ElectricityHousehold", "SolarTotal", "ElectricityDeliveredHigh", "ElectricityDeliveredLow"},
		func(v []float64) bool { return v[0] <= v[1]+v[2]+v[3] })
}

// validateHeatProduction checks that total heat production is at least
// the tap-water share of it.
func validateHeatProduction(tbl *series.Table) []series.Tri {
	return crossCheck(tbl,
		[]string{"HeatProducedTotal", "HeatProducedTapWater"},
		func(v []float64) bool { return v[0] >= v[1] })
}

// crossCheck evaluates a row predicate over several columns. Rows with
// any unknown input stay Unknown; if any column is missing entirely the
// whole diagnostic column is Unknown.
func crossCheck(tbl *series.Table, columns []string, pred func([]float64) bool) []series.Tri {
	out := make([]series.Tri, tbl.Len())
	cols := make([][]series.Value, len(columns))
	for i, name := range columns {
		cols[i] = tbl.Column(name)
		if cols[i] == nil {
			return out
		}
	}
	vals := make([]float64, len(columns))
	for row := 0; row < tbl.Len(); row++ {
		known := true
		for i := range cols {
			v := cols[i][row]
			if !v.Valid {
				known = false
				break
			}
			vals[i] = v.Float
		}
		if known {
			out[row] = series.TriOf(pred(vals))
		}
	}
	return out
}

// thresholdsCombined checks, per row, whether at least one known value
// of the catalog variables lies within its declared bounds. Rows where
// every catalog variable is unknown stay Unknown.
func thresholdsCombined(cat *catalog.Catalog) func(tbl *series.Table) []series.Tri {
	return func(tbl *series.Table) []series.Tri {
		out := make([]series.Tri, tbl.Len())
		type bound struct {
			col    []series.Value
			bounds catalog.Threshold
		}
		var checks []bound
		for _, name := range cat.Variables() {
			if col := tbl.Column(name); col != nil {
				t, _ := cat.Lookup(name)
				checks = append(checks, bound{col: col, bounds: t})
			}
		}
		for row := 0; row < tbl.Len(); row++ {
			anyKnown := false
			anyValid := false
			for _, c := range checks {
				switch c.bounds.InRange(c.col[row]) {
				case series.True:
					anyKnown, anyValid = true, true
				case series.False:
					anyKnown = true
				}
			}
			if anyKnown {
				out[row] = series.TriOf(anyValid)
			}
		}
		return out
	}
}
