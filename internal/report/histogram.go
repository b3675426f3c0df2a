package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/etdata/meterflow/internal/series"
	"github.com/etdata/meterflow/internal/units"
)

// SaveDeltaHistogram writes a PNG histogram of a delta column's known
// values, a quick visual check of a household's consumption profile.
// unit is the column's catalog unit; displayUnit may convert energy
// from kWh or volume from m3 for display, or be empty to keep the
// catalog unit.
func SaveDeltaHistogram(path, column, unit, displayUnit string, deltas []series.Value) error {
	convert, label, err := displayConversion(unit, displayUnit)
	if err != nil {
		return err
	}

	vals := make(plotter.Values, 0, len(deltas))
	for _, d := range deltas {
		if d.Valid {
			vals = append(vals, convert(d.Float))
		}
	}
	if len(vals) == 0 {
		return fmt.Errorf("report: no known deltas in %q to plot", column)
	}

	p := plot.New()
	p.Title.Text = column
	p.X.Label.Text = "per-interval consumption (" + label + ")"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(vals, 50)
	if err != nil {
		return fmt.Errorf("report: build histogram: %w", err)
	}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save histogram: %w", err)
	}
	return nil
}

// displayConversion resolves the value conversion from a column's
// catalog unit to the requested display unit. Only conversions from the
// catalog's base units (kWh for energy, m3 for volume) are supported.
func displayConversion(unit, displayUnit string) (func(float64) float64, string, error) {
	identity := func(v float64) float64 { return v }
	if displayUnit == "" || displayUnit == unit {
		return identity, unit, nil
	}
	switch {
	case unit == units.KWH && units.IsEnergy(displayUnit):
		return func(v float64) float64 { return units.ConvertEnergy(v, displayUnit) }, displayUnit, nil
	case unit == units.M3 && units.IsVolume(displayUnit):
		return func(v float64) float64 { return units.ConvertVolume(v, displayUnit) }, displayUnit, nil
	}
	return nil, "", fmt.Errorf("report: cannot display %s values as %s", unit, displayUnit)
}
