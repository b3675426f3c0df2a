// Package report renders fleet-level data-quality views: an HTML
// overview of check outcomes across households and PNG histograms of
// per-interval consumption.
package report

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/etdata/meterflow/internal/store"
)

// WriteFleetHTML renders the fleet quality page: a stacked bar chart of
// pass/fail/unknown counts per check, and below it per-household
// coverage bars, one series per cumulative column.
func WriteFleetHTML(w io.Writer, summary []store.CheckSummary, coverage []store.HouseholdCoverage) error {
	page := components.NewPage()
	page.AddCharts(checksBar(summary))
	if len(coverage) > 0 {
		page.AddCharts(coverageBar(coverage))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: render fleet page: %w", err)
	}
	return nil
}

func checksBar(summary []store.CheckSummary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Fleet data quality",
			Subtitle: "check outcomes across households",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	checks := make([]string, 0, len(summary))
	passed := make([]opts.BarData, 0, len(summary))
	failed := make([]opts.BarData, 0, len(summary))
	unknown := make([]opts.BarData, 0, len(summary))
	for _, s := range summary {
		checks = append(checks, s.Check)
		passed = append(passed, opts.BarData{Value: s.Passed})
		failed = append(failed, opts.BarData{Value: s.Failed})
		unknown = append(unknown, opts.BarData{Value: s.Unknown})
	}

	bar.SetXAxis(checks).
		AddSeries("passed", passed).
		AddSeries("failed", failed).
		AddSeries("unknown", unknown)
	return bar
}

func coverageBar(coverage []store.HouseholdCoverage) *charts.Bar {
	households := make([]string, 0)
	seen := make(map[string]int)
	columns := make(map[string]bool)
	for _, c := range coverage {
		if _, ok := seen[c.Ref]; !ok {
			seen[c.Ref] = len(households)
			households = append(households, c.Ref)
		}
		columns[c.Column] = true
	}

	// One series per column, a bar slot per household. Missing cells
	// stay nil so echarts leaves a gap rather than drawing a zero.
	series := make(map[string][]opts.BarData, len(columns))
	for col := range columns {
		series[col] = make([]opts.BarData, len(households))
	}
	for _, c := range coverage {
		series[c.Column][seen[c.Ref]] = opts.BarData{Value: c.Coverage}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Coverage per household",
			Subtitle: "fraction of expected readings present, per cumulative column",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(households)

	names := make([]string, 0, len(series))
	for col := range series {
		names = append(names, col)
	}
	sort.Strings(names)
	for _, col := range names {
		bar.AddSeries(col, series[col])
	}
	return bar
}

// FleetHandler serves the fleet quality page for the given run.
func FleetHandler(s *store.Store, runID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.FleetSummary(runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		coverage, err := s.CoverageByHousehold(runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := WriteFleetHTML(w, summary, coverage); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
