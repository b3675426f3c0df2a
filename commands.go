package main

import (
	"flag"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/etdata/meterflow/internal/catalog"
	"github.com/etdata/meterflow/internal/clockalign"
	"github.com/etdata/meterflow/internal/config"
	"github.com/etdata/meterflow/internal/fsutil"
	"github.com/etdata/meterflow/internal/ingest"
	"github.com/etdata/meterflow/internal/monitoring"
	"github.com/etdata/meterflow/internal/reconcile"
	"github.com/etdata/meterflow/internal/report"
	"github.com/etdata/meterflow/internal/series"
	"github.com/etdata/meterflow/internal/store"
	"github.com/etdata/meterflow/internal/validate"
)

func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		return config.EmptyPipelineConfig(), nil
	}
	return config.LoadPipelineConfig(path)
}

// runProcess reads household CSVs, regularizes their sampling grid,
// reconciles every cumulative counter, attaches record diagnostics, and
// persists tables plus findings. Households are independent; fanning
// this out over a worker pool is the caller's concern, one process
// invocation handles its inputs sequentially.
func runProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	dbPath := fs.String("db", "meterflow.db", "sqlite store path")
	cfgPath := fs.String("config", "", "pipeline config JSON")
	supplier := fs.String("supplier", "default", "data supplier name")
	outDir := fs.String("out", "", "directory for corrected CSVs (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("process: no input files")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	s, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	run, err := s.StartRun()
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	cat := catalog.Default()
	for _, path := range fs.Args() {
		ref := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := processHousehold(s, fsys, cat, cfg, run, *supplier, ref, path, *outDir); err != nil {
			return fmt.Errorf("process %s: %w", path, err)
		}
	}
	monitoring.Logf("run %s complete (%d households)", run.ID, fs.NArg())
	return nil
}

func processHousehold(s *store.Store, fsys fsutil.FileSystem, cat *catalog.Catalog,
	cfg *config.PipelineConfig, run store.Run, supplier, ref, path, outDir string) error {

	tbl, err := ingest.ReadCSV(fsys, path)
	if err != nil {
		return err
	}
	ingest.Canonicalize(tbl, cat, true, ref)

	tbl = reconcile.Regularize(tbl, cfg.GetPeriod(), ref)
	if err := tbl.ValidateIndex(); err != nil {
		return err
	}

	opts := reconcile.Options{
		MaxGap:        cfg.GetMaxGap(),
		MinCoverage:   cfg.GetMinCoverage(),
		DropOnFailure: cfg.GetDropOnFailure(),
		Context:       ref,
	}
	reports, dropped, err := reconcile.AddDiffColumns(tbl, cat.CumulativeColumns(), opts)
	if err != nil {
		return err
	}

	householdID, err := s.UpsertHousehold(supplier, ref)
	if err != nil {
		return err
	}
	findings := reportFindings(reports)
	if dropped {
		return s.SaveFindings(run.ID, householdID, findings)
	}

	reconcile.FillDownInfrequent(tbl, fillDownColumns(cfg))
	validate.AddRecordFlags(tbl, cat)
	for _, c := range validate.DatasetChecks(tbl, cat) {
		findings = append(findings, store.Finding{Name: c.Name, Result: c.Result})
	}

	if err := s.SaveTable(householdID, tbl); err != nil {
		return err
	}
	if err := s.SaveFindings(run.ID, householdID, findings); err != nil {
		return err
	}

	if outDir != "" {
		if err := fsys.MkdirAll(outDir, 0755); err != nil {
			return err
		}
		out := filepath.Join(outDir, ref+".csv")
		if err := ingest.WriteCSV(fsys, out, tbl); err != nil {
			return err
		}
	}
	return nil
}

func fillDownColumns(cfg *config.PipelineConfig) []string {
	if cols := cfg.GetFillDownColumns(); len(cols) > 0 {
		return cols
	}
	return reconcile.DefaultFillDownColumns
}

// reportFindings flattens anomaly reports into storable findings, one
// per check per column, plus a coverage detail per column.
func reportFindings(reports []validate.AnomalyReport) []store.Finding {
	var out []store.Finding
	for _, r := range reports {
		out = append(out,
			store.Finding{Name: r.Column + "_has_column", Result: series.TriOf(r.HasColumn)},
			store.Finding{Name: r.Column + "_gap_within_bound", Result: series.TriOf(r.GapWithinBound)},
			store.Finding{Name: r.Column + "_no_negative_diff", Result: series.TriOf(r.NoNegativeDiff)},
			store.Finding{Name: r.Column + "_no_unexpected_zero", Result: series.TriOf(r.NoUnexpectedZero)},
			store.Finding{
				Name:   r.Column + "_coverage",
				Result: series.TriOf(r.EnoughCoverage),
				Detail: fmt.Sprintf("%f", r.Coverage),
			},
		)
	}
	return out
}

// runAlign estimates a clock per device stream, aligns each stream onto
// its grid, and merges everything on a shared phase.
func runAlign(args []string) error {
	fs := flag.NewFlagSet("align", flag.ExitOnError)
	cfgPath := fs.String("config", "", "pipeline config JSON")
	outPath := fs.String("out", "merged.csv", "output CSV path")
	useFirst := fs.Bool("use-first", false, "anchor the shared phase on the first stream")
	tolReport := fs.String("tolerances", "", "comma-separated tolerances to size alignment against (e.g. 5s,20s)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("align: no device streams")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	method, err := clockalign.ParseMethod(cfg.GetMethod())
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	cat := catalog.Default()
	cumulative := make(map[string]bool)
	for _, name := range cat.CumulativeColumns() {
		cumulative[name] = true
	}

	periodSec := int64(cfg.GetPeriod().Seconds())
	tables := make([]*series.Table, fs.NArg())
	for i, path := range fs.Args() {
		tbl, err := ingest.ReadCSV(fsys, path)
		if err != nil {
			return err
		}
		tbl.SortByTime()
		tables[i] = tbl
	}
	deviceTimes := clockalign.TimesOf(tables)
	clocks, err := clockalign.EstimateClocks(deviceTimes, periodSec)
	if err != nil {
		return err
	}

	if *tolReport != "" {
		tolerances, err := parseTolerances(*tolReport)
		if err != nil {
			return err
		}
		for _, c := range clockalign.ReportToleranceImpact(deviceTimes, clocks, tolerances) {
			monitoring.Logf("%s: tolerance %s keeps %d/%d readings on the device grid, %d on the fleet grid",
				fs.Arg(c.Device), c.Tolerance, c.WithinDevice, len(deviceTimes[c.Device]), c.WithinFleet)
		}
	}

	aligned := make([]*series.Table, len(tables))
	for i, tbl := range tables {
		a, err := clockalign.Align(tbl, clocks.PerDevice[i], cfg.GetTolerance(), method, cumulative)
		if err != nil {
			return fmt.Errorf("align %s: %w", fs.Arg(i), err)
		}
		aligned[i] = a
	}

	merged, err := clockalign.Merge(aligned, *useFirst, cfg.GetPeriod())
	if err != nil {
		return err
	}
	return ingest.WriteCSV(fsys, *outPath, merged)
}

func parseTolerances(list string) ([]time.Duration, error) {
	parts := strings.Split(list, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("align: bad tolerance %q: %w", p, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// runReport renders the fleet data-quality report for a run, either to
// a file or from a small HTTP endpoint. With -hist it instead plots the
// per-interval consumption histogram of one household's delta column.
func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dbPath := fs.String("db", "meterflow.db", "sqlite store path")
	runID := fs.String("run", "", "run id (required for the fleet report)")
	outPath := fs.String("out", "", "write the HTML report to this file")
	listen := fs.String("listen", "", "serve the report on this address instead")
	hist := fs.String("hist", "", "cumulative column to plot a delta histogram for")
	supplier := fs.String("supplier", "default", "data supplier name (with -hist)")
	household := fs.String("household", "", "household reference (with -hist)")
	histUnit := fs.String("hist-unit", "", "display unit for -hist (e.g. MJ, L)")
	histOut := fs.String("hist-out", "histogram.png", "output PNG path for -hist")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if *hist != "" {
		return writeHistogram(s, *supplier, *household, *hist, *histUnit, *histOut)
	}
	if *runID == "" {
		return fmt.Errorf("report: -run is required")
	}

	if *listen != "" {
		http.Handle("/fleet", report.FleetHandler(s, *runID))
		monitoring.Logf("serving fleet report on %s/fleet", *listen)
		return http.ListenAndServe(*listen, nil)
	}

	summary, err := s.FleetSummary(*runID)
	if err != nil {
		return err
	}
	coverage, err := s.CoverageByHousehold(*runID)
	if err != nil {
		return err
	}
	fsys := fsutil.OSFileSystem{}
	if *outPath == "" {
		*outPath = "fleet.html"
	}
	f, err := fsys.Create(*outPath)
	if err != nil {
		return err
	}
	if err := report.WriteFleetHTML(f, summary, coverage); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeHistogram(s *store.Store, supplier, household, column, displayUnit, outPath string) error {
	if household == "" {
		return fmt.Errorf("report: -household is required with -hist")
	}
	id, err := s.FindHousehold(supplier, household)
	if err != nil {
		return err
	}
	tbl, err := s.LoadTable(id)
	if err != nil {
		return err
	}
	diff := tbl.Column(column + reconcile.DiffSuffix)
	if diff == nil {
		return fmt.Errorf("report: household %s has no %s%s column", household, column, reconcile.DiffSuffix)
	}
	unit := ""
	if t, ok := catalog.Default().Lookup(column); ok {
		unit = t.Unit
	}
	return report.SaveDeltaHistogram(outPath, column+reconcile.DiffSuffix, unit, displayUnit, diff)
}

// runMigrate manages the store schema via versioned migrations.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "meterflow.db", "sqlite store path")
	dir := fs.String("dir", "migrations", "migrations directory")
	down := fs.Bool("down", false, "roll back the most recent migration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if *down {
		return s.MigrateDown(*dir)
	}
	if err := s.MigrateUp(*dir); err != nil {
		return err
	}
	version, dirty, err := s.MigrateVersion(*dir)
	if err != nil {
		return err
	}
	monitoring.Logf("store schema at version %d (dirty=%v)", version, dirty)
	return nil
}
