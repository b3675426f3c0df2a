// Package ingest reads and writes household tables as CSV files and
// canonicalizes their column layout against the catalog. It is a thin
// I/O wrapper: all repair and alignment logic lives elsewhere and works
// on in-memory tables.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/etdata/meterflow/internal/catalog"
	"github.com/etdata/meterflow/internal/fsutil"
	"github.com/etdata/meterflow/internal/monitoring"
	"github.com/etdata/meterflow/internal/series"
)

// TimeColumn is the name of the timestamp column in household tables.
const TimeColumn = "ReadingDate"

// timeLayouts are the accepted timestamp formats, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ReadCSV loads a household table. A missing timestamp column or a
// non-numeric cell in a value column is a structural error; empty cells
// become unknown values.
func ReadCSV(fsys fsutil.FileSystem, path string) (*series.Table, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a household table from CSV.
func Read(r io.Reader) (*series.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}

	timeIdx := -1
	for i, h := range header {
		if h == TimeColumn {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("ingest: required column %q not found", TimeColumn)
	}

	var times []time.Time
	cols := make([][]series.Value, len(header))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		ts, err := parseTime(rec[timeIdx])
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		times = append(times, ts)
		for i, cell := range rec {
			if i == timeIdx {
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("ingest: line %d, column %q: %w", line, header[i], err)
			}
			cols[i] = append(cols[i], v)
		}
	}

	tbl := series.NewTable(times)
	for i, name := range header {
		if i == timeIdx {
			continue
		}
		col := cols[i]
		if col == nil {
			col = make([]series.Value, len(times))
		}
		tbl.SetColumn(name, col)
	}
	return tbl, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func parseCell(s string) (series.Value, error) {
	switch s {
	case "", "NA", "n.a.", "N/A":
		return series.NA, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return series.NA, fmt.Errorf("non-numeric value %q", s)
	}
	return series.V(f), nil
}

// WriteCSV writes a household table, including its diagnostic columns.
// Unknown cells are written empty; diagnostic cells are "true", "false"
// or empty.
func WriteCSV(fsys fsutil.FileSystem, path string, tbl *series.Table) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("ingest: create %s: %w", path, err)
	}
	if err := Write(f, tbl); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes a household table as CSV.
func Write(w io.Writer, tbl *series.Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{TimeColumn}, tbl.Names...)
	header = append(header, tbl.FlagNames...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ingest: write header: %w", err)
	}

	rec := make([]string, len(header))
	for row := 0; row < tbl.Len(); row++ {
		rec[0] = tbl.Times[row].UTC().Format(time.RFC3339)
		k := 1
		for _, name := range tbl.Names {
			v := tbl.Cols[name][row]
			if v.Valid {
				rec[k] = strconv.FormatFloat(v.Float, 'g', -1, 64)
			} else {
				rec[k] = ""
			}
			k++
		}
		for _, name := range tbl.FlagNames {
			rec[k] = tbl.Flags[name][row].String()
			k++
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("ingest: write row %d: %w", row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Canonicalize reorders a table's value columns to the catalog order,
// keeping any extra columns behind them untouched. With addMissing set,
// catalog variables absent from the table are appended as all-unknown
// columns, each with a warning, so downstream consumers see a uniform
// shape.
func Canonicalize(tbl *series.Table, cat *catalog.Catalog, addMissing bool, context string) {
	logf := monitoring.Context(context)

	known := make(map[string]bool, len(tbl.Names))
	for _, name := range tbl.Names {
		known[name] = true
	}

	var order []string
	for _, name := range cat.Variables() {
		if known[name] {
			order = append(order, name)
		} else if addMissing && !strings.HasSuffix(name, "Diff") {
			logf("missing column %s added and filled with unknown values", name)
			tbl.SetColumn(name, make([]series.Value, tbl.Len()))
			order = append(order, name)
		}
	}
	for _, name := range tbl.Names {
		if _, inCatalog := cat.Lookup(name); !inCatalog {
			order = append(order, name)
		}
	}
	tbl.Names = order
}
