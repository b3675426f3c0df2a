// Package store persists household tables and their diagnostics in a
// sqlite database and answers the fleet-level queries built on top of
// the per-household pass/fail findings.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/etdata/meterflow/internal/series"
)

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path and
// ensures the schema exists. Versioned schema changes go through the
// migrate wrapper; the inline schema keeps a fresh database usable
// without the migrations directory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS households (
			household_id      TEXT PRIMARY KEY,
			supplier          TEXT NOT NULL,
			supplier_ref      TEXT NOT NULL,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(supplier, supplier_ref)
		);
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS readings (
			household_id      TEXT NOT NULL,
			reading_date      BIGINT NOT NULL,
			variable          TEXT NOT NULL,
			value             DOUBLE,
			PRIMARY KEY(household_id, reading_date, variable),
			FOREIGN KEY(household_id) REFERENCES households(household_id)
		);
		CREATE TABLE IF NOT EXISTS diagnostics (
			run_id            TEXT NOT NULL,
			household_id      TEXT NOT NULL,
			check_name        TEXT NOT NULL,
			result            TEXT NOT NULL CHECK (result IN ('true','false','unknown')),
			detail            TEXT,
			PRIMARY KEY(run_id, household_id, check_name),
			FOREIGN KEY(run_id) REFERENCES runs(run_id),
			FOREIGN KEY(household_id) REFERENCES households(household_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db}, nil
}

// Run identifies one processing run.
type Run struct {
	ID        string
	StartedAt time.Time
}

// StartRun records a new processing run.
func (s *Store) StartRun() (Run, error) {
	run := Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	_, err := s.Exec(`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`, run.ID, run.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// UpsertHousehold returns the id of the household registered by a
// supplier under the supplier's own reference, creating it on first
// sight.
func (s *Store) UpsertHousehold(supplier, supplierRef string) (string, error) {
	var id string
	err := s.QueryRow(
		`SELECT household_id FROM households WHERE supplier = ? AND supplier_ref = ?`,
		supplier, supplierRef).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up household: %w", err)
	}
	id = uuid.NewString()
	_, err = s.Exec(
		`INSERT INTO households (household_id, supplier, supplier_ref) VALUES (?, ?, ?)`,
		id, supplier, supplierRef)
	if err != nil {
		return "", fmt.Errorf("failed to register household: %w", err)
	}
	return id, nil
}

// FindHousehold looks up an existing household id without creating one.
func (s *Store) FindHousehold(supplier, supplierRef string) (string, error) {
	var id string
	err := s.QueryRow(
		`SELECT household_id FROM households WHERE supplier = ? AND supplier_ref = ?`,
		supplier, supplierRef).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("household %s/%s not found", supplier, supplierRef)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up household: %w", err)
	}
	return id, nil
}

// SaveTable replaces a household's stored readings with the table's
// value columns, in long format. Unknown cells are stored as NULL so
// the table shape round-trips.
func (s *Store) SaveTable(householdID string, tbl *series.Table) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM readings WHERE household_id = ?`, householdID); err != nil {
		return fmt.Errorf("failed to clear readings: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO readings (household_id, reading_date, variable, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, name := range tbl.Names {
		col := tbl.Cols[name]
		for i, ts := range tbl.Times {
			var val any
			if col[i].Valid {
				val = col[i].Float
			}
			if _, err := stmt.Exec(householdID, ts.Unix(), name, val); err != nil {
				return fmt.Errorf("failed to insert reading: %w", err)
			}
		}
	}
	return tx.Commit()
}

// LoadTable reconstructs a household's table from its stored readings,
// rows sorted ascending by timestamp.
func (s *Store) LoadTable(householdID string) (*series.Table, error) {
	rows, err := s.Query(
		`SELECT reading_date, variable, value FROM readings
		 WHERE household_id = ? ORDER BY reading_date, variable`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	rowOf := make(map[int64]int)
	type cell struct {
		row  int
		name string
		val  series.Value
	}
	var cells []cell
	var names []string
	seen := make(map[string]bool)

	for rows.Next() {
		var ts int64
		var name string
		var val sql.NullFloat64
		if err := rows.Scan(&ts, &name, &val); err != nil {
			return nil, err
		}
		row, ok := rowOf[ts]
		if !ok {
			row = len(times)
			rowOf[ts] = row
			times = append(times, time.Unix(ts, 0).UTC())
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		v := series.NA
		if val.Valid {
			v = series.V(val.Float64)
		}
		cells = append(cells, cell{row: row, name: name, val: v})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tbl := series.NewTable(times)
	for _, name := range names {
		tbl.SetColumn(name, make([]series.Value, len(times)))
	}
	for _, c := range cells {
		tbl.Cols[c.name][c.row] = c.val
	}
	return tbl, nil
}

// Finding is one named tri-state check result for a household.
type Finding struct {
	Name   string
	Result series.Tri
	Detail string
}

// SaveFindings records a run's per-household diagnostics.
func (s *Store) SaveFindings(runID, householdID string, findings []Finding) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO diagnostics (run_id, household_id, check_name, result, detail)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range findings {
		result := "unknown"
		switch f.Result {
		case series.True:
			result = "true"
		case series.False:
			result = "false"
		}
		if _, err := stmt.Exec(runID, householdID, f.Name, result, f.Detail); err != nil {
			return fmt.Errorf("failed to insert diagnostic %q: %w", f.Name, err)
		}
	}
	return tx.Commit()
}

// CheckSummary aggregates one check's outcomes across households.
type CheckSummary struct {
	Check   string
	Passed  int
	Failed  int
	Unknown int
}

// FleetSummary aggregates the latest run's diagnostics per check across
// all households.
func (s *Store) FleetSummary(runID string) ([]CheckSummary, error) {
	rows, err := s.Query(`
		SELECT check_name,
		       SUM(CASE WHEN result = 'true' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN result = 'false' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN result = 'unknown' THEN 1 ELSE 0 END)
		FROM diagnostics
		WHERE run_id = ?
		GROUP BY check_name
		ORDER BY check_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fleet summary: %w", err)
	}
	defer rows.Close()

	var out []CheckSummary
	for rows.Next() {
		var c CheckSummary
		if err := rows.Scan(&c.Check, &c.Passed, &c.Failed, &c.Unknown); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HouseholdCoverage is the stored coverage fraction of one cumulative
// column for one household. Ref is the supplier's household reference,
// the label the fleet report uses.
type HouseholdCoverage struct {
	HouseholdID string
	Ref         string
	Column      string
	Coverage    float64
}

// CoverageByHousehold reads back the coverage details recorded as
// diagnostics for a run.
func (s *Store) CoverageByHousehold(runID string) ([]HouseholdCoverage, error) {
	rows, err := s.Query(`
		SELECT d.household_id, h.supplier_ref, d.check_name, d.detail
		FROM diagnostics d JOIN households h ON h.household_id = d.household_id
		WHERE d.run_id = ? AND d.check_name LIKE '%_coverage' AND d.detail <> ''
		ORDER BY h.supplier_ref, d.check_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage: %w", err)
	}
	defer rows.Close()

	var out []HouseholdCoverage
	for rows.Next() {
		var h HouseholdCoverage
		var detail string
		if err := rows.Scan(&h.HouseholdID, &h.Ref, &h.Column, &detail); err != nil {
			return nil, err
		}
		h.Column = strings.TrimSuffix(h.Column, "_coverage")
		if _, err := fmt.Sscanf(detail, "%f", &h.Coverage); err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
