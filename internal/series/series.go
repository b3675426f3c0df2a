// Package series provides the in-memory table model for household
// meter data: nullable numeric cells, tri-state diagnostic flags and a
// timestamp-indexed table of named columns.
//
// "Unknown" is a first-class state, distinct from zero. No sentinel
// values are used anywhere in the model.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Value is a tri-state numeric cell: either a known float64 or unknown.
// The zero Value is unknown.
type Value struct {
	Float float64
	Valid bool
}

// V returns a known Value.
func V(f float64) Value { return Value{Float: f, Valid: true} }

// NA is the unknown Value.
var NA = Value{}

// IsNA reports whether the value is unknown.
func (v Value) IsNA() bool { return !v.Valid }

func (v Value) String() string {
	if !v.Valid {
		return "NA"
	}
	return fmt.Sprintf("%g", v.Float)
}

// Tri is a three-valued boolean used for diagnostic columns: a check can
// pass, fail, or be undecidable because its inputs were unknown.
type Tri int8

const (
	Unknown Tri = iota
	False
	True
)

// TriOf converts a Go bool to a Tri.
func TriOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return ""
	}
}

// Reading is a single (timestamp, value) observation for one variable.
type Reading struct {
	Time  time.Time
	Value Value
}

// Table holds one household's time-ordered data: a shared timestamp
// column plus named nullable numeric columns and tri-state flag columns.
// All column slices have the same length as Times.
type Table struct {
	Times []time.Time

	// Names preserves the insertion order of the value columns.
	Names []string
	Cols  map[string][]Value

	// FlagNames preserves the insertion order of the diagnostic columns.
	FlagNames []string
	Flags     map[string][]Tri
}

// NewTable creates an empty table over the given timestamps.
func NewTable(times []time.Time) *Table {
	return &Table{
		Times: times,
		Cols:  make(map[string][]Value),
		Flags: make(map[string][]Tri),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Times) }

// HasColumn reports whether a value column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Cols[name]
	return ok
}

// Column returns the named value column, or nil if absent.
func (t *Table) Column(name string) []Value { return t.Cols[name] }

// SetColumn adds or replaces a value column. The column length must
// match the table's row count.
func (t *Table) SetColumn(name string, vals []Value) {
	if len(vals) != len(t.Times) {
		panic(fmt.Sprintf("series: column %q has %d values for %d rows", name, len(vals), len(t.Times)))
	}
	if _, ok := t.Cols[name]; !ok {
		t.Names = append(t.Names, name)
	}
	t.Cols[name] = vals
}

// SetFlag adds or replaces a diagnostic column.
func (t *Table) SetFlag(name string, vals []Tri) {
	if len(vals) != len(t.Times) {
		panic(fmt.Sprintf("series: flag %q has %d values for %d rows", name, len(vals), len(t.Times)))
	}
	if _, ok := t.Flags[name]; !ok {
		t.FlagNames = append(t.FlagNames, name)
	}
	t.Flags[name] = vals
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable(append([]time.Time(nil), t.Times...))
	for _, name := range t.Names {
		out.SetColumn(name, append([]Value(nil), t.Cols[name]...))
	}
	for _, name := range t.FlagNames {
		out.SetFlag(name, append([]Tri(nil), t.Flags[name]...))
	}
	return out
}

// SortByTime sorts all rows ascending by timestamp. Sorting is stable so
// duplicate timestamps keep their relative order.
func (t *Table) SortByTime() {
	idx := make([]int, len(t.Times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Times[idx[a]].Before(t.Times[idx[b]])
	})
	t.Times = reorderTimes(t.Times, idx)
	for name, col := range t.Cols {
		t.Cols[name] = reorderValues(col, idx)
	}
	for name, col := range t.Flags {
		t.Flags[name] = reorderTris(col, idx)
	}
}

func reorderTimes(in []time.Time, idx []int) []time.Time {
	out := make([]time.Time, len(in))
	for i, j := range idx {
		out[i] = in[j]
	}
	return out
}

func reorderValues(in []Value, idx []int) []Value {
	out := make([]Value, len(in))
	for i, j := range idx {
		out[i] = in[j]
	}
	return out
}

func reorderTris(in []Tri, idx []int) []Tri {
	out := make([]Tri, len(in))
	for i, j := range idx {
		out[i] = in[j]
	}
	return out
}

// ValidateIndex checks the structural invariants required before
// reconciliation: timestamps must be strictly ascending (sorted and
// unique).
func (t *Table) ValidateIndex() error {
	for i := 1; i < len(t.Times); i++ {
		if !t.Times[i].After(t.Times[i-1]) {
			return fmt.Errorf("series: timestamps not strictly ascending at row %d (%s then %s)",
				i, t.Times[i-1].Format(time.RFC3339), t.Times[i].Format(time.RFC3339))
		}
	}
	return nil
}

// Reindex builds a new table whose rows follow the given timestamps,
// carrying over values from rows whose timestamp matches exactly. Rows
// with no match become all-unknown. When the source holds duplicate
// timestamps the first occurrence wins, which makes the operation
// deterministic.
func (t *Table) Reindex(times []time.Time) *Table {
	lookup := make(map[int64]int, len(t.Times))
	for i, ts := range t.Times {
		key := ts.UnixNano()
		if _, seen := lookup[key]; !seen {
			lookup[key] = i
		}
	}
	out := NewTable(times)
	for _, name := range t.Names {
		src := t.Cols[name]
		col := make([]Value, len(times))
		for i, ts := range times {
			if j, ok := lookup[ts.UnixNano()]; ok {
				col[i] = src[j]
			}
		}
		out.SetColumn(name, col)
	}
	for _, name := range t.FlagNames {
		src := t.Flags[name]
		col := make([]Tri, len(times))
		for i, ts := range times {
			if j, ok := lookup[ts.UnixNano()]; ok {
				col[i] = src[j]
			}
		}
		out.SetFlag(name, col)
	}
	return out
}

// roundTo10 rounds to 10 decimal places, absorbing float accumulation
// noise in meter counters before sign checks.
func roundTo10(f float64) float64 {
	return math.Round(f*1e10) / 1e10
}

// Deltas derives the per-interval consumption column from a cumulative
// column. By convention the first row's delta is exactly 0. For later
// rows the delta is the difference against the last known value, so
// unknown stretches are skipped rather than poisoning the next delta;
// rows whose own value is unknown get an unknown delta.
func Deltas(col []Value) []Value {
	out := make([]Value, len(col))
	if len(col) == 0 {
		return out
	}
	out[0] = V(0)
	prev := NA
	if col[0].Valid {
		prev = col[0]
	}
	for i := 1; i < len(col); i++ {
		if !col[i].Valid {
			out[i] = NA
			continue
		}
		if !prev.Valid {
			// First known value of the series: nothing to diff against.
			out[i] = NA
		} else {
			out[i] = V(roundTo10(col[i].Float - prev.Float))
		}
		prev = col[i]
	}
	return out
}

// PresentReadings extracts the (time, value) pairs whose value is known,
// preserving order.
func PresentReadings(times []time.Time, col []Value) []Reading {
	out := make([]Reading, 0, len(col))
	for i, v := range col {
		if v.Valid {
			out = append(out, Reading{Time: times[i], Value: v})
		}
	}
	return out
}
