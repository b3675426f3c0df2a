// Package catalog loads the variable catalog: for every known meter
// variable its kind (cumulative, instantaneous or momentary), unit and
// numeric bounds. The catalog is loaded once and read-only afterwards,
// so it may be shared freely across household-processing workers.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/etdata/meterflow/internal/series"
)

// Kind classifies how a variable behaves over time.
type Kind string

const (
	// Cumulative variables are monotonically non-decreasing meter
	// counters (energy, gas, water totals).
	Cumulative Kind = "cumulative"
	// Instantaneous variables are point-in-time measurements sampled
	// every interval (temperature, CO2).
	Instantaneous Kind = "instantaneous"
	// Momentary variables are point-in-time power-style readings with
	// no monotonicity constraint (current power draw).
	Momentary Kind = "momentary"
)

// Threshold describes one catalog entry. Min and Max are unknown when
// the catalog declares no bound ("n.a.").
type Threshold struct {
	Variable string
	Kind     Kind
	Unit     string
	Min      series.Value
	Max      series.Value
}

// Catalog is a read-only mapping from variable name to its declared
// kind and bounds. The declaration order doubles as the canonical
// column order for output tables.
type Catalog struct {
	order  []string
	byName map[string]Threshold
}

//go:embed data/thresholds.csv
var defaultThresholds []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(bytes.NewReader(defaultThresholds))
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded thresholds are invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load parses a thresholds CSV with header
// Variable,Kind,Unit,Min,Max. Bounds of "n.a." or empty are treated as
// unbounded.
func Load(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"Variable", "Kind", "Unit", "Min", "Max"} {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("catalog: missing column %q in thresholds header", want)
		}
	}

	c := &Catalog{byName: make(map[string]Threshold)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", line, err)
		}
		t := Threshold{
			Variable: rec[idx["Variable"]],
			Kind:     Kind(rec[idx["Kind"]]),
			Unit:     rec[idx["Unit"]],
		}
		switch t.Kind {
		case Cumulative, Instantaneous, Momentary:
		default:
			return nil, fmt.Errorf("catalog: line %d: unknown kind %q for %q", line, t.Kind, t.Variable)
		}
		if t.Min, err = parseBound(rec[idx["Min"]]); err != nil {
			return nil, fmt.Errorf("catalog: line %d: min for %q: %w", line, t.Variable, err)
		}
		if t.Max, err = parseBound(rec[idx["Max"]]); err != nil {
			return nil, fmt.Errorf("catalog: line %d: max for %q: %w", line, t.Variable, err)
		}
		if _, dup := c.byName[t.Variable]; dup {
			return nil, fmt.Errorf("catalog: line %d: duplicate variable %q", line, t.Variable)
		}
		c.byName[t.Variable] = t
		c.order = append(c.order, t.Variable)
	}
	return c, nil
}

func parseBound(s string) (series.Value, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "n.a.", "na", "n/a":
		return series.NA, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return series.NA, err
	}
	return series.V(f), nil
}

// Lookup returns the threshold entry for a variable.
func (c *Catalog) Lookup(variable string) (Threshold, bool) {
	t, ok := c.byName[variable]
	return t, ok
}

// Variables returns all catalog variables in declaration order.
func (c *Catalog) Variables() []string {
	return append([]string(nil), c.order...)
}

// CumulativeColumns returns the cumulative variables in declaration
// order, excluding derived delta columns.
func (c *Catalog) CumulativeColumns() []string {
	var out []string
	for _, name := range c.order {
		if c.byName[name].Kind == Cumulative && !strings.HasSuffix(name, "Diff") {
			out = append(out, name)
		}
	}
	return out
}

// InRange evaluates a value against the entry's bounds with tri-state
// semantics: unknown values yield Unknown, and missing bounds do not
// constrain.
func (t Threshold) InRange(v series.Value) series.Tri {
	if v.IsNA() {
		return series.Unknown
	}
	if t.Min.Valid && v.Float < t.Min.Float {
		return series.False
	}
	if t.Max.Valid && v.Float > t.Max.Float {
		return series.False
	}
	return series.True
}
