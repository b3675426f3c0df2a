package clockalign

import (
	"fmt"
	"sort"
	"time"

	"github.com/etdata/meterflow/internal/series"
)

// Method selects how source values are mapped onto the grid.
type Method string

const (
	// Nearest snaps every row to its closest grid point (at most half a
	// period away); the tolerance plays no part.
	Nearest Method = "nearest"
	// Interpolate keeps raw timestamps and fills each grid point from
	// the source rows within tolerance of it: the nearest row for
	// ordinary columns, linear interpolation over the monotonic readings
	// for cumulative columns.
	Interpolate Method = "interpolate"
)

// ParseMethod validates a method flag value.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Nearest, Interpolate:
		return Method(s), nil
	}
	return "", fmt.Errorf("clockalign: unknown method %q, use %q or %q", s, Nearest, Interpolate)
}

// Align reindexes a table onto the clock's grid. Grid points with no
// source reading within tolerance stay unknown; a fabricated number is
// never produced. Cumulative columns must already be monotonic (the
// reconciler's job): encountering non-monotonic cumulative readings at
// interpolation time means the series is corrupt and is an error, as is
// any pair of source rows snapping onto the same grid point.
func Align(tbl *series.Table, clock Clock, tolerance time.Duration, method Method, cumulative map[string]bool) (*series.Table, error) {
	if tbl.Len() == 0 {
		return series.NewTable(nil), nil
	}
	p := int64(clock.Period / time.Second)
	if p <= 0 {
		return nil, fmt.Errorf("clockalign: non-positive period %s", clock.Period)
	}
	tbl.SortByTime()
	refSec := clock.Reference.Unix()

	// Snap each source row. Under Nearest the timestamp moves to its
	// closest grid point; under Interpolate it stays where it is and the
	// grid walk below does the work.
	aligned := make([]time.Time, tbl.Len())
	for i, t := range tbl.Times {
		sec := t.Unix()
		switch method {
		case Nearest:
			off := floorMod(sec-refSec, p)
			snapped := sec - off
			if off > p/2 {
				snapped += p
			}
			aligned[i] = time.Unix(snapped, 0).UTC()
		case Interpolate:
			aligned[i] = time.Unix(sec, 0).UTC()
		default:
			return nil, fmt.Errorf("clockalign: unknown method %q", method)
		}
	}
	for i := 1; i < len(aligned); i++ {
		if aligned[i].Equal(aligned[i-1]) {
			return nil, fmt.Errorf("clockalign: multiple records for the same aligned timestamp %s",
				aligned[i].Format(time.RFC3339))
		}
	}

	// Target grid spans the observed duration plus one period.
	span := tbl.Times[tbl.Len()-1].Sub(tbl.Times[0])
	end := clock.Reference.Add(span).Add(clock.Period)
	var grid []time.Time
	for ts := clock.Reference; !ts.After(end); ts = ts.Add(clock.Period) {
		grid = append(grid, ts)
	}

	out := series.NewTable(grid)
	for _, name := range tbl.Names {
		src := tbl.Column(name)
		var col []series.Value
		if method == Interpolate && cumulative[name] {
			interp, err := interpolateCumulative(aligned, src, grid, tolerance, name)
			if err != nil {
				return nil, err
			}
			col = interp
		} else {
			col = nearestWithin(aligned, src, grid, tolerance)
		}
		out.SetColumn(name, col)
	}

	return dropAllUnknownRows(out), nil
}

// nearestWithin picks, per grid point, the value of the closest source
// row within tolerance. The boundary is inclusive: a reading exactly at
// tolerance distance still belongs to the grid point. Equidistant
// neighbors resolve to the earlier row.
func nearestWithin(times []time.Time, col []series.Value, grid []time.Time, tolerance time.Duration) []series.Value {
	out := make([]series.Value, len(grid))
	for i, g := range grid {
		j := sort.Search(len(times), func(k int) bool { return !times[k].Before(g) })
		best := -1
		var bestDist time.Duration
		for _, k := range []int{j - 1, j} {
			if k < 0 || k >= len(times) {
				continue
			}
			d := times[k].Sub(g)
			if d < 0 {
				d = -d
			}
			if d <= tolerance && (best < 0 || d < bestDist) {
				best, bestDist = k, d
			}
		}
		if best >= 0 {
			out[i] = col[best]
		}
	}
	return out
}

// interpolateCumulative maps a cumulative column onto the grid using
// the known readings within tolerance on either side of each grid
// point: two or more readings interpolate linearly, a single reading is
// used as-is, none stays unknown. The readings must be monotonically
// non-decreasing; anything else is corruption the reconciler should
// have removed.
func interpolateCumulative(times []time.Time, col []series.Value, grid []time.Time, tolerance time.Duration, name string) ([]series.Value, error) {
	// Present-only view, in timestamp order.
	var pts []series.Reading
	for i, v := range col {
		if v.Valid {
			pts = append(pts, series.Reading{Time: times[i], Value: v})
		}
	}

	out := make([]series.Value, len(grid))
	for i, g := range grid {
		lo := g.Add(-tolerance)
		hi := g.Add(tolerance)
		from := sort.Search(len(pts), func(k int) bool { return !pts[k].Time.Before(lo) })
		to := from
		for to < len(pts) && !pts[to].Time.After(hi) {
			to++
		}
		nearby := pts[from:to]

		switch {
		case len(nearby) >= 2:
			for k := 1; k < len(nearby); k++ {
				if nearby[k].Value.Float < nearby[k-1].Value.Float {
					return nil, fmt.Errorf("clockalign: decreasing cumulative values in %q near %s",
						name, g.Format(time.RFC3339))
				}
			}
			out[i] = series.V(lerp(nearby, g))
		case len(nearby) == 1:
			out[i] = nearby[0].Value
		}
	}
	return out, nil
}

// lerp interpolates the value at t from monotonic readings, clamping at
// the ends of the window.
func lerp(pts []series.Reading, t time.Time) float64 {
	if !t.After(pts[0].Time) {
		return pts[0].Value.Float
	}
	last := pts[len(pts)-1]
	if !t.Before(last.Time) {
		return last.Value.Float
	}
	for k := 1; k < len(pts); k++ {
		if t.Before(pts[k].Time) || t.Equal(pts[k].Time) {
			a, b := pts[k-1], pts[k]
			dt := b.Time.Sub(a.Time).Seconds()
			if dt == 0 {
				return a.Value.Float
			}
			frac := t.Sub(a.Time).Seconds() / dt
			return a.Value.Float + frac*(b.Value.Float-a.Value.Float)
		}
	}
	return last.Value.Float
}

// dropAllUnknownRows removes grid rows where every column is unknown,
// mirroring how an aligned table only keeps slots some device actually
// covered.
func dropAllUnknownRows(tbl *series.Table) *series.Table {
	keep := make([]int, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		any := false
		for _, name := range tbl.Names {
			if tbl.Cols[name][i].Valid {
				any = true
				break
			}
		}
		if any {
			keep = append(keep, i)
		}
	}
	if len(keep) == tbl.Len() {
		return tbl
	}
	times := make([]time.Time, len(keep))
	for i, j := range keep {
		times[i] = tbl.Times[j]
	}
	out := series.NewTable(times)
	for _, name := range tbl.Names {
		src := tbl.Cols[name]
		col := make([]series.Value, len(keep))
		for i, j := range keep {
			col[i] = src[j]
		}
		out.SetColumn(name, col)
	}
	return out
}
