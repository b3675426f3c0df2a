package clockalign

import (
	"fmt"
	"sort"
	"time"

	"github.com/etdata/meterflow/internal/monitoring"
	"github.com/etdata/meterflow/internal/series"
)

// Merge combines several aligned tables into one by moving them onto a
// shared phase and outer-joining on the timestamp. Every input must
// have a uniform sampling period matching the target within one second;
// a mismatch is fatal because joining differently clocked grids would
// silently interleave rows. With useFirstAsReference the first table's
// start anchors the shared phase; otherwise the optimal phase over all
// start timestamps is estimated. Overlapping column names are suffixed
// with their source index. A single input is returned unchanged.
func Merge(tables []*series.Table, useFirstAsReference bool, period time.Duration) (*series.Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("clockalign: no tables to merge")
	}
	if len(tables) == 1 {
		monitoring.Logf("only one table provided; no alignment necessary")
		return tables[0], nil
	}
	p := int64(period / time.Second)

	for i, tbl := range tables {
		if tbl.Len() < 2 {
			return nil, fmt.Errorf("clockalign: table %d has too few rows to verify its period", i)
		}
		got := modalPeriod(tbl.Times)
		if d := got - p; d > 1 || d < -1 {
			return nil, fmt.Errorf("clockalign: table %d has inconsistent period: %ds instead of %ds", i, got, p)
		}
	}

	firsts := make([]time.Time, len(tables))
	for i, tbl := range tables {
		firsts[i] = tbl.Times[0]
	}

	var reference time.Time
	if useFirstAsReference {
		reference = firsts[0]
	} else {
		ref, err := EstimatePhase(firsts, p)
		if err != nil {
			return nil, err
		}
		reference = ref
	}

	refSec := reference.Unix()
	merged := series.NewTable(nil)
	taken := make(map[string]bool)
	for i, tbl := range tables {
		shift := floorMod(refSec-firsts[i].Unix(), p)
		if shift > p/2 {
			shift -= p
		}
		monitoring.Logf("table %d shifted by %ds", i, shift)

		shifted := make([]time.Time, tbl.Len())
		for j, t := range tbl.Times {
			shifted[j] = t.Add(time.Duration(shift) * time.Second)
		}
		merged = outerJoin(merged, tbl, shifted, i, taken)
	}

	monitoring.Logf("all tables merged successfully")
	return merged, nil
}

// modalPeriod returns the most frequent consecutive timestamp spacing
// in seconds, ties resolving to the smaller spacing.
func modalPeriod(times []time.Time) int64 {
	counts := make(map[int64]int)
	for i := 1; i < len(times); i++ {
		counts[times[i].Unix()-times[i-1].Unix()]++
	}
	var mode int64
	best := -1
	for d, n := range counts {
		if n > best || (n == best && d < mode) {
			mode, best = d, n
		}
	}
	return mode
}

// outerJoin merges src (with its shifted timestamps) into dst on the
// timestamp column. Column names already present in dst get a _dev<i>
// suffix.
func outerJoin(dst, src *series.Table, srcTimes []time.Time, srcIndex int, taken map[string]bool) *series.Table {
	union := make(map[int64]bool, len(dst.Times)+len(srcTimes))
	for _, t := range dst.Times {
		union[t.UnixNano()] = true
	}
	for _, t := range srcTimes {
		union[t.UnixNano()] = true
	}
	keys := make([]int64, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	times := make([]time.Time, len(keys))
	rowOf := make(map[int64]int, len(keys))
	for i, k := range keys {
		times[i] = time.Unix(0, k).UTC()
		rowOf[k] = i
	}

	out := series.NewTable(times)
	for _, name := range dst.Names {
		old := dst.Cols[name]
		col := make([]series.Value, len(times))
		for j, t := range dst.Times {
			col[rowOf[t.UnixNano()]] = old[j]
		}
		out.SetColumn(name, col)
	}
	for _, name := range src.Names {
		outName := name
		if taken[outName] {
			outName = fmt.Sprintf("%s_dev%d", name, srcIndex)
		}
		old := src.Cols[name]
		col := make([]series.Value, len(times))
		for j, t := range srcTimes {
			col[rowOf[t.UnixNano()]] = old[j]
		}
		out.SetColumn(outName, col)
		taken[outName] = true
	}
	for _, name := range dst.Names {
		taken[name] = true
	}
	return out
}
