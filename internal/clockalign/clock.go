// Package clockalign reconstructs a canonical sampling grid from
// jittered device timestamps and aligns independently clocked series
// onto it. Meters sample nominally every period but each device's clock
// has its own phase; the estimator recovers the phase that minimizes
// total jitter, the aligner snaps or interpolates values onto the grid,
// and the merger joins several aligned tables on a shared phase.
package clockalign

import (
	"errors"
	"time"

	"github.com/etdata/meterflow/internal/series"
)

// DefaultPeriodSeconds is the nominal sampling period.
const DefaultPeriodSeconds = 300

// DefaultTolerance is the default maximum distance from a grid point
// within which a reading still belongs to that point.
const DefaultTolerance = 10 * time.Second

// Clock describes a canonical, evenly spaced timestamp grid.
type Clock struct {
	Reference time.Time
	Period    time.Duration
}

// floorMod returns a mod p in [0, p), also for negative a.
func floorMod(a, p int64) int64 {
	m := a % p
	if m < 0 {
		m += p
	}
	return m
}

// EstimatePhase returns the reference point of the grid whose phase
// minimizes the total jitter of the given timestamps. For every
// candidate offset o in [0, period) the jitter of a timestamp t is
// min((t+o) mod period, period-(t+o) mod period); ties are broken by
// the smallest offset. The returned reference is the grid point at or
// before the earliest sample.
func EstimatePhase(times []time.Time, periodSeconds int64) (time.Time, error) {
	if len(times) == 0 {
		return time.Time{}, errors.New("clockalign: no timestamps to estimate a phase from")
	}
	if periodSeconds <= 0 {
		return time.Time{}, errors.New("clockalign: period must be positive")
	}

	secs := make([]int64, len(times))
	minSec := times[0].Unix()
	for i, t := range times {
		secs[i] = t.Unix()
		if secs[i] < minSec {
			minSec = secs[i]
		}
	}

	bestOffset := int64(0)
	bestJitter := int64(-1)
	for o := int64(0); o < periodSeconds; o++ {
		var total int64
		for _, s := range secs {
			m := floorMod(s+o, periodSeconds)
			if periodSeconds-m < m {
				m = periodSeconds - m
			}
			total += m
		}
		if bestJitter < 0 || total < bestJitter {
			bestJitter = total
			bestOffset = o
		}
	}

	ref := minSec - floorMod(minSec+bestOffset, periodSeconds)
	return time.Unix(ref, 0).UTC(), nil
}

// Clocks holds the per-device grids plus the fleet-wide grid estimated
// over the union of all devices' timestamps.
type Clocks struct {
	PerDevice []Clock
	Fleet     Clock
}

// EstimateClocks estimates one clock per device series and one more
// over the union of all series, for when multiple devices must share a
// grid.
func EstimateClocks(deviceTimes [][]time.Time, periodSeconds int64) (Clocks, error) {
	period := time.Duration(periodSeconds) * time.Second
	out := Clocks{PerDevice: make([]Clock, len(deviceTimes))}

	var all []time.Time
	for i, times := range deviceTimes {
		ref, err := EstimatePhase(times, periodSeconds)
		if err != nil {
			return Clocks{}, err
		}
		out.PerDevice[i] = Clock{Reference: ref, Period: period}
		all = append(all, times...)
	}
	ref, err := EstimatePhase(all, periodSeconds)
	if err != nil {
		return Clocks{}, err
	}
	out.Fleet = Clock{Reference: ref, Period: period}
	return out, nil
}

// jitterFrom returns the distance of t from the nearest grid point of
// the clock rooted at refSec with the given period.
func jitterFrom(t time.Time, refSec, periodSeconds int64) time.Duration {
	m := floorMod(t.Unix()-refSec, periodSeconds)
	if periodSeconds-m < m {
		m = periodSeconds - m
	}
	return time.Duration(m) * time.Second
}

// ToleranceCount reports, for one device, how many readings fall within
// a tolerance of the device's own grid and of the fleet grid.
type ToleranceCount struct {
	Device       int
	Tolerance    time.Duration
	WithinDevice int
	WithinFleet  int
}

// ReportToleranceImpact counts, for every device and candidate
// tolerance, how many readings would survive alignment against the
// device clock versus the fleet clock. It is a sizing aid for choosing
// the alignment tolerance.
func ReportToleranceImpact(deviceTimes [][]time.Time, clocks Clocks, tolerances []time.Duration) []ToleranceCount {
	p := int64(clocks.Fleet.Period / time.Second)
	var out []ToleranceCount
	for i, times := range deviceTimes {
		devRef := clocks.PerDevice[i].Reference.Unix()
		fleetRef := clocks.Fleet.Reference.Unix()
		for _, tol := range tolerances {
			c := ToleranceCount{Device: i, Tolerance: tol}
			for _, t := range times {
				if jitterFrom(t, devRef, p) <= tol {
					c.WithinDevice++
				}
				if jitterFrom(t, fleetRef, p) <= tol {
					c.WithinFleet++
				}
			}
			out = append(out, c)
		}
	}
	return out
}

// TimesOf extracts the timestamp sequences of a set of tables, the
// shape EstimateClocks and ReportToleranceImpact take.
func TimesOf(tables []*series.Table) [][]time.Time {
	out := make([][]time.Time, len(tables))
	for i, t := range tables {
		out[i] = t.Times
	}
	return out
}
