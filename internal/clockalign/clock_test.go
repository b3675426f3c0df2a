package clockalign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epoch(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func TestEstimatePhase(t *testing.T) {
	t.Run("recovers a jittered phase", func(t *testing.T) {
		// True grid at 60s past each 5-minute mark, readings jittered by
		// -2, 0, +2 seconds.
		times := []time.Time{epoch(58), epoch(360), epoch(662)}

		ref, err := EstimatePhase(times, 300)
		require.NoError(t, err)

		assert.Equal(t, int64(60), floorMod(ref.Unix(), 300))
		assert.False(t, ref.After(times[0]), "reference must not be after the earliest sample")
	})

	t.Run("exact grid keeps its phase", func(t *testing.T) {
		times := []time.Time{epoch(300), epoch(600), epoch(900)}

		ref, err := EstimatePhase(times, 300)
		require.NoError(t, err)

		assert.Equal(t, epoch(300), ref)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := EstimatePhase(nil, 300)
		assert.Error(t, err)
	})

	t.Run("non-positive period", func(t *testing.T) {
		_, err := EstimatePhase([]time.Time{epoch(0)}, 0)
		assert.Error(t, err)
	})
}

func TestEstimatePhaseMinimizesJitter(t *testing.T) {
	// The optimal grid beats any naive grid anchored at the first sample.
	times := []time.Time{epoch(7), epoch(298), epoch(607), epoch(898)}
	const p = 300

	ref, err := EstimatePhase(times, p)
	require.NoError(t, err)

	total := func(refSec int64) time.Duration {
		var sum time.Duration
		for _, ts := range times {
			sum += jitterFrom(ts, refSec, p)
		}
		return sum
	}
	assert.LessOrEqual(t, total(ref.Unix()), total(times[0].Unix()))
}

func TestEstimateClocks(t *testing.T) {
	deviceTimes := [][]time.Time{
		{epoch(0), epoch(300), epoch(600)},
		{epoch(60), epoch(360), epoch(660)},
	}

	clocks, err := EstimateClocks(deviceTimes, 300)
	require.NoError(t, err)
	require.Len(t, clocks.PerDevice, 2)

	assert.Equal(t, epoch(0), clocks.PerDevice[0].Reference)
	assert.Equal(t, int64(60), floorMod(clocks.PerDevice[1].Reference.Unix(), 300))
	assert.Equal(t, 300*time.Second, clocks.Fleet.Period)
}

func TestFloorMod(t *testing.T) {
	assert.Equal(t, int64(1), floorMod(1, 300))
	assert.Equal(t, int64(0), floorMod(600, 300))
	assert.Equal(t, int64(299), floorMod(-1, 300))
	assert.Equal(t, int64(291), floorMod(-9, 300))
}

func TestReportToleranceImpact(t *testing.T) {
	deviceTimes := [][]time.Time{
		{epoch(0), epoch(300), epoch(612)}, // last one 12s off its grid
	}
	clocks, err := EstimateClocks(deviceTimes, 300)
	require.NoError(t, err)

	counts := ReportToleranceImpact(deviceTimes, clocks, []time.Duration{5 * time.Second, 20 * time.Second})
	require.Len(t, counts, 2)

	assert.Equal(t, 5*time.Second, counts[0].Tolerance)
	assert.Equal(t, 3, counts[1].WithinDevice)
	assert.GreaterOrEqual(t, counts[1].WithinDevice, counts[0].WithinDevice)
}
