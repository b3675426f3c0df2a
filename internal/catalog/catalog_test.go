package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etdata/meterflow/internal/series"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NotNil(t, c)

	gas, ok := c.Lookup("GasDelivered")
	require.True(t, ok)
	assert.Equal(t, Cumulative, gas.Kind)
	assert.Equal(t, "m3", gas.Unit)
	assert.Equal(t, series.V(0), gas.Min)

	room, ok := c.Lookup("TempRoom")
	require.True(t, ok)
	assert.Equal(t, Instantaneous, room.Kind)

	power, ok := c.Lookup("ElectricityPower")
	require.True(t, ok)
	assert.Equal(t, Momentary, power.Kind)

	// The delta bound for heat has no upper limit.
	heat, ok := c.Lookup("HeatProducedTotalDiff")
	require.True(t, ok)
	assert.True(t, heat.Max.IsNA())
}

func TestCumulativeColumnsExcludeDeltas(t *testing.T) {
	c := Default()
	cols := c.CumulativeColumns()
	require.NotEmpty(t, cols)
	assert.Contains(t, cols, "GasDelivered")
	assert.Contains(t, cols, "ElectricityDeliveredHigh")
	for _, name := range cols {
		assert.False(t, strings.HasSuffix(name, "Diff"), "derived column %q in cumulative list", name)
	}
}

func TestLoad(t *testing.T) {
	t.Run("parses bounds and order", func(t *testing.T) {
		c, err := Load(strings.NewReader(
			"Variable,Kind,Unit,Min,Max\n" +
				"A,cumulative,kWh,0,100\n" +
				"B,instantaneous,C,n.a.,45\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, c.Variables())

		b, ok := c.Lookup("B")
		require.True(t, ok)
		assert.True(t, b.Min.IsNA())
		assert.Equal(t, series.V(45), b.Max)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := Load(strings.NewReader(
			"Variable,Kind,Unit,Min,Max\nA,weird,kWh,0,1\n"))
		assert.ErrorContains(t, err, "unknown kind")
	})

	t.Run("rejects duplicate variable", func(t *testing.T) {
		_, err := Load(strings.NewReader(
			"Variable,Kind,Unit,Min,Max\nA,cumulative,kWh,0,1\nA,cumulative,kWh,0,1\n"))
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("rejects missing header column", func(t *testing.T) {
		_, err := Load(strings.NewReader("Variable,Kind,Unit,Min\n"))
		assert.ErrorContains(t, err, "missing column")
	})
}

func TestInRange(t *testing.T) {
	bounded := Threshold{Min: series.V(0), Max: series.V(45)}
	assert.Equal(t, series.True, bounded.InRange(series.V(20)))
	assert.Equal(t, series.True, bounded.InRange(series.V(0)))
	assert.Equal(t, series.True, bounded.InRange(series.V(45)))
	assert.Equal(t, series.False, bounded.InRange(series.V(-1)))
	assert.Equal(t, series.False, bounded.InRange(series.V(46)))
	assert.Equal(t, series.Unknown, bounded.InRange(series.NA))

	open := Threshold{Min: series.V(0)}
	assert.Equal(t, series.True, open.InRange(series.V(1e12)))
}
