package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEnergy(t *testing.T) {
	assert.True(t, IsEnergy(KWH))
	assert.True(t, IsEnergy(MJ))
	assert.True(t, IsEnergy(GJ))
	assert.False(t, IsEnergy(M3))
	assert.False(t, IsEnergy("W"))
}

func TestIsVolume(t *testing.T) {
	assert.True(t, IsVolume(M3))
	assert.True(t, IsVolume(L))
	assert.False(t, IsVolume(KWH))
}

func TestConvertEnergy(t *testing.T) {
	assert.InDelta(t, 3.6, ConvertEnergy(1, MJ), 1e-12)
	assert.InDelta(t, 0.0036, ConvertEnergy(1, GJ), 1e-12)
	assert.Equal(t, 5.0, ConvertEnergy(5, KWH))
	// Unknown target keeps the kWh value.
	assert.Equal(t, 5.0, ConvertEnergy(5, "furlongs"))
}

func TestConvertVolume(t *testing.T) {
	assert.Equal(t, 1000.0, ConvertVolume(1, L))
	assert.Equal(t, 2.5, ConvertVolume(2.5, M3))
}
