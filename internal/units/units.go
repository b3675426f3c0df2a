// Package units provides shared constants and conversions for the
// measurement units used by the meter catalog and the report layer.
package units

// Unit constants
const (
	KWH = "kWh"
	MJ  = "MJ"
	GJ  = "GJ"
	M3  = "m3"
	L   = "L"
)

// ValidEnergyUnits contains all valid energy unit values.
var ValidEnergyUnits = []string{KWH, MJ, GJ}

// ValidVolumeUnits contains all valid volume unit values.
var ValidVolumeUnits = []string{M3, L}

// IsEnergy checks if the given unit is a known energy unit.
func IsEnergy(unit string) bool {
	for _, u := range ValidEnergyUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// IsVolume checks if the given unit is a known volume unit.
func IsVolume(unit string) bool {
	for _, u := range ValidVolumeUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ConvertEnergy converts an energy value from kWh to the target units.
// Catalog energy counters are stored in kWh.
func ConvertEnergy(valueKWH float64, targetUnits string) float64 {
	switch targetUnits {
	case MJ:
		return valueKWH * 3.6 // kWh to MJ
	case GJ:
		return valueKWH * 0.0036 // kWh to GJ
	case KWH:
		return valueKWH
	default:
		return valueKWH // default to kWh if unknown unit
	}
}

// ConvertVolume converts a volume value from cubic meters to the target
// units. Catalog volume counters are stored in m3.
func ConvertVolume(valueM3 float64, targetUnits string) float64 {
	switch targetUnits {
	case L:
		return valueM3 * 1000 // m3 to litres
	case M3:
		return valueM3
	default:
		return valueM3
	}
}
