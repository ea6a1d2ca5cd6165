// Package units converts telemetry speeds, which are always held in metres
// per second, into display units.
package units

import (
	"slices"
	"strings"
)

const (
	MPS   = "mps"
	MPH   = "mph"
	KMPH  = "kmph"
	KPH   = "kph"
	Knots = "kts"
)

// ValidUnits lists the accepted unit names in display order.
var ValidUnits = []string{MPS, MPH, KMPH, KPH, Knots}

// per metre per second
var factors = map[string]float64{
	MPS:   1,
	MPH:   3600 / 1609.344,
	KMPH:  3.6,
	KPH:   3.6,
	Knots: 3600 / 1852.0,
}

func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// GetValidUnitsString is the list used in error messages.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts speedMPS to targetUnits. Unknown units leave the
// value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	f, ok := factors[targetUnits]
	if !ok {
		return speedMPS
	}
	return speedMPS * f
}
