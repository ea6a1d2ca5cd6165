package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		speed float64
		unit  string
		want  float64
	}{
		{10, MPH, 22.3694},
		{10, KMPH, 36},
		{10, KPH, 36},
		{10, MPS, 10},
		{10, Knots, 19.4384},
		{22, Knots, 42.7646},
		{-3, KMPH, -10.8},
		{0, MPH, 0},
		{10, "furlongs", 10},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ConvertSpeed(tt.speed, tt.unit), 1e-3, "%v %s", tt.speed, tt.unit)
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		assert.True(t, IsValid(u), u)
	}
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("MPS"))
	assert.False(t, IsValid("knots"))
}

func TestGetValidUnitsString(t *testing.T) {
	assert.Equal(t, "mps, mph, kmph, kph, kts", GetValidUnitsString())
}
