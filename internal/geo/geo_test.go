package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lng  float64
		want bool
	}{
		{"urumqi", 43.792818, 87.617733, true},
		{"origin", 0, 0, true},
		{"north pole", 90, 0, true},
		{"antimeridian", 0, -180, true},
		{"lat too high", 90.5, 0, false},
		{"lng too low", 0, -180.1, false},
		{"nan", math.NaN(), 0, false},
		{"inf", 0, math.Inf(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.lat, tt.lng))
		})
	}
}

func TestPoint(t *testing.T) {
	p := Point(43.1, 87.2)

	xy, ok := p.XY()
	require.True(t, ok)
	assert.Equal(t, 87.2, xy.X)
	assert.Equal(t, 43.1, xy.Y)
}

func TestMercator(t *testing.T) {
	x, y := Mercator(0, 0)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, _ = Mercator(0, 180)
	assert.InDelta(t, 20037508.34, x, 1)
}

func TestMercator_ClampsPoles(t *testing.T) {
	_, y := Mercator(90, 0)
	assert.False(t, math.IsInf(y, 0))
	assert.InDelta(t, 20037508.34, y, 10)
}
