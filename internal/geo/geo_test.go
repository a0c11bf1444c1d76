package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceIsZeroForIdenticalPoints(t *testing.T) {
	assert.Equal(t, 0.0, Distance(37.3896, -5.9842, 37.3896, -5.9842))
	assert.Equal(t, 0.0, Distance(0, 0, 0, 0))
}

func TestDistanceIsSymmetric(t *testing.T) {
	pairs := [][4]float64{
		{37.3896, -5.9842, 37.3885, -5.9850},
		{40.4168, -3.7038, 37.3891, -5.9845},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{89.9, 179.9, -89.9, -179.9},
	}
	for _, p := range pairs {
		d1 := Distance(p[0], p[1], p[2], p[3])
		d2 := Distance(p[2], p[3], p[0], p[1])
		assert.InDelta(t, d1, d2, 1e-9, "distance should be symmetric for %v", p)
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// Two stops roughly 140m apart in central Seville.
	d := Distance(37.3896, -5.9842, 37.3885, -5.9850)
	assert.InDelta(t, 140, d, 15)

	// Seville to Madrid is about 390km as the crow flies.
	d = Distance(37.3891, -5.9845, 40.4168, -3.7038)
	assert.InDelta(t, 390000, d, 5000)
}

func TestBearingCardinalDirections(t *testing.T) {
	// Due north
	assert.InDelta(t, 0, Bearing(37.0, -5.9842, 37.5, -5.9842), 0.01)
	// Due south
	assert.InDelta(t, 180, Bearing(37.5, -5.9842, 37.0, -5.9842), 0.01)
	// Due east (at the equator the bearing is exact)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 0.01)
	// Due west
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 0.01)
}

func TestBearingIsNormalized(t *testing.T) {
	for _, p := range [][4]float64{
		{37.3896, -5.9842, 37.3885, -5.9850},
		{37.3885, -5.9850, 37.3896, -5.9842},
		{0, 0, -1, -1},
	} {
		b := Bearing(p[0], p[1], p[2], p[3])
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)
	}
}

func TestBearingDiffWraparound(t *testing.T) {
	assert.Equal(t, 20.0, BearingDiff(350, 10))
	assert.Equal(t, 20.0, BearingDiff(10, 350))
	assert.Equal(t, 180.0, BearingDiff(0, 180))
	assert.Equal(t, 0.0, BearingDiff(90, 90))
	assert.Equal(t, 2.0, BearingDiff(359, 1))
}
