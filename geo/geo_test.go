package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Riyadh pickup/delivery pair from spec scenario S1.
	d := HaversineKm(24.71, 46.67, 24.72, 46.68)
	require.Greater(t, d, 0.0)
	assert.InDelta(t, 1.45, d, 0.1)
}

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKm(24.71, 46.67, 24.71, 46.67))
}

func TestDurationMinFromDistance(t *testing.T) {
	assert.Equal(t, 30.0, DurationMinFromDistance(10))
}

func TestZoneFor(t *testing.T) {
	zones := DefaultZones()
	name := ZoneFor(Point{Lat: 24.70, Lng: 46.70}, zones)
	assert.Equal(t, "central", name)

	name = ZoneFor(Point{Lat: 0, Lng: 0}, zones)
	assert.Equal(t, "unzoned", name)
}

func TestRound4(t *testing.T) {
	got := Round4(24.710499)
	assert.True(t, math.Abs(got-24.7105) < 1e-9)
}
