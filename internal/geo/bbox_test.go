package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBox(t *testing.T) {
	t.Run("sized from meters per degree", func(t *testing.T) {
		box := BoundingBox(Point{Lat: 0, Lon: 0}, 111.111)
		assert.InDelta(t, -0.001, box.MinLat, 1e-9)
		assert.InDelta(t, 0.001, box.MaxLat, 1e-9)
		assert.InDelta(t, 0.001, box.MaxLon, 1e-9)
	})

	t.Run("longitude widens with latitude", func(t *testing.T) {
		eq := BoundingBox(Point{Lat: 0, Lon: 0}, 5)
		north := BoundingBox(Point{Lat: 60, Lon: 0}, 5)
		assert.InDelta(t, 2*(eq.MaxLon-eq.MinLon), north.MaxLon-north.MinLon, 1e-9)
	})

	t.Run("pole does not divide by zero", func(t *testing.T) {
		box := BoundingBox(Point{Lat: 90, Lon: 0}, 5)
		assert.Equal(t, 90.0, box.MaxLat)
		assert.LessOrEqual(t, box.MaxLon, 180.0)
	})

	t.Run("contains every point within radius", func(t *testing.T) {
		center := Point{Lat: 37.7749, Lon: -122.4194}
		box := BoundingBox(center, 5)
		for _, bearing := range []float64{0, 30, 90, 135, 200, 315} {
			assert.True(t, box.Contains(Destination(center, bearing, 4.99)), "bearing %v", bearing)
		}
		assert.False(t, box.Contains(Destination(center, 0, 6)))
	})
}

func TestBBoxLonRanges(t *testing.T) {
	box := BoundingBox(Point{Lat: 0, Lon: 179.99999}, 5)
	ranges := box.LonRanges()
	require.Len(t, ranges, 2)
	assert.True(t, box.Contains(Point{Lat: 0, Lon: -179.99999}))
	assert.False(t, box.Contains(Point{Lat: 0, Lon: 0}))

	plain := BoundingBox(Point{Lat: 0, Lon: 10}, 5)
	assert.Len(t, plain.LonRanges(), 1)
}
