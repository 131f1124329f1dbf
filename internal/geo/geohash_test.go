package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGeohash(t *testing.T) {
	assert.Equal(t, "ezs42", EncodeGeohash(42.6, -5.6, 5))
	assert.Equal(t, "9q8yy", EncodeGeohash(37.7749, -122.4194, 5))
	assert.Len(t, EncodeGeohash(0, 0, 12), 12)
}

func TestLockPrecision(t *testing.T) {
	p := NeighborhoodPrecision(5)
	latDeg, lonDeg := cellSize(p)
	box := BoundingBox(Point{Lat: fitLatitude}, 10)
	assert.GreaterOrEqual(t, latDeg, box.MaxLat-box.MinLat)
	assert.GreaterOrEqual(t, lonDeg, box.MaxLon-box.MinLon)

	assert.Greater(t, NeighborhoodPrecision(1), NeighborhoodPrecision(1000))
}

func TestLockNeighborhood(t *testing.T) {
	const radius = 5.0
	precision := NeighborhoodPrecision(radius)

	shares := func(a, b Neighborhood) bool {
		if a.Polar && b.Polar {
			return true
		}
		for _, x := range a.Cells {
			for _, y := range b.Cells {
				if x == y {
					return true
				}
			}
		}
		return false
	}

	t.Run("points within radius share a bucket", func(t *testing.T) {
		centers := []Point{
			{Lat: 37.7749, Lon: -122.4194},
			{Lat: 0, Lon: 0},
			{Lat: 0, Lon: 179.99999},
			{Lat: -33.8688, Lon: 151.2093},
			{Lat: 84.99995, Lon: 10},
			{Lat: 89.9, Lon: 10},
		}
		for _, c := range centers {
			nc := LockNeighborhood(c, radius, precision)
			for _, bearing := range []float64{0, 60, 90, 150, 180, 240, 270, 330} {
				other := Destination(c, bearing, radius)
				no := LockNeighborhood(other, radius, precision)
				assert.True(t, shares(nc, no), "center %+v bearing %v", c, bearing)
			}
		}
	})

	t.Run("box touches at most four cells", func(t *testing.T) {
		n := LockNeighborhood(Point{Lat: 12.34, Lon: 56.78}, radius, precision)
		require.NotEmpty(t, n.Cells)
		assert.LessOrEqual(t, len(n.Cells), 4)
		assert.False(t, n.Polar)
		assert.IsNonDecreasing(t, n.Cells)
	})

	t.Run("polar bucket near the pole", func(t *testing.T) {
		n := LockNeighborhood(Point{Lat: 89.5, Lon: 0}, radius, precision)
		assert.True(t, n.Polar)
		assert.Empty(t, n.Cells)
	})

	t.Run("far apart points do not share", func(t *testing.T) {
		a := LockNeighborhood(Point{Lat: 10, Lon: 10}, radius, precision)
		b := LockNeighborhood(Point{Lat: 11, Lon: 11}, radius, precision)
		assert.False(t, shares(a, b))
	})
}
