package geo

import "math"

const (
	// MetersPerDegreeLat is the flat approximation used to size prefilter boxes.
	MetersPerDegreeLat = 111111.0
	// minCosLat keeps the longitude span finite at the poles.
	minCosLat = 1e-6
)

// BBox is a degree box. MinLon may be below -180 or MaxLon above 180 when the
// box straddles the antimeridian; use LonRanges for index-friendly queries.
type BBox struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// BoundingBox returns the degree box of half-size radius meters around center.
// It is a cheap superset filter; callers still apply DistanceMeters.
func BoundingBox(center Point, radiusMeters float64) BBox {
	dLat := radiusMeters / MetersPerDegreeLat
	dLon := radiusMeters / (MetersPerDegreeLat * math.Max(minCosLat, math.Cos(toRadians(center.Lat))))
	if dLon > 180 {
		dLon = 180
	}
	return BBox{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLon: center.Lon - dLon,
		MaxLon: center.Lon + dLon,
	}
}

// LonRanges splits the longitude span into one or two ranges inside [-180, 180].
func (b BBox) LonRanges() [][2]float64 {
	switch {
	case b.MaxLon-b.MinLon >= 360:
		return [][2]float64{{-180, 180}}
	case b.MinLon < -180:
		return [][2]float64{{b.MinLon + 360, 180}, {-180, b.MaxLon}}
	case b.MaxLon > 180:
		return [][2]float64{{b.MinLon, 180}, {-180, b.MaxLon - 360}}
	default:
		return [][2]float64{{b.MinLon, b.MaxLon}}
	}
}

// Contains reports whether p falls inside the box, honouring antimeridian wrap.
func (b BBox) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	for _, r := range b.LonRanges() {
		if p.Lon >= r[0] && p.Lon <= r[1] {
			return true
		}
	}
	return false
}
