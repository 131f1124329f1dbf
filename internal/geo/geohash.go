package geo

import (
	"math"
	"sort"
)

const (
	// PolarLatitude is where geohash cells become too narrow to bound a lock box.
	PolarLatitude = 85.0
	// fitLatitude sizes lock cells with margin past PolarLatitude.
	fitLatitude = 86.0

	maxGeohashPrecision = 12
)

var geohashAlphabet = []byte("0123456789bcdefghjkmnpqrstuvwxyz")

// EncodeGeohash returns the base32 geohash of (lat, lon) with precision characters.
func EncodeGeohash(lat, lon float64, precision int) string {
	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0
	out := make([]byte, 0, precision)
	even := true
	bit, ch := 0, 0
	for len(out) < precision {
		if even {
			mid := (lonLo + lonHi) / 2
			if lon >= mid {
				ch |= 1 << (4 - bit)
				lonLo = mid
			} else {
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				latLo = mid
			} else {
				latHi = mid
			}
		}
		even = !even
		if bit < 4 {
			bit++
			continue
		}
		out = append(out, geohashAlphabet[ch])
		bit, ch = 0, 0
	}
	return string(out)
}

// cellSize returns the height and width in degrees of a geohash cell.
func cellSize(precision int) (latDeg, lonDeg float64) {
	bits := 5 * precision
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Exp2(float64(latBits)), 360 / math.Exp2(float64(lonBits))
}

// LockPrecision picks the finest geohash precision whose cells are at least as
// large as a lock box of half-size boxMeters anywhere below fitLatitude. Such a
// box touches at most four cells, all of which are cells of its corners.
func LockPrecision(boxMeters float64) int {
	span := BoundingBox(Point{Lat: fitLatitude}, boxMeters)
	needLat := span.MaxLat - span.MinLat
	needLon := span.MaxLon - span.MinLon
	for p := maxGeohashPrecision; p > 1; p-- {
		latDeg, lonDeg := cellSize(p)
		if latDeg >= needLat && lonDeg >= needLon {
			return p
		}
	}
	return 1
}

// NeighborhoodPrecision is the lock precision for matching within radiusMeters.
func NeighborhoodPrecision(radiusMeters float64) int {
	return LockPrecision(2 * radiusMeters)
}

// TouchesPolar reports whether the box reaches PolarLatitude in either hemisphere.
func (b BBox) TouchesPolar() bool {
	return b.MaxLat >= PolarLatitude || b.MinLat <= -PolarLatitude
}

// CornerCells returns the sorted distinct geohashes of the box corners.
// Callers must only use it for boxes centred below fitLatitude.
func (b BBox) CornerCells(precision int) []string {
	corners := []Point{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
	}
	seen := make(map[string]struct{}, len(corners))
	cells := make([]string, 0, len(corners))
	for _, c := range corners {
		h := EncodeGeohash(c.Lat, normalizeLon(c.Lon), precision)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		cells = append(cells, h)
	}
	sort.Strings(cells)
	return cells
}

// Neighborhood describes the lock buckets guarding a spatial match around a point.
type Neighborhood struct {
	Cells []string
	Polar bool
}

// LockNeighborhood returns the buckets to hold while matching within radius of
// center. precision must come from NeighborhoodPrecision(radiusMeters).
// Two centres closer than radius always share a bucket: each locks the cells
// covering a box of twice the radius, and near the poles both fall back to the
// shared polar bucket.
func LockNeighborhood(center Point, radiusMeters float64, precision int) Neighborhood {
	box := BoundingBox(center, 2*radiusMeters)
	n := Neighborhood{Polar: box.TouchesPolar()}
	if math.Abs(center.Lat) < fitLatitude {
		n.Cells = box.CornerCells(precision)
	}
	return n
}
