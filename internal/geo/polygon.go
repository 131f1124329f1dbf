package geo

// Polygon is a GeoJSON-style ring set: the first ring is the outer boundary,
// the rest are holes. Coordinates are WGS84 degrees.
type Polygon struct {
	Rings [][]Point
	// BBox is minLon, minLat, maxLon, maxLat.
	BBox [4]float64
}

// NewPolygon builds a polygon and precomputes its bounding box.
func NewPolygon(rings [][]Point) Polygon {
	p := Polygon{Rings: rings}
	p.BBox = computeBBox(rings)
	return p
}

// Contains applies the even-odd rule: inside the outer ring and outside every hole.
func (p Polygon) Contains(pt Point) bool {
	if len(p.Rings) == 0 || !inBBox(pt, p.BBox) {
		return false
	}
	if !pointInRing(pt, p.Rings[0]) {
		return false
	}
	for _, hole := range p.Rings[1:] {
		if pointInRing(pt, hole) {
			return false
		}
	}
	return true
}

// MultiPolygon is a set of disjoint polygons forming one zone.
type MultiPolygon []Polygon

// Contains reports whether any member polygon contains pt.
func (m MultiPolygon) Contains(pt Point) bool {
	for _, p := range m {
		if p.Contains(pt) {
			return true
		}
	}
	return false
}

func pointInRing(pt Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := pt.Lon, pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi {
			inside = !inside
		}
	}
	return inside
}

func inBBox(pt Point, b [4]float64) bool {
	return pt.Lon >= b[0] && pt.Lon <= b[2] && pt.Lat >= b[1] && pt.Lat <= b[3]
}

func computeBBox(rings [][]Point) [4]float64 {
	b := [4]float64{180, 90, -180, -90}
	for _, r := range rings {
		for _, pt := range r {
			b[0] = min(b[0], pt.Lon)
			b[1] = min(b[1], pt.Lat)
			b[2] = max(b[2], pt.Lon)
			b[3] = max(b[3], pt.Lat)
		}
	}
	return b
}
