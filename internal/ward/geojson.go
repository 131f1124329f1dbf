package ward

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"freewalk/internal/geo"
	"freewalk/internal/ward/models"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *geometry      `json:"geometry"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseGeoJSON reads a FeatureCollection (or a single Feature) of Polygon and
// MultiPolygon geometries. The ward name comes from the "name" property, with
// "ward" and "ward_name" as fallbacks. Returned wards have no ID yet.
func ParseGeoJSON(r io.Reader) ([]models.Ward, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	var features []feature
	switch strings.ToLower(fc.Type) {
	case "featurecollection":
		features = fc.Features
	case "feature":
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode geojson feature: %w", err)
		}
		features = []feature{f}
	default:
		return nil, fmt.Errorf("unsupported geojson type %q", fc.Type)
	}

	wards := make([]models.Ward, 0, len(features))
	for i, f := range features {
		name := featureName(f.Properties)
		if name == "" {
			return nil, fmt.Errorf("feature %d: missing name property", i)
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d (%s): missing geometry", i, name)
		}
		boundary, err := DecodeGeometry(f.Geometry.Type, f.Geometry.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s): %w", i, name, err)
		}
		wards = append(wards, models.Ward{Name: name, Boundary: boundary})
	}
	return wards, nil
}

// DecodeGeometry converts GeoJSON Polygon or MultiPolygon coordinates.
func DecodeGeometry(geomType string, coords json.RawMessage) (geo.MultiPolygon, error) {
	switch strings.ToLower(geomType) {
	case "polygon":
		var rings [][][]float64
		if err := json.Unmarshal(coords, &rings); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		poly, err := toPolygon(rings)
		if err != nil {
			return nil, err
		}
		return geo.MultiPolygon{poly}, nil
	case "multipolygon":
		var parts [][][][]float64
		if err := json.Unmarshal(coords, &parts); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		mp := make(geo.MultiPolygon, 0, len(parts))
		for _, part := range parts {
			poly, err := toPolygon(part)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", geomType)
	}
}

// EncodeGeometry renders a boundary as GeoJSON MultiPolygon coordinates.
func EncodeGeometry(boundary geo.MultiPolygon) (json.RawMessage, error) {
	parts := make([][][][]float64, 0, len(boundary))
	for _, poly := range boundary {
		rings := make([][][]float64, 0, len(poly.Rings))
		for _, ring := range poly.Rings {
			coords := make([][]float64, 0, len(ring))
			for _, pt := range ring {
				coords = append(coords, []float64{pt.Lon, pt.Lat})
			}
			rings = append(rings, coords)
		}
		parts = append(parts, rings)
	}
	out, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encode boundary: %w", err)
	}
	return out, nil
}

func toPolygon(rings [][][]float64) (geo.Polygon, error) {
	if len(rings) == 0 {
		return geo.Polygon{}, fmt.Errorf("polygon has no rings")
	}
	out := make([][]geo.Point, 0, len(rings))
	for _, ring := range rings {
		if len(ring) < 3 {
			return geo.Polygon{}, fmt.Errorf("ring has %d positions, need at least 3", len(ring))
		}
		pts := make([]geo.Point, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				return geo.Polygon{}, fmt.Errorf("position has %d values, need 2", len(pos))
			}
			pts = append(pts, geo.Point{Lat: pos[1], Lon: pos[0]})
		}
		out = append(out, pts)
	}
	return geo.NewPolygon(out), nil
}

func featureName(props map[string]any) string {
	for _, key := range []string{"name", "ward", "ward_name"} {
		if v, ok := props[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
