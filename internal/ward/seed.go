package ward

import (
	"context"
	"fmt"
	"os"

	"freewalk/internal/ward/models"
	id "freewalk/pkg/domain"
)

// Writer upserts wards by name.
type Writer interface {
	Upsert(ctx context.Context, w models.Ward) (id.WardID, error)
}

// SeedFromFile upserts every ward in a GeoJSON file and returns how many were written.
func SeedFromFile(ctx context.Context, path string, w Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open ward geojson: %w", err)
	}
	defer f.Close()

	wards, err := ParseGeoJSON(f)
	if err != nil {
		return 0, err
	}
	for _, ward := range wards {
		if _, err := w.Upsert(ctx, ward); err != nil {
			return 0, fmt.Errorf("seed ward %q: %w", ward.Name, err)
		}
	}
	return len(wards), nil
}
