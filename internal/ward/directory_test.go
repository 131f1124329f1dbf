package ward

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freewalk/internal/geo"
	"freewalk/internal/ward/models"
	id "freewalk/pkg/domain"
)

func squareWard(wardID id.WardID, name string, minLon, minLat, maxLon, maxLat float64) models.Ward {
	ring := []geo.Point{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: maxLat, Lon: minLon},
		{Lat: minLat, Lon: minLon},
	}
	return models.Ward{ID: wardID, Name: name, Boundary: geo.MultiPolygon{geo.NewPolygon([][]geo.Point{ring})}}
}

type stubSource struct {
	calls atomic.Int32
	wards []models.Ward
	err   error
}

func (s *stubSource) ListWards(_ context.Context) ([]models.Ward, error) {
	s.calls.Add(1)
	return s.wards, s.err
}

func TestContainingWard(t *testing.T) {
	// inserted out of order; the overlap must still resolve to the lower id
	d := NewStaticDirectory([]models.Ward{
		squareWard(7, "east", 5, 0, 15, 10),
		squareWard(3, "west", 0, 0, 10, 10),
	})

	t.Run("single containing ward", func(t *testing.T) {
		got, ok := d.ContainingWard(geo.Point{Lat: 5, Lon: 12})
		require.True(t, ok)
		assert.Equal(t, id.WardID(7), got)
	})

	t.Run("overlap resolves to lowest id", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			got, ok := d.ContainingWard(geo.Point{Lat: 5, Lon: 7})
			require.True(t, ok)
			assert.Equal(t, id.WardID(3), got)
		}
	})

	t.Run("no ward", func(t *testing.T) {
		_, ok := d.ContainingWard(geo.Point{Lat: 50, Lon: 50})
		assert.False(t, ok)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, ok := NewDirectory(nil).ContainingWard(geo.Point{})
		assert.False(t, ok)
	})
}

func TestDirectoryReload(t *testing.T) {
	t.Run("loads wards from source", func(t *testing.T) {
		src := &stubSource{wards: []models.Ward{squareWard(1, "a", 0, 0, 1, 1)}}
		d := NewDirectory(src)
		require.NoError(t, d.Reload(context.Background()))
		assert.Equal(t, 1, d.Len())
	})

	t.Run("keeps previous snapshot on error", func(t *testing.T) {
		src := &stubSource{wards: []models.Ward{squareWard(1, "a", 0, 0, 1, 1)}}
		d := NewDirectory(src)
		require.NoError(t, d.Reload(context.Background()))

		src.err = errors.New("db down")
		assert.Error(t, d.Reload(context.Background()))
		assert.Equal(t, 1, d.Len())
	})
}
