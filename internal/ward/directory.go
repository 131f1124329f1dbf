// Package ward answers which administrative zone contains a point.
package ward

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"freewalk/internal/geo"
	"freewalk/internal/ward/models"
	id "freewalk/pkg/domain"
)

// Source lists the persisted wards.
type Source interface {
	ListWards(ctx context.Context) ([]models.Ward, error)
}

// Directory is a read-mostly, in-memory registry of ward polygons. Lookups run
// against an immutable snapshot; Reload swaps in a new one.
type Directory struct {
	source   Source
	logger   *slog.Logger
	snapshot atomic.Pointer[[]models.Ward]
	group    singleflight.Group
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the directory logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

// NewDirectory creates an empty directory backed by source.
func NewDirectory(source Source, opts ...Option) *Directory {
	d := &Directory{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	empty := []models.Ward{}
	d.snapshot.Store(&empty)
	return d
}

// NewStaticDirectory creates a directory over a fixed ward set.
func NewStaticDirectory(wards []models.Ward) *Directory {
	d := NewDirectory(nil)
	d.set(wards)
	return d
}

// Reload fetches wards from the source. Concurrent callers share one fetch.
func (d *Directory) Reload(ctx context.Context) error {
	if d.source == nil {
		return nil
	}
	_, err, _ := d.group.Do("reload", func() (any, error) {
		wards, err := d.source.ListWards(ctx)
		if err != nil {
			return nil, fmt.Errorf("list wards: %w", err)
		}
		d.set(wards)
		d.logger.InfoContext(ctx, "ward directory loaded", "wards", len(wards))
		return nil, nil
	})
	return err
}

// Len returns the number of wards in the current snapshot.
func (d *Directory) Len() int {
	return len(*d.snapshot.Load())
}

// ContainingWard returns the ward containing pt. Overlaps resolve to the
// lowest ward id; ok is false when no ward contains the point.
func (d *Directory) ContainingWard(pt geo.Point) (id.WardID, bool) {
	for _, w := range *d.snapshot.Load() {
		if w.Contains(pt) {
			return w.ID, true
		}
	}
	return 0, false
}

func (d *Directory) set(wards []models.Ward) {
	sorted := slices.Clone(wards)
	slices.SortFunc(sorted, func(a, b models.Ward) int {
		return cmp.Compare(a.ID, b.ID)
	})
	d.snapshot.Store(&sorted)
}
