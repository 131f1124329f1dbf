package models

import (
	"freewalk/internal/geo"
	id "freewalk/pkg/domain"
)

// Ward is a named administrative zone. Ward rows are reference data: they are
// seeded out of band and only read while resolving reports.
type Ward struct {
	ID       id.WardID
	Name     string
	Boundary geo.MultiPolygon
}

// Contains reports whether the ward boundary contains pt.
func (w Ward) Contains(pt geo.Point) bool {
	return w.Boundary.Contains(pt)
}
