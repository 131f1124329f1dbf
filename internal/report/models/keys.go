package models

import (
	"sort"

	"freewalk/internal/geo"
)

// LockKeys returns the sorted mutual-exclusion keys guarding the resolution of
// c. Any two candidates that could match the same violation share a key.
//
// Identifier matches lock "vehicle|ref:<REF>". Spatial matches lock one key per
// geohash cell around the point ("spatial|<category>|<cell>"), plus a
// per-category polar key near the poles.
func LockKeys(c Candidate, radiusMeters float64, precision int) []string {
	if c.UsesEntityRef() {
		return []string{"vehicle|ref:" + c.EntityRef}
	}
	n := geo.LockNeighborhood(c.Location, radiusMeters, precision)
	prefix := "spatial|" + string(c.Category) + "|"
	keys := make([]string, 0, len(n.Cells)+1)
	for _, cell := range n.Cells {
		keys = append(keys, prefix+cell)
	}
	if n.Polar {
		keys = append(keys, prefix+"polar")
	}
	sort.Strings(keys)
	return keys
}
