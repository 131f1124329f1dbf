package domain

import (
	"strings"

	dErrors "freewalk/pkg/domain-errors"
)

// Category is the kind of civic violation a report describes.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseCategory at trust boundaries; direct casting
// bypasses validation.
type Category string

const (
	CategoryShop           Category = "shop"
	CategoryVehicle        Category = "vehicle"
	CategoryGarbage        Category = "garbage"
	CategoryInfrastructure Category = "infrastructure"
	CategoryHazard         Category = "hazard"
)

// validCategories is the single source of truth for supported categories.
var validCategories = map[Category]bool{
	CategoryShop:           true,
	CategoryVehicle:        true,
	CategoryGarbage:        true,
	CategoryInfrastructure: true,
	CategoryHazard:         true,
}

// ParseCategory constructs a Category from external input. Matching is
// case-insensitive and ignores surrounding whitespace.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown category: "+s)
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// RequiresFreshness reports whether spatial matches for this category must
// have been confirmed within the recent window. Only shops go stale.
func (c Category) RequiresFreshness() bool {
	return c == CategoryShop
}

func (c Category) String() string {
	return string(c)
}
