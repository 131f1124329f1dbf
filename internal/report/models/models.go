package models

import (
	"fmt"
	"strings"
	"time"

	"freewalk/internal/geo"
	id "freewalk/pkg/domain"
)

// Violation is a deduplicated civic problem at a location.
//
// Invariants:
//   - EntityRef is non-empty only for vehicle violations, and is uppercase.
//   - FreshAt >= CreatedAt.
//   - WardID is set at creation and never reassigned.
type Violation struct {
	ID        id.ViolationID
	Category  id.Category
	Location  geo.Point
	EntityRef string
	WardID    *id.WardID
	CreatedAt time.Time
	FreshAt   time.Time
}

// CheckInvariants reports data corruption in a stored violation.
func (v Violation) CheckInvariants() error {
	if !v.Category.IsValid() {
		return fmt.Errorf("violation %d: unknown category %q", v.ID, v.Category)
	}
	if v.EntityRef != "" && v.Category != id.CategoryVehicle {
		return fmt.Errorf("violation %d: entity reference on %s violation", v.ID, v.Category)
	}
	if v.EntityRef != strings.ToUpper(v.EntityRef) {
		return fmt.Errorf("violation %d: entity reference not normalized", v.ID)
	}
	if v.FreshAt.Before(v.CreatedAt) {
		return fmt.Errorf("violation %d: freshness %s before creation %s", v.ID, v.FreshAt, v.CreatedAt)
	}
	return nil
}

// Report is an immutable piece of evidence linking one user to one violation.
type Report struct {
	ID          id.ReportID
	ViolationID id.ViolationID
	UserID      id.UserID
	StorageRef  string
	CreatedAt   time.Time
}

// NormalizeEntityRef trims and uppercases an identifier. A blank reference, or
// one supplied for a category other than vehicle, is dropped.
func NormalizeEntityRef(category id.Category, ref string) string {
	if category != id.CategoryVehicle {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(ref))
}

// Submission is a validated request to file a report.
type Submission struct {
	UserID     id.UserID
	Category   id.Category
	Location   geo.Point
	EntityRef  string
	StorageRef string
}

// Candidate is what the matcher sees of a submission.
type Candidate struct {
	Category  id.Category
	Location  geo.Point
	EntityRef string
}

// UsesEntityRef reports whether matching is identifier based.
func (c Candidate) UsesEntityRef() bool {
	return c.Category == id.CategoryVehicle && c.EntityRef != ""
}

// OutcomeKind tells whether a report found an existing violation.
type OutcomeKind string

const (
	OutcomeNew       OutcomeKind = "new"
	OutcomeConfirmed OutcomeKind = "confirmed"
)

// MatchOutcome is the matcher's decision. WardID is only set for new violations.
type MatchOutcome struct {
	Kind        OutcomeKind
	ViolationID id.ViolationID
	WardID      *id.WardID
}

// Matched builds a confirmed outcome.
func Matched(violationID id.ViolationID) MatchOutcome {
	return MatchOutcome{Kind: OutcomeConfirmed, ViolationID: violationID}
}

// Created builds a new-violation outcome.
func Created(violationID id.ViolationID, wardID *id.WardID) MatchOutcome {
	return MatchOutcome{Kind: OutcomeNew, ViolationID: violationID, WardID: wardID}
}

// Result is what a caller learns after submitting a report.
type Result struct {
	Outcome       OutcomeKind
	Category      id.Category
	ViolationID   id.ViolationID
	ReportID      id.ReportID
	WardID        *id.WardID
	PointsAwarded int64
	TotalPoints   int64
}
