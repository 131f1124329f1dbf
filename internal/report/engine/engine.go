// Package engine decides whether an incoming report confirms an existing
// violation or discovers a new one, and applies that decision to the store.
//
// The engine never opens transactions or takes locks. Callers hand it a store
// bound to a unit of work that already holds the lock keys for the candidate.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"freewalk/internal/geo"
	"freewalk/internal/platform/config"
	"freewalk/internal/report/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
)

// distanceEpsilon absorbs floating-point noise at the radius boundary.
const distanceEpsilon = 1e-6

// ViolationStore is the only query surface the matcher needs. Absent results
// are (nil, nil) or an empty slice, never an error.
type ViolationStore interface {
	// FindFreshByEntity returns the lowest-id violation of category with the
	// given normalized reference and FreshAt >= freshSince.
	FindFreshByEntity(ctx context.Context, category id.Category, entityRef string, freshSince time.Time) (*models.Violation, error)
	// FindInBox returns violations of category inside box, ordered by id.
	// A non-nil freshSince additionally requires FreshAt >= *freshSince.
	FindInBox(ctx context.Context, category id.Category, box geo.BBox, freshSince *time.Time) ([]models.Violation, error)
	InsertViolation(ctx context.Context, v models.Violation) (id.ViolationID, error)
	// TouchViolation advances FreshAt to now. It never moves it backwards.
	TouchViolation(ctx context.Context, violationID id.ViolationID, now time.Time) error
}

// WardLocator attributes a point to an administrative zone.
type WardLocator interface {
	ContainingWard(pt geo.Point) (id.WardID, bool)
}

// Engine is the matching decision procedure.
type Engine struct {
	cfg    config.Matching
	wards  WardLocator
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine. cfg is copied and never changes afterwards.
func New(cfg config.Matching, wards WardLocator, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, wards: wards, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve matches c against the store and applies the outcome: a confirmed
// violation gets its freshness advanced, a new one is inserted with its ward.
func (e *Engine) Resolve(ctx context.Context, store ViolationStore, c models.Candidate, now time.Time) (models.MatchOutcome, error) {
	match, err := e.findMatch(ctx, store, c, now)
	if err != nil {
		return models.MatchOutcome{}, err
	}

	if match != nil {
		if err := store.TouchViolation(ctx, match.ID, now); err != nil {
			return models.MatchOutcome{}, fmt.Errorf("touch violation: %w", err)
		}
		return models.Matched(match.ID), nil
	}

	var wardID *id.WardID
	if e.wards != nil {
		if w, ok := e.wards.ContainingWard(c.Location); ok {
			wardID = &w
		}
	}
	v := models.Violation{
		Category:  c.Category,
		Location:  c.Location,
		EntityRef: models.NormalizeEntityRef(c.Category, c.EntityRef),
		WardID:    wardID,
		CreatedAt: now,
		FreshAt:   now,
	}
	violationID, err := store.InsertViolation(ctx, v)
	if err != nil {
		return models.MatchOutcome{}, fmt.Errorf("insert violation: %w", err)
	}
	return models.Created(violationID, wardID), nil
}

func (e *Engine) findMatch(ctx context.Context, store ViolationStore, c models.Candidate, now time.Time) (*models.Violation, error) {
	freshSince := now.Add(-e.cfg.RecentWindow)

	if c.UsesEntityRef() {
		v, err := store.FindFreshByEntity(ctx, id.CategoryVehicle, c.EntityRef, freshSince)
		if err != nil {
			return nil, fmt.Errorf("find violation by entity: %w", err)
		}
		if v == nil {
			return nil, nil
		}
		if err := e.checkCandidate(ctx, *v, c); err != nil {
			return nil, err
		}
		if v.EntityRef != c.EntityRef || v.FreshAt.Before(freshSince) {
			return nil, e.invariant(ctx, fmt.Errorf("violation %d returned for reference %q does not satisfy the query", v.ID, c.EntityRef))
		}
		return v, nil
	}

	var since *time.Time
	if c.Category.RequiresFreshness() {
		since = &freshSince
	}
	box := geo.BoundingBox(c.Location, e.cfg.NearbyRadiusMeters)
	candidates, err := store.FindInBox(ctx, c.Category, box, since)
	if err != nil {
		return nil, fmt.Errorf("find nearby violations: %w", err)
	}

	var best *models.Violation
	for i := range candidates {
		v := &candidates[i]
		if err := e.checkCandidate(ctx, *v, c); err != nil {
			return nil, err
		}
		if since != nil && v.FreshAt.Before(*since) {
			continue
		}
		if geo.DistanceMeters(c.Location, v.Location) > e.cfg.NearbyRadiusMeters+distanceEpsilon {
			continue
		}
		if best == nil || v.ID < best.ID {
			best = v
		}
	}
	return best, nil
}

func (e *Engine) checkCandidate(ctx context.Context, v models.Violation, c models.Candidate) error {
	if v.Category != c.Category {
		return e.invariant(ctx, fmt.Errorf("violation %d has category %s, queried %s", v.ID, v.Category, c.Category))
	}
	if err := v.CheckInvariants(); err != nil {
		return e.invariant(ctx, err)
	}
	return nil
}

func (e *Engine) invariant(ctx context.Context, err error) error {
	e.logger.ErrorContext(ctx, "violation invariant broken", "error", err)
	return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "stored violation failed integrity checks")
}
