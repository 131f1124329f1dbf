// Package service orchestrates report submission: it validates input, takes
// the lock keys for the candidate, and runs match, report, reward and outbox
// writes as one unit of work, retrying lost lock races a bounded number of times.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"freewalk/internal/geo"
	"freewalk/internal/outbox"
	"freewalk/internal/platform/config"
	"freewalk/internal/report/engine"
	"freewalk/internal/report/ledger"
	"freewalk/internal/report/metrics"
	"freewalk/internal/report/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/sentinel"
	"freewalk/pkg/requestcontext"
)

// Tx is the store surface available inside one unit of work.
type Tx interface {
	engine.ViolationStore
	ledger.Store
	outbox.Appender
}

// UnitOfWork runs fn atomically while holding every key in keys. Keys arrive
// sorted. Implementations return sentinel.ErrConflict when a lock cannot be
// acquired in time or the store reports a serialization failure, and
// sentinel.ErrUnavailable when the store cannot be reached. Nothing fn wrote
// is visible after a non-nil return.
type UnitOfWork interface {
	RunInLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx Tx) error) error
}

const defaultRetryBackoff = 25 * time.Millisecond

// Service implements report submission.
type Service struct {
	uow       UnitOfWork
	engine    *engine.Engine
	ledger    *ledger.Ledger
	cfg       config.Matching
	precision int
	backoff   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithRetryBackoff sets the first retry delay; later ones double.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) {
		s.backoff = d
	}
}

func New(uow UnitOfWork, eng *engine.Engine, led *ledger.Ledger, cfg config.Matching, opts ...Option) *Service {
	s := &Service{
		uow:       uow,
		engine:    eng,
		ledger:    led,
		cfg:       cfg,
		precision: geo.NeighborhoodPrecision(cfg.NearbyRadiusMeters),
		backoff:   defaultRetryBackoff,
		logger:    slog.Default(),
		tracer:    otel.Tracer("freewalk/report"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest is the caller-facing input of SubmitReport.
type SubmitRequest struct {
	UserID     id.UserID
	Category   string
	Latitude   float64
	Longitude  float64
	EntityRef  string
	StorageRef string
}

// ParseCandidate validates the matching inputs of a report. Callers use it to
// reject bad input before uploading evidence.
func ParseCandidate(category string, lat, lon float64, entityRef string) (models.Candidate, error) {
	c, err := id.ParseCategory(category)
	if err != nil {
		return models.Candidate{}, err
	}
	pt := geo.Point{Lat: lat, Lon: lon}
	if !pt.Valid() {
		return models.Candidate{}, dErrors.New(dErrors.CodeInvalidInput, "latitude must be in [-90, 90] and longitude in [-180, 180]")
	}
	return models.Candidate{
		Category:  c,
		Location:  pt,
		EntityRef: models.NormalizeEntityRef(c, entityRef),
	}, nil
}

func (r SubmitRequest) validate() (models.Submission, error) {
	if r.UserID.IsNil() {
		return models.Submission{}, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	c, err := ParseCandidate(r.Category, r.Latitude, r.Longitude, r.EntityRef)
	if err != nil {
		return models.Submission{}, err
	}
	if r.StorageRef == "" {
		return models.Submission{}, dErrors.New(dErrors.CodeInvalidInput, "storage reference is required")
	}
	return models.Submission{
		UserID:     r.UserID,
		Category:   c.Category,
		Location:   c.Location,
		EntityRef:  c.EntityRef,
		StorageRef: r.StorageRef,
	}, nil
}

// SubmitReport resolves one report against existing violations, records it and
// credits the reporter. It fails with invalid_input, conflict or unavailable;
// on failure no state has changed.
func (s *Service) SubmitReport(ctx context.Context, req SubmitRequest) (*models.Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "report.SubmitReport")
	defer span.End()

	result, err := s.submit(ctx, req)
	if err != nil {
		code := dErrors.CodeOf(err)
		span.SetStatus(codes.Error, string(code))
		span.RecordError(err)
		if s.metrics != nil {
			s.metrics.IncrementFailure(string(code))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("report.outcome", string(result.Outcome)),
		attribute.Int64("report.violation_id", int64(result.ViolationID)),
	)
	if s.metrics != nil {
		s.metrics.ObserveResolved(string(result.Outcome), string(result.Category), result.PointsAwarded, start)
	}
	return result, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (*models.Result, error) {
	sub, err := req.validate()
	if err != nil {
		return nil, err
	}
	candidate := models.Candidate{Category: sub.Category, Location: sub.Location, EntityRef: sub.EntityRef}
	keys := models.LockKeys(candidate, s.cfg.NearbyRadiusMeters, s.precision)
	now := requestcontext.Now(ctx)

	var result *models.Result
	backoff := s.backoff
	for attempt := 1; ; attempt++ {
		err = s.uow.RunInLock(ctx, keys, func(ctx context.Context, tx Tx) error {
			r, err := s.resolve(ctx, tx, sub, candidate, now)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, s.translate(ctx, err)
		}
		retrying := attempt < s.cfg.MaxAttempts
		if s.metrics != nil {
			s.metrics.IncrementConflict(retrying)
		}
		if !retrying {
			s.logger.WarnContext(ctx, "report resolution exhausted retries",
				"attempts", attempt,
				"keys", keys,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "report could not be resolved under contention, retry later")
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, s.translate(ctx, err)
		}
		backoff *= 2
	}

	s.logger.InfoContext(ctx, "report resolved",
		"outcome", result.Outcome,
		"violation_id", result.ViolationID,
		"report_id", result.ReportID,
		"category", sub.Category,
		"points_awarded", result.PointsAwarded,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// resolve is the atomic unit: match, mutate violation, record report, reward, emit event.
func (s *Service) resolve(ctx context.Context, tx Tx, sub models.Submission, c models.Candidate, now time.Time) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "report.resolve")
	defer span.End()

	outcome, err := s.engine.Resolve(ctx, tx, c, now)
	if err != nil {
		return nil, err
	}
	reportID, err := ledger.RecordReport(ctx, tx, outcome.ViolationID, sub.UserID, sub.StorageRef, now)
	if err != nil {
		return nil, err
	}
	awarded, total, err := s.ledger.ApplyReward(ctx, tx, sub.UserID, outcome)
	if err != nil {
		return nil, err
	}

	result := &models.Result{
		Outcome:       outcome.Kind,
		Category:      sub.Category,
		ViolationID:   outcome.ViolationID,
		ReportID:      reportID,
		WardID:        outcome.WardID,
		PointsAwarded: awarded,
		TotalPoints:   total,
	}
	event, err := newResolvedEvent(sub, result, now, requestcontext.RequestID(ctx))
	if err != nil {
		return nil, err
	}
	if err := tx.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append outbox event: %w", err)
	}
	return result, nil
}

// translate maps store failures onto the caller-facing error kinds.
func (s *Service) translate(ctx context.Context, err error) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "report store unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "report store unavailable, retry later")
	default:
		s.logger.ErrorContext(ctx, "report resolution failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve report")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
