package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"freewalk/internal/geo"
	"freewalk/internal/outbox"
	"freewalk/internal/platform/config"
	"freewalk/internal/report/engine"
	"freewalk/internal/report/ledger"
	"freewalk/internal/report/models"
	"freewalk/internal/report/service"
	"freewalk/internal/report/store"
	usermodels "freewalk/internal/user/models"
	userstore "freewalk/internal/user/store"
	"freewalk/internal/ward"
	wardmodels "freewalk/internal/ward/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/sentinel"
	"freewalk/pkg/requestcontext"
)

type SubmitReportSuite struct {
	suite.Suite
	cfg     config.Matching
	logger  *slog.Logger
	users   *userstore.InMemory
	events  *outbox.InMemory
	reports *store.InMemory
	svc     *service.Service
	userID  id.UserID
	now     time.Time
}

func TestSubmitReportSuite(t *testing.T) {
	suite.Run(t, new(SubmitReportSuite))
}

// downtown covers a square around (37.7749, -122.4194).
var downtown = wardmodels.Ward{
	ID:   7,
	Name: "Downtown",
	Boundary: geo.MultiPolygon{geo.NewPolygon([][]geo.Point{{
		{Lat: 37.77, Lon: -122.43},
		{Lat: 37.77, Lon: -122.41},
		{Lat: 37.78, Lon: -122.41},
		{Lat: 37.78, Lon: -122.43},
		{Lat: 37.77, Lon: -122.43},
	}})},
}

func (s *SubmitReportSuite) SetupTest() {
	s.cfg = config.DefaultMatching()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.users = userstore.NewInMemory()
	s.events = outbox.NewInMemory()
	s.reports = store.NewInMemory(s.users, s.events)
	s.svc = s.newService(s.reports)
	s.userID = s.newUser()
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *SubmitReportSuite) newService(uow service.UnitOfWork) *service.Service {
	eng := engine.New(s.cfg, ward.NewStaticDirectory([]wardmodels.Ward{downtown}), engine.WithLogger(s.logger))
	return service.New(uow, eng, ledger.New(s.cfg), s.cfg,
		service.WithLogger(s.logger),
		service.WithRetryBackoff(time.Millisecond),
	)
}

func (s *SubmitReportSuite) newUser() id.UserID {
	u, _, err := s.users.FindOrCreate(context.Background(), usermodels.User{
		ID: id.UserID(uuid.New()), Email: uuid.NewString() + "@example.com", CreatedAt: time.Now(),
	})
	s.Require().NoError(err)
	return u.ID
}

func (s *SubmitReportSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *SubmitReportSuite) submit(ctx context.Context, req service.SubmitRequest) (*models.Result, error) {
	if req.UserID.IsNil() {
		req.UserID = s.userID
	}
	if req.StorageRef == "" {
		req.StorageRef = "https://cdn.example/evidence.jpg"
	}
	return s.svc.SubmitReport(ctx, req)
}

func (s *SubmitReportSuite) TestShopScenario() {
	first, err := s.submit(s.at(s.now), service.SubmitRequest{Category: "shop", Latitude: 37.7749, Longitude: -122.4194})
	s.Require().NoError(err)
	s.Equal(models.OutcomeNew, first.Outcome)
	s.Equal(int64(50), first.PointsAwarded)
	s.Equal(int64(50), first.TotalPoints)
	s.Require().NotNil(first.WardID)
	s.Equal(downtown.ID, *first.WardID)

	later := s.now.Add(3 * time.Hour)
	second, err := s.submit(s.at(later), service.SubmitRequest{Category: "shop", Latitude: 37.77491, Longitude: -122.41941})
	s.Require().NoError(err)
	s.Equal(models.OutcomeConfirmed, second.Outcome)
	s.Equal(int64(10), second.PointsAwarded)
	s.Equal(int64(60), second.TotalPoints)
	s.Equal(first.ViolationID, second.ViolationID)

	v, ok := s.reports.Violation(first.ViolationID)
	s.Require().True(ok)
	s.Equal(later, v.FreshAt)
	s.Equal(s.now, v.CreatedAt)
	s.Equal(downtown.ID, *v.WardID)
}

func (s *SubmitReportSuite) TestVehicleScenarioIsCaseInsensitive() {
	first, err := s.submit(s.at(s.now), service.SubmitRequest{
		Category: "vehicle", Latitude: 12.9716, Longitude: 77.5946, EntityRef: "ABC123",
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeNew, first.Outcome)

	second, err := s.submit(s.at(s.now.Add(time.Hour)), service.SubmitRequest{
		Category: "vehicle", Latitude: 28.6139, Longitude: 77.2090, EntityRef: " abc123 ",
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeConfirmed, second.Outcome)
	s.Equal(first.ViolationID, second.ViolationID)
}

func (s *SubmitReportSuite) TestRewardsAccumulateAcrossUsers() {
	other := s.newUser()

	_, err := s.submit(s.at(s.now), service.SubmitRequest{Category: "garbage", Latitude: 1, Longitude: 1})
	s.Require().NoError(err)
	res, err := s.submit(s.at(s.now), service.SubmitRequest{UserID: other, Category: "garbage", Latitude: 1, Longitude: 1})
	s.Require().NoError(err)
	s.Equal(int64(10), res.TotalPoints)

	mine, err := s.users.Balance(context.Background(), s.userID)
	s.Require().NoError(err)
	s.Equal(int64(50), mine)
	theirs, err := s.users.Balance(context.Background(), other)
	s.Require().NoError(err)
	s.Equal(int64(10), theirs)
}

func (s *SubmitReportSuite) TestEmitsResolvedEvent() {
	ctx := requestcontext.WithRequestID(s.at(s.now), "req-1")
	res, err := s.submit(ctx, service.SubmitRequest{Category: "hazard", Latitude: 37.7749, Longitude: -122.4194})
	s.Require().NoError(err)

	events := s.events.Events()
	s.Require().Len(events, 1)
	e := events[0]
	s.Equal(service.EventReportResolved, e.EventType)
	s.Equal("violation", e.AggregateType)
	s.Equal(res.ViolationID.String(), e.AggregateID)

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(e.Payload, &payload))
	s.Equal("new", payload["outcome"])
	s.Equal("hazard", payload["category"])
	s.Equal("req-1", payload["request_id"])
	s.EqualValues(float64(downtown.ID), payload["ward_id"])
}

func (s *SubmitReportSuite) TestInvalidInput() {
	cases := map[string]service.SubmitRequest{
		"unknown category":    {Category: "graffiti", Latitude: 1, Longitude: 1},
		"latitude too large":  {Category: "shop", Latitude: 90.5, Longitude: 1},
		"longitude too small": {Category: "shop", Latitude: 1, Longitude: -180.01},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.submit(s.at(s.now), req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
		})
	}
	s.Run("missing user", func() {
		_, err := s.svc.SubmitReport(s.at(s.now), service.SubmitRequest{Category: "shop", StorageRef: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	s.Empty(s.reports.Violations())
}

func (s *SubmitReportSuite) TestUnknownUserLeavesNoViolation() {
	_, err := s.submit(s.at(s.now), service.SubmitRequest{
		UserID: id.UserID(uuid.New()), Category: "shop", Latitude: 1, Longitude: 1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Empty(s.reports.Violations())
	s.Empty(s.reports.Reports())
}

// scriptedUoW fails the first attempts with the given errors, then delegates.
type scriptedUoW struct {
	errs     []error
	next     service.UnitOfWork
	attempts int
}

func (u *scriptedUoW) RunInLock(ctx context.Context, keys []string, fn func(context.Context, service.Tx) error) error {
	u.attempts++
	if len(u.errs) > 0 {
		err := u.errs[0]
		u.errs = u.errs[1:]
		return err
	}
	return u.next.RunInLock(ctx, keys, fn)
}

func (s *SubmitReportSuite) TestConflictIsRetried() {
	uow := &scriptedUoW{
		errs: []error{fmtConflict(), fmtConflict()},
		next: s.reports,
	}
	res, err := s.newService(uow).SubmitReport(s.at(s.now), service.SubmitRequest{
		UserID: s.userID, Category: "shop", Latitude: 1, Longitude: 1, StorageRef: "x",
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeNew, res.Outcome)
	s.Equal(3, uow.attempts)
}

func (s *SubmitReportSuite) TestConflictExhaustion() {
	uow := &scriptedUoW{errs: []error{fmtConflict(), fmtConflict(), fmtConflict()}, next: s.reports}
	_, err := s.newService(uow).SubmitReport(s.at(s.now), service.SubmitRequest{
		UserID: s.userID, Category: "shop", Latitude: 1, Longitude: 1, StorageRef: "x",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(s.cfg.MaxAttempts, uow.attempts)
	s.Empty(s.reports.Violations())
}

func (s *SubmitReportSuite) TestUnavailableIsNotRetried() {
	uow := &scriptedUoW{errs: []error{errors.Join(errors.New("connection refused"), sentinel.ErrUnavailable)}, next: s.reports}
	_, err := s.newService(uow).SubmitReport(s.at(s.now), service.SubmitRequest{
		UserID: s.userID, Category: "shop", Latitude: 1, Longitude: 1, StorageRef: "x",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(1, uow.attempts)
}

func (s *SubmitReportSuite) TestUnexpectedStoreErrorIsInternal() {
	uow := &scriptedUoW{errs: []error{errors.New("disk on fire")}, next: s.reports}
	_, err := s.newService(uow).SubmitReport(s.at(s.now), service.SubmitRequest{
		UserID: s.userID, Category: "shop", Latitude: 1, Longitude: 1, StorageRef: "x",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func fmtConflict() error {
	return errors.Join(errors.New("lock timeout"), sentinel.ErrConflict)
}

func TestParseCandidate(t *testing.T) {
	c, err := service.ParseCandidate(" Vehicle ", 10, 20, " ka01 ")
	require.NoError(t, err)
	assert.Equal(t, id.CategoryVehicle, c.Category)
	assert.Equal(t, "KA01", c.EntityRef)

	c, err = service.ParseCandidate("shop", 10, 20, "ignored")
	require.NoError(t, err)
	assert.Empty(t, c.EntityRef)
}
