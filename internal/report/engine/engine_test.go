package engine

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"freewalk/internal/geo"
	"freewalk/internal/platform/config"
	"freewalk/internal/report/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
)

// fakeStore is a linear-scan ViolationStore.
type fakeStore struct {
	violations map[id.ViolationID]models.Violation
	nextID     id.ViolationID
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{violations: map[id.ViolationID]models.Violation{}}
}

func (f *fakeStore) sorted() []models.Violation {
	out := make([]models.Violation, 0, len(f.violations))
	for _, v := range f.violations {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) FindFreshByEntity(_ context.Context, category id.Category, ref string, since time.Time) (*models.Violation, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, v := range f.sorted() {
		if v.Category == category && v.EntityRef == ref && !v.FreshAt.Before(since) {
			return &v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindInBox(_ context.Context, category id.Category, box geo.BBox, since *time.Time) ([]models.Violation, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Violation
	for _, v := range f.sorted() {
		if v.Category != category || !box.Contains(v.Location) {
			continue
		}
		if since != nil && v.FreshAt.Before(*since) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeStore) InsertViolation(_ context.Context, v models.Violation) (id.ViolationID, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	v.ID = f.nextID
	f.violations[v.ID] = v
	return v.ID, nil
}

func (f *fakeStore) TouchViolation(_ context.Context, violationID id.ViolationID, now time.Time) error {
	v := f.violations[violationID]
	if now.After(v.FreshAt) {
		v.FreshAt = now
	}
	f.violations[violationID] = v
	return nil
}

// seed inserts a violation directly, bypassing the engine.
func (f *fakeStore) seed(v models.Violation) id.ViolationID {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = v.FreshAt
	}
	violationID, _ := f.InsertViolation(context.Background(), v)
	return violationID
}

type fixedWards struct {
	wardID id.WardID
	box    geo.BBox
}

func (w fixedWards) ContainingWard(pt geo.Point) (id.WardID, bool) {
	if w.box.Contains(pt) {
		return w.wardID, true
	}
	return 0, false
}

type EngineSuite struct {
	suite.Suite
	store  *fakeStore
	engine *Engine
	now    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

var sanFrancisco = geo.Point{Lat: 37.7749, Lon: -122.4194}

func (s *EngineSuite) SetupTest() {
	s.store = newFakeStore()
	wards := fixedWards{wardID: 4, box: geo.BBox{MinLat: 37.77, MaxLat: 37.78, MinLon: -122.43, MaxLon: -122.41}}
	s.engine = New(config.DefaultMatching(), wards)
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *EngineSuite) resolve(c models.Candidate, at time.Time) models.MatchOutcome {
	out, err := s.engine.Resolve(context.Background(), s.store, c, at)
	s.Require().NoError(err)
	return out
}

func (s *EngineSuite) TestShopScenario() {
	first := s.resolve(models.Candidate{Category: id.CategoryShop, Location: sanFrancisco}, s.now)
	s.Equal(models.OutcomeNew, first.Kind)
	s.Require().NotNil(first.WardID)
	s.Equal(id.WardID(4), *first.WardID)

	later := s.now.Add(time.Hour)
	second := s.resolve(models.Candidate{Category: id.CategoryShop, Location: geo.Point{Lat: 37.77491, Lon: -122.41941}}, later)
	s.Equal(models.OutcomeConfirmed, second.Kind)
	s.Equal(first.ViolationID, second.ViolationID)
	s.Nil(second.WardID)
	s.Equal(later, s.store.violations[first.ViolationID].FreshAt)
	s.Equal(s.now, s.store.violations[first.ViolationID].CreatedAt)
}

func (s *EngineSuite) TestDistanceBoundary() {
	existing := s.store.seed(models.Violation{Category: id.CategoryGarbage, Location: sanFrancisco, FreshAt: s.now})

	s.Run("exactly at the radius matches", func() {
		for _, bearing := range []float64{0, 90, 180, 270, 45} {
			at := geo.Destination(sanFrancisco, bearing, 5.0)
			out := s.resolve(models.Candidate{Category: id.CategoryGarbage, Location: at}, s.now)
			s.Equal(models.OutcomeConfirmed, out.Kind, "bearing %v", bearing)
			s.Equal(existing, out.ViolationID)
		}
	})

	s.Run("one meter beyond creates", func() {
		at := geo.Destination(sanFrancisco, 90, 6.0)
		out := s.resolve(models.Candidate{Category: id.CategoryGarbage, Location: at}, s.now)
		s.Equal(models.OutcomeNew, out.Kind)
		s.NotEqual(existing, out.ViolationID)
	})
}

func (s *EngineSuite) TestShopFreshnessBoundary() {
	window := config.DefaultMatching().RecentWindow

	s.Run("stale by one second creates", func() {
		s.SetupTest()
		stale := s.store.seed(models.Violation{Category: id.CategoryShop, Location: sanFrancisco, FreshAt: s.now.Add(-window - time.Second)})
		out := s.resolve(models.Candidate{Category: id.CategoryShop, Location: sanFrancisco}, s.now)
		s.Equal(models.OutcomeNew, out.Kind)
		s.NotEqual(stale, out.ViolationID)
	})

	s.Run("exactly at the window matches", func() {
		s.SetupTest()
		edge := s.store.seed(models.Violation{Category: id.CategoryShop, Location: sanFrancisco, FreshAt: s.now.Add(-window)})
		out := s.resolve(models.Candidate{Category: id.CategoryShop, Location: sanFrancisco}, s.now)
		s.Equal(models.OutcomeConfirmed, out.Kind)
		s.Equal(edge, out.ViolationID)
	})
}

func (s *EngineSuite) TestNonShopIgnoresFreshness() {
	old := s.store.seed(models.Violation{Category: id.CategoryInfrastructure, Location: sanFrancisco, FreshAt: s.now.Add(-90 * 24 * time.Hour)})
	out := s.resolve(models.Candidate{Category: id.CategoryInfrastructure, Location: sanFrancisco}, s.now)
	s.Equal(models.OutcomeConfirmed, out.Kind)
	s.Equal(old, out.ViolationID)
}

func (s *EngineSuite) TestVehicleScenario() {
	first := s.resolve(models.Candidate{Category: id.CategoryVehicle, EntityRef: "ABC123", Location: sanFrancisco}, s.now)
	s.Equal(models.OutcomeNew, first.Kind)
	s.Equal("ABC123", s.store.violations[first.ViolationID].EntityRef)

	farAway := geo.Point{Lat: 40.7128, Lon: -74.0060}
	second := s.resolve(models.Candidate{Category: id.CategoryVehicle, EntityRef: "ABC123", Location: farAway}, s.now.Add(2*time.Hour))
	s.Equal(models.OutcomeConfirmed, second.Kind)
	s.Equal(first.ViolationID, second.ViolationID)
}

func (s *EngineSuite) TestVehicleReferenceOutsideWindowCreates() {
	s.store.seed(models.Violation{Category: id.CategoryVehicle, EntityRef: "XYZ", Location: sanFrancisco, FreshAt: s.now.Add(-25 * time.Hour)})
	out := s.resolve(models.Candidate{Category: id.CategoryVehicle, EntityRef: "XYZ", Location: sanFrancisco}, s.now)
	s.Equal(models.OutcomeNew, out.Kind)
}

func (s *EngineSuite) TestVehicleWithoutReferenceMatchesSpatially() {
	existing := s.store.seed(models.Violation{Category: id.CategoryVehicle, Location: sanFrancisco, FreshAt: s.now.Add(-72 * time.Hour)})
	out := s.resolve(models.Candidate{Category: id.CategoryVehicle, Location: geo.Destination(sanFrancisco, 10, 2)}, s.now)
	s.Equal(models.OutcomeConfirmed, out.Kind)
	s.Equal(existing, out.ViolationID)
}

func (s *EngineSuite) TestVehicleReferenceIgnoresUnplatedNeighbour() {
	s.store.seed(models.Violation{Category: id.CategoryVehicle, Location: sanFrancisco, FreshAt: s.now})
	out := s.resolve(models.Candidate{Category: id.CategoryVehicle, EntityRef: "NEW1", Location: sanFrancisco}, s.now)
	s.Equal(models.OutcomeNew, out.Kind)
}

func (s *EngineSuite) TestPicksLowestID() {
	low := s.store.seed(models.Violation{Category: id.CategoryHazard, Location: geo.Destination(sanFrancisco, 0, 4), FreshAt: s.now})
	s.store.seed(models.Violation{Category: id.CategoryHazard, Location: sanFrancisco, FreshAt: s.now})
	out := s.resolve(models.Candidate{Category: id.CategoryHazard, Location: sanFrancisco}, s.now)
	s.Equal(low, out.ViolationID)
}

func (s *EngineSuite) TestOtherCategoriesDoNotMatch() {
	s.store.seed(models.Violation{Category: id.CategoryGarbage, Location: sanFrancisco, FreshAt: s.now})
	out := s.resolve(models.Candidate{Category: id.CategoryHazard, Location: sanFrancisco}, s.now)
	s.Equal(models.OutcomeNew, out.Kind)
}

func (s *EngineSuite) TestNoWardOutsideZones() {
	out := s.resolve(models.Candidate{Category: id.CategoryShop, Location: geo.Point{Lat: 0, Lon: 0}}, s.now)
	s.Equal(models.OutcomeNew, out.Kind)
	s.Nil(out.WardID)
	s.Nil(s.store.violations[out.ViolationID].WardID)
}

func (s *EngineSuite) TestWardNeverReassigned() {
	first := s.resolve(models.Candidate{Category: id.CategoryGarbage, Location: sanFrancisco}, s.now)
	s.Require().NotNil(first.WardID)

	// the ward box ends at -122.41; step just across it while staying in range
	edge := geo.Point{Lat: 37.7749, Lon: -122.41}
	s.store.violations[first.ViolationID] = func() models.Violation {
		v := s.store.violations[first.ViolationID]
		v.Location = geo.Destination(edge, 270, 2)
		return v
	}()
	second := s.resolve(models.Candidate{Category: id.CategoryGarbage, Location: geo.Destination(edge, 90, 2)}, s.now)
	s.Equal(models.OutcomeConfirmed, second.Kind)
	s.Equal(id.WardID(4), *s.store.violations[first.ViolationID].WardID)
}

func (s *EngineSuite) TestCorruptCandidateIsInvariantViolation() {
	s.store.seed(models.Violation{Category: id.CategoryShop, EntityRef: "BAD", Location: sanFrancisco, FreshAt: s.now})
	_, err := s.engine.Resolve(context.Background(), s.store, models.Candidate{Category: id.CategoryShop, Location: sanFrancisco}, s.now)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *EngineSuite) TestStoreErrorPropagates() {
	boom := errors.New("connection reset")
	s.store.err = boom
	_, err := s.engine.Resolve(context.Background(), s.store, models.Candidate{Category: id.CategoryShop, Location: sanFrancisco}, s.now)
	s.ErrorIs(err, boom)
}
