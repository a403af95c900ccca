// README: Matcher unit tests with an in-memory location cache.
package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"sirena/internal/modules/location"
	"sirena/internal/types"
)

type fakeCache struct {
	records []location.Record
	err     error
}

func (f *fakeCache) All(_ context.Context) ([]location.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func newMatcher(cache *fakeCache) *Service {
	return NewService(cache, zerolog.Nop())
}

func rec(id types.ID, lat, lng float64, tipo location.VehicleType) location.Record {
	return location.Record{AmbulanceID: id, Latitud: lat, Longitud: lng, TipoAmbulancia: tipo}
}

var incident = types.Point{Lat: 4.7110, Lng: -74.0721}

func TestFindNearest_PicksClosest(t *testing.T) {
	cache := &fakeCache{records: []location.Record{
		rec(1, 4.80, -74.10, location.VehicleBasica), // far
		rec(2, 4.7120, -74.0730, location.VehicleBasica), // ~0.14km
		rec(3, 4.75, -74.09, location.VehicleBasica), // mid
	}}

	id, found, err := newMatcher(cache).FindNearest(context.Background(), incident, location.VehicleBasica)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if !found || id != 2 {
		t.Fatalf("got id=%d found=%v, want id=2", id, found)
	}
}

func TestFindNearest_TypeFilterBeatsDistance(t *testing.T) {
	// The MEDICALIZADA unit is much closer, but a BASICA request must
	// never select it.
	cache := &fakeCache{records: []location.Record{
		rec(1, 4.7111, -74.0722, location.VehicleMedicalizada), // ~0.01km
		rec(2, 4.7150, -74.0750, location.VehicleBasica),       // ~0.5km
	}}

	id, found, err := newMatcher(cache).FindNearest(context.Background(), incident, location.VehicleBasica)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if !found || id != 2 {
		t.Fatalf("got id=%d found=%v, want the BASICA unit (2)", id, found)
	}
}

func TestFindNearest_TieBreaksOnLowestID(t *testing.T) {
	same := rec(9, 4.72, -74.08, location.VehicleBasica)
	cache := &fakeCache{records: []location.Record{
		same,
		rec(4, 4.72, -74.08, location.VehicleBasica),
		rec(7, 4.72, -74.08, location.VehicleBasica),
	}}

	for i := 0; i < 5; i++ {
		id, found, err := newMatcher(cache).FindNearest(context.Background(), incident, location.VehicleBasica)
		if err != nil {
			t.Fatalf("FindNearest: %v", err)
		}
		if !found || id != 4 {
			t.Fatalf("run %d: got id=%d, want lowest id 4", i, id)
		}
	}
}

func TestFindNearest_EmptyCacheIsNotAnError(t *testing.T) {
	id, found, err := newMatcher(&fakeCache{}).FindNearest(context.Background(), incident, location.VehicleBasica)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if found || id != 0 {
		t.Fatalf("got id=%d found=%v, want found=false", id, found)
	}
}

func TestFindNearest_BadIncidentLocation(t *testing.T) {
	_, _, err := newMatcher(&fakeCache{}).FindNearest(context.Background(), types.Point{Lat: 95, Lng: 0}, location.VehicleBasica)
	if !errors.Is(err, ErrBadLocation) {
		t.Fatalf("err = %v, want ErrBadLocation", err)
	}
}

func TestFindNearest_CacheErrorPropagates(t *testing.T) {
	cacheErr := errors.New("redis timeout")
	_, _, err := newMatcher(&fakeCache{err: cacheErr}).FindNearest(context.Background(), incident, location.VehicleBasica)
	if !errors.Is(err, cacheErr) {
		t.Fatalf("err = %v, want wrapped cache error", err)
	}
}

func TestLiveCandidates_FiltersTypeAndInvalidPoints(t *testing.T) {
	cache := &fakeCache{records: []location.Record{
		rec(1, 4.71, -74.07, location.VehicleBasica),
		rec(2, 4.72, -74.08, location.VehicleMedicalizada),
		rec(3, 95.0, -74.07, location.VehicleBasica), // corrupt latitude
	}}

	got, err := newMatcher(cache).LiveCandidates(context.Background(), location.VehicleBasica)
	if err != nil {
		t.Fatalf("LiveCandidates: %v", err)
	}
	if len(got) != 1 || got[0].AmbulanceID != 1 {
		t.Fatalf("candidates = %v, want only unit 1", got)
	}
}
