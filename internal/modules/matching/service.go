// README: Nearest-ambulance matcher; scans the live-location cache, filters
// by vehicle type, and picks the minimum great-circle distance.
package matching

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"sirena/internal/modules/location"
	"sirena/internal/types"
)

var ErrBadLocation = errors.New("la ubicación de la emergencia debe tener latitud y longitud válidas")

// LocationCache is the read side of the live-location cache.
type LocationCache interface {
	All(ctx context.Context) ([]location.Record, error)
}

type Service struct {
	cache LocationCache
	log   zerolog.Logger
}

func NewService(cache LocationCache, log zerolog.Logger) *Service {
	return &Service{cache: cache, log: log.With().Str("component", "matching").Logger()}
}

// FindNearest returns the id of the closest live ambulance of the requested
// type, or ok=false when none is live. A malformed incident location is an
// input error; an empty candidate set is not. Runs inline in the
// evaluate/dispatch path, so the cache enumeration is the bounded-latency
// paginated scan.
func (s *Service) FindNearest(ctx context.Context, incident types.Point, tipo location.VehicleType) (types.ID, bool, error) {
	if !incident.Valid() {
		return 0, false, ErrBadLocation
	}

	candidates, err := s.LiveCandidates(ctx, tipo)
	if err != nil {
		return 0, false, err
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	best := candidates[0]
	bestDist := location.HaversineKm(incident.Lat, incident.Lng, best.Latitud, best.Longitud)
	for _, cand := range candidates[1:] {
		d := location.HaversineKm(incident.Lat, incident.Lng, cand.Latitud, cand.Longitud)
		// Ties break toward the lowest id so repeated calls stay
		// deterministic.
		if d < bestDist || (d == bestDist && cand.AmbulanceID < best.AmbulanceID) {
			best, bestDist = cand, d
		}
	}
	return best.AmbulanceID, true, nil
}

// LiveCandidates returns every live record matching the requested vehicle
// type. Used directly by the evaluating-phase stream, which re-filters on
// every tick to pick up units that connect or drop out.
func (s *Service) LiveCandidates(ctx context.Context, tipo location.VehicleType) ([]location.Record, error) {
	all, err := s.cache.All(ctx)
	if err != nil {
		return nil, err
	}

	candidates := all[:0:0]
	for _, rec := range all {
		if rec.TipoAmbulancia != tipo {
			continue
		}
		if !rec.Point().Valid() {
			continue
		}
		candidates = append(candidates, rec)
	}
	return candidates, nil
}
