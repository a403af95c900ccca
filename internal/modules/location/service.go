// README: Location service handles position reports and the availability
// side effects of ambulance connect/disconnect.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sirena/internal/types"
)

var ErrBadCoordinates = errors.New("coordenadas fuera de rango")

// CacheStore is the write side of the live-location cache.
type CacheStore interface {
	Set(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id types.ID) error
}

// FleetStore validates ambulance identity and records availability.
type FleetStore interface {
	VehicleType(ctx context.Context, id types.ID) (VehicleType, error)
	SetAvailability(ctx context.Context, id types.ID, available bool) error
}

type Service struct {
	cache CacheStore
	fleet FleetStore
	log   zerolog.Logger
}

func NewService(cache CacheStore, fleet FleetStore, log zerolog.Logger) *Service {
	return &Service{
		cache: cache,
		fleet: fleet,
		log:   log.With().Str("component", "location").Logger(),
	}
}

// ReportPosition validates and stores an ambulance's position fix. The
// registered vehicle type rides along in the cached record so the matcher
// can filter without touching persistence.
func (s *Service) ReportPosition(ctx context.Context, id types.ID, lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: la latitud debe estar entre -90 y 90", ErrBadCoordinates)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: la longitud debe estar entre -180 y 180", ErrBadCoordinates)
	}

	tipo, err := s.fleet.VehicleType(ctx, id)
	if err != nil {
		return err
	}

	return s.cache.Set(ctx, Record{
		AmbulanceID:    id,
		Latitud:        lat,
		Longitud:       lng,
		Timestamp:      time.Now().UTC(),
		TipoAmbulancia: tipo,
	})
}

// AmbulanceConnected marks the unit available. The cache stays untouched
// until the first fix arrives; matching only ever sees units with a live
// position.
func (s *Service) AmbulanceConnected(ctx context.Context, id types.ID) error {
	if err := s.fleet.SetAvailability(ctx, id, true); err != nil {
		return err
	}
	s.log.Info().Int64("ambulancia", int64(id)).Msg("ambulancia disponible")
	return nil
}

// AmbulanceDisconnected marks the unit unavailable and drops its cached
// position. Both steps are attempted even if one fails.
func (s *Service) AmbulanceDisconnected(ctx context.Context, id types.ID) error {
	availErr := s.fleet.SetAvailability(ctx, id, false)
	cacheErr := s.cache.Delete(ctx, id)
	if availErr != nil || cacheErr != nil {
		return errors.Join(availErr, cacheErr)
	}
	s.log.Info().Int64("ambulancia", int64(id)).Msg("ambulancia no disponible")
	return nil
}
