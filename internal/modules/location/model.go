// README: Live location record and vehicle type definitions.
package location

import (
	"fmt"
	"time"

	"sirena/internal/types"
)

type VehicleType string

const (
	VehicleBasica       VehicleType = "BASICA"
	VehicleMedicalizada VehicleType = "MEDICALIZADA"
)

// ParseVehicleType validates an inbound vehicle type string.
func ParseVehicleType(s string) (VehicleType, error) {
	switch VehicleType(s) {
	case VehicleBasica, VehicleMedicalizada:
		return VehicleType(s), nil
	}
	return "", fmt.Errorf("tipo de ambulancia desconocido: %q", s)
}

// Record is an ambulance's most recent self-reported position. The cache
// holds exactly one record per ambulance; each write overwrites the last.
// A record's presence means the unit is reachable and matchable.
type Record struct {
	AmbulanceID    types.ID    `json:"-"`
	Latitud        float64     `json:"latitud"`
	Longitud       float64     `json:"longitud"`
	Timestamp      time.Time   `json:"timestamp"`
	TipoAmbulancia VehicleType `json:"tipoAmbulancia,omitempty"`
}

func (r Record) Point() types.Point {
	return types.Point{Lat: r.Latitud, Lng: r.Longitud}
}
