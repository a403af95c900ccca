// README: Emergency aggregate, dispatch order, and state definitions.
package emergency

import (
	"fmt"
	"time"

	"sirena/internal/modules/location"
	"sirena/internal/types"
)

type Estado string

const (
	EstadoCreada    Estado = "CREADA"
	EstadoValorada  Estado = "VALORADA"
	EstadoAsignada  Estado = "ASIGNADA"
	EstadoEnEscena  Estado = "EN_ESCENA"
	EstadoResuelta  Estado = "RESUELTA"
	EstadoCancelada Estado = "CANCELADA"
)

type Prioridad string

const (
	PrioridadAlta  Prioridad = "ALTA"
	PrioridadMedia Prioridad = "MEDIA"
	PrioridadBaja  Prioridad = "BAJA"
)

// ParsePrioridad validates an inbound priority string.
func ParsePrioridad(s string) (Prioridad, error) {
	switch Prioridad(s) {
	case PrioridadAlta, PrioridadMedia, PrioridadBaja:
		return Prioridad(s), nil
	}
	return "", fmt.Errorf("nivel de prioridad desconocido: %q", s)
}

// Solicitud is an inbound ambulance request before evaluation.
type Solicitud struct {
	ID            types.ID    `json:"id"`
	SolicitanteID types.ID    `json:"solicitante_id"`
	Nombre        string      `json:"nombre"`
	Telefono      string      `json:"telefono,omitempty"`
	Ubicacion     types.Point `json:"ubicacion"`
	Descripcion   string      `json:"descripcion,omitempty"`
	Room          string      `json:"room"`
	Atendida      bool        `json:"atendida"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Emergencia is a request an operator has evaluated.
type Emergencia struct {
	ID             types.ID             `json:"id"`
	SolicitudID    types.ID             `json:"solicitud_id"`
	SolicitanteID  types.ID             `json:"solicitante_id"`
	OperadorID     types.ID             `json:"operador_id"`
	AmbulanciaID   *types.ID            `json:"ambulancia_id,omitempty"`
	Estado         Estado               `json:"estado"`
	StatusVersion  int                  `json:"-"`
	TipoAmbulancia location.VehicleType `json:"tipoAmbulancia"`
	Prioridad      Prioridad            `json:"nivelPrioridad"`
	Descripcion    string               `json:"descripcion"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// OrdenDespacho assigns one ambulance and its operator to an emergency.
type OrdenDespacho struct {
	ID                   types.ID  `json:"id"`
	EmergenciaID         types.ID  `json:"emergencia_id"`
	AmbulanciaID         types.ID  `json:"ambulancia_id"`
	OperadorAmbulanciaID types.ID  `json:"operador_ambulancia_id"`
	OperadorEmergenciaID types.ID  `json:"operador_emergencia_id"`
	FechaHora            time.Time `json:"fechaHora"`
}

// Evento records one state transition for auditing.
type Evento struct {
	ID           int64
	EmergenciaID types.ID
	FromEstado   Estado
	ToEstado     Estado
	ActorType    string
	ActorID      *types.ID
	CreatedAt    time.Time
}

// AllowedTransitions represents the emergency state flow as code.
// CANCELADA is reachable from every non-terminal state.
var AllowedTransitions = map[Estado][]Estado{
	EstadoCreada:   {EstadoValorada, EstadoCancelada},
	EstadoValorada: {EstadoAsignada, EstadoCancelada},
	EstadoAsignada: {EstadoEnEscena, EstadoResuelta, EstadoCancelada},
	EstadoEnEscena: {EstadoResuelta, EstadoCancelada},
}

func CanTransition(from, to Estado) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, e := range next {
		if e == to {
			return true
		}
	}
	return false
}
