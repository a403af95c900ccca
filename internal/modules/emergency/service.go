// README: Emergency orchestration: intake, evaluation, dispatch, and
// resolution workflows, wired to the live feeds and the streaming scheduler.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sirena/internal/modules/location"
	"sirena/internal/types"
)

var (
	ErrBadRequest           = errors.New("solicitud inválida")
	ErrNotFound             = errors.New("emergencia no encontrada")
	ErrInvalidState         = errors.New("transición de estado no permitida")
	ErrConflict             = errors.New("la emergencia fue modificada por otro operador")
	ErrAmbulanceUnavailable = errors.New("la ambulancia no está disponible")
)

// EmergencyStore is the persistence surface the service needs.
type EmergencyStore interface {
	CreateSolicitud(ctx context.Context, sol *Solicitud) error
	GetSolicitud(ctx context.Context, id types.ID) (*Solicitud, error)
	ListSolicitudesPendientes(ctx context.Context) ([]Solicitud, error)
	SetSolicitudAtendida(ctx context.Context, room string) (bool, error)
	CreateEmergencia(ctx context.Context, em *Emergencia) error
	GetEmergencia(ctx context.Context, id types.ID) (*Emergencia, error)
	UpdateEstado(ctx context.Context, id types.ID, from, to Estado, version int, ambulanciaID *types.ID) (bool, error)
	AppendEvent(ctx context.Context, ev *Evento) error
	CreateOrden(ctx context.Context, o *OrdenDespacho) error
}

// Matcher picks the closest live ambulance of a given type.
type Matcher interface {
	FindNearest(ctx context.Context, incident types.Point, tipo location.VehicleType) (types.ID, bool, error)
}

// TaskScheduler runs the per-emergency streaming loops.
type TaskScheduler interface {
	StartEvaluating(emergenciaID, operadorID types.ID, tipo location.VehicleType) bool
	StopThenStartAssigned(emergenciaID, solicitanteID, ambulanciaID types.ID) bool
	Stop(emergenciaID types.ID) bool
}

// Fleet answers availability questions about registered ambulances.
type Fleet interface {
	Available(ctx context.Context, id types.ID) (bool, error)
}

// Notifier pushes an envelope through a feed.
type Notifier interface {
	Notify(msgType string, data any, targets ...types.ID)
}

// RoomProvider provisions a call room for a new request.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, maxParticipants int) error
}

// Geocoder resolves coordinates into a street address. Optional.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

type Service struct {
	store     EmergencyStore
	matcher   Matcher
	scheduler TaskScheduler
	fleet     Fleet

	operadores   Notifier // broadcast to every emergency operator
	solicitantes Notifier // by-id to requesters
	ambulancias  Notifier // by-id to ambulance crews

	rooms    RoomProvider
	roomName func() string
	geocoder Geocoder // nil when no maps key is configured
	log      zerolog.Logger
}

func NewService(
	store EmergencyStore,
	matcher Matcher,
	scheduler TaskScheduler,
	fleet Fleet,
	operadores, solicitantes, ambulancias Notifier,
	rooms RoomProvider,
	roomName func() string,
	geocoder Geocoder,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:        store,
		matcher:      matcher,
		scheduler:    scheduler,
		fleet:        fleet,
		operadores:   operadores,
		solicitantes: solicitantes,
		ambulancias:  ambulancias,
		rooms:        rooms,
		roomName:     roomName,
		geocoder:     geocoder,
		log:          log.With().Str("component", "emergency").Logger(),
	}
}

// SolicitarCommand carries a requester's inbound ambulance request.
type SolicitarCommand struct {
	SolicitanteID types.ID
	Nombre        string
	Telefono      string
	Ubicacion     types.Point
	Descripcion   string
}

// NuevaSolicitud is the payload broadcast to every emergency operator when
// a request arrives.
type NuevaSolicitud struct {
	SolicitudID   types.ID    `json:"solicitud_id"`
	SolicitanteID types.ID    `json:"solicitante_id"`
	Nombre        string      `json:"nombre"`
	Telefono      string      `json:"telefono,omitempty"`
	Ubicacion     types.Point `json:"ubicacion"`
	Direccion     string      `json:"direccion,omitempty"`
	Descripcion   string      `json:"descripcion,omitempty"`
	Room          string      `json:"room"`
}

// Solicitar persists a new request, provisions its call room, and announces
// it to every connected emergency operator.
func (s *Service) Solicitar(ctx context.Context, cmd SolicitarCommand) (*Solicitud, error) {
	if cmd.SolicitanteID <= 0 {
		return nil, fmt.Errorf("%w: solicitante_id requerido", ErrBadRequest)
	}
	if cmd.Nombre == "" {
		return nil, fmt.Errorf("%w: nombre requerido", ErrBadRequest)
	}
	if !cmd.Ubicacion.Valid() {
		return nil, fmt.Errorf("%w: ubicación fuera de rango", ErrBadRequest)
	}

	sol := &Solicitud{
		SolicitanteID: cmd.SolicitanteID,
		Nombre:        cmd.Nombre,
		Telefono:      cmd.Telefono,
		Ubicacion:     cmd.Ubicacion,
		Descripcion:   cmd.Descripcion,
		Room:          s.roomName(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateSolicitud(ctx, sol); err != nil {
		return nil, fmt.Errorf("guardar solicitud: %w", err)
	}

	// The room carries the requester↔operator call; two participants.
	if err := s.rooms.CreateRoom(ctx, sol.Room, 2); err != nil {
		s.log.Warn().Err(err).Str("room", sol.Room).Msg("crear sala")
	}

	notice := NuevaSolicitud{
		SolicitudID:   sol.ID,
		SolicitanteID: sol.SolicitanteID,
		Nombre:        sol.Nombre,
		Telefono:      sol.Telefono,
		Ubicacion:     sol.Ubicacion,
		Descripcion:   sol.Descripcion,
		Room:          sol.Room,
	}
	if s.geocoder != nil {
		dir, err := s.geocoder.ReverseGeocode(ctx, sol.Ubicacion)
		if err != nil {
			s.log.Warn().Err(err).Int64("solicitud", int64(sol.ID)).Msg("geocodificar ubicación")
		} else {
			notice.Direccion = dir
		}
	}
	s.operadores.Notify("nueva_solicitud", notice)

	s.log.Info().Int64("solicitud", int64(sol.ID)).Int64("solicitante", int64(sol.SolicitanteID)).
		Msg("solicitud creada")
	return sol, nil
}

// Solicitud returns one request by id.
func (s *Service) Solicitud(ctx context.Context, id types.ID) (*Solicitud, error) {
	return s.store.GetSolicitud(ctx, id)
}

// SolicitudesPendientes lists requests awaiting evaluation.
func (s *Service) SolicitudesPendientes(ctx context.Context) ([]Solicitud, error) {
	return s.store.ListSolicitudesPendientes(ctx)
}

// AtenderSala marks the request owning the room as attended and broadcasts
// the room's state change to the operators.
func (s *Service) AtenderSala(ctx context.Context, room string) error {
	ok, err := s.store.SetSolicitudAtendida(ctx, room)
	if err != nil {
		return fmt.Errorf("marcar sala atendida: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: sala %s", ErrNotFound, room)
	}
	s.operadores.Notify("sala_atendida", map[string]string{
		"room":   room,
		"estado": "atendida",
	})
	return nil
}

// ValorarCommand carries an operator's evaluation of a request.
type ValorarCommand struct {
	SolicitudID    types.ID
	OperadorID     types.ID
	TipoAmbulancia location.VehicleType
	Prioridad      Prioridad
	Descripcion    string
}

// ValorarResult reports what the evaluation produced.
type ValorarResult struct {
	Emergencia         *Emergencia `json:"emergencia"`
	AmbulanciaSugerida *types.ID   `json:"ambulancia_sugerida,omitempty"`
	StreamStarted      bool        `json:"stream_iniciado"`
}

// Valorar turns a request into a VALORADA emergency, tells the requester,
// suggests the nearest matching ambulance, and starts the candidate stream
// toward the evaluating operator.
func (s *Service) Valorar(ctx context.Context, cmd ValorarCommand) (*ValorarResult, error) {
	if cmd.OperadorID <= 0 {
		return nil, fmt.Errorf("%w: operador_id requerido", ErrBadRequest)
	}
	sol, err := s.store.GetSolicitud(ctx, cmd.SolicitudID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	em := &Emergencia{
		SolicitudID:    sol.ID,
		SolicitanteID:  sol.SolicitanteID,
		OperadorID:     cmd.OperadorID,
		Estado:         EstadoValorada,
		TipoAmbulancia: cmd.TipoAmbulancia,
		Prioridad:      cmd.Prioridad,
		Descripcion:    cmd.Descripcion,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateEmergencia(ctx, em); err != nil {
		return nil, fmt.Errorf("guardar emergencia: %w", err)
	}
	s.appendEvent(ctx, em.ID, EstadoCreada, EstadoValorada, "operador", &cmd.OperadorID)

	s.solicitantes.Notify("emergencia_valorada", map[string]any{
		"emergencia_id":  em.ID,
		"estado":         em.Estado,
		"nivelPrioridad": em.Prioridad,
	}, sol.SolicitanteID)

	res := &ValorarResult{Emergencia: em}

	// The suggestion is advisory; a cold cache or empty fleet is not an
	// evaluation failure.
	nearest, found, err := s.matcher.FindNearest(ctx, sol.Ubicacion, cmd.TipoAmbulancia)
	if err != nil {
		s.log.Warn().Err(err).Int64("emergencia", int64(em.ID)).Msg("sugerir ambulancia")
	} else if found {
		res.AmbulanciaSugerida = &nearest
	}

	res.StreamStarted = s.scheduler.StartEvaluating(em.ID, cmd.OperadorID, cmd.TipoAmbulancia)
	if !res.StreamStarted {
		s.log.Warn().Int64("emergencia", int64(em.ID)).Msg("stream de candidatas ya activo")
	}

	s.log.Info().Int64("emergencia", int64(em.ID)).Str("prioridad", string(em.Prioridad)).
		Str("tipo", string(em.TipoAmbulancia)).Msg("emergencia valorada")
	return res, nil
}

// DespacharCommand carries the dispatch decision for an evaluated emergency.
type DespacharCommand struct {
	EmergenciaID         types.ID
	AmbulanciaID         types.ID
	OperadorAmbulanciaID types.ID
	OperadorEmergenciaID types.ID
}

// Despachar assigns an ambulance: it validates the transition and the
// unit's availability, records the dispatch order, moves the emergency to
// ASIGNADA, sends the dispatch order to the crew, and hands the streaming
// task over from the operator to the requester.
func (s *Service) Despachar(ctx context.Context, cmd DespacharCommand) (*OrdenDespacho, error) {
	em, err := s.store.GetEmergencia(ctx, cmd.EmergenciaID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(em.Estado, EstadoAsignada) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidState, em.Estado, EstadoAsignada)
	}

	available, err := s.fleet.Available(ctx, cmd.AmbulanciaID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: ambulancia %d", ErrAmbulanceUnavailable, cmd.AmbulanciaID)
	}

	sol, err := s.store.GetSolicitud(ctx, em.SolicitudID)
	if err != nil {
		return nil, err
	}

	orden := &OrdenDespacho{
		EmergenciaID:         em.ID,
		AmbulanciaID:         cmd.AmbulanciaID,
		OperadorAmbulanciaID: cmd.OperadorAmbulanciaID,
		OperadorEmergenciaID: cmd.OperadorEmergenciaID,
		FechaHora:            time.Now().UTC(),
	}
	if err := s.store.CreateOrden(ctx, orden); err != nil {
		return nil, fmt.Errorf("guardar orden de despacho: %w", err)
	}

	ok, err := s.store.UpdateEstado(ctx, em.ID, em.Estado, EstadoAsignada, em.StatusVersion, &cmd.AmbulanciaID)
	if err != nil {
		return nil, fmt.Errorf("actualizar estado: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, em.ID, em.Estado, EstadoAsignada, "operador", &cmd.OperadorEmergenciaID)

	s.solicitantes.Notify("emergencia_despachada", map[string]any{
		"emergencia_id": em.ID,
		"ambulancia_id": cmd.AmbulanciaID,
		"estado":        EstadoAsignada,
	}, em.SolicitanteID)

	s.ambulancias.Notify("orden_despacho", map[string]any{
		"emergencia_id":  em.ID,
		"ubicacion":      sol.Ubicacion,
		"solicitante":    sol.Nombre,
		"descripcion":    em.Descripcion,
		"nivelPrioridad": em.Prioridad,
		"fechaHora":      orden.FechaHora.Format(time.RFC3339),
	}, cmd.AmbulanciaID)

	// Single critical section: the operator's candidate stream ends and
	// the requester's tracking stream begins atomically.
	s.scheduler.StopThenStartAssigned(em.ID, em.SolicitanteID, cmd.AmbulanciaID)

	s.log.Info().Int64("emergencia", int64(em.ID)).Int64("ambulancia", int64(cmd.AmbulanciaID)).
		Msg("ambulancia despachada")
	return orden, nil
}

// MarcarEnEscena records the assigned ambulance's arrival on scene.
func (s *Service) MarcarEnEscena(ctx context.Context, emergenciaID, actorID types.ID) (*Emergencia, error) {
	return s.transition(ctx, emergenciaID, EstadoEnEscena, "ambulancia", &actorID, false)
}

// Resolver closes an emergency as resolved and stops any streaming task.
func (s *Service) Resolver(ctx context.Context, emergenciaID, operadorID types.ID) (*Emergencia, error) {
	return s.transition(ctx, emergenciaID, EstadoResuelta, "operador", &operadorID, true)
}

// Cancelar aborts an emergency from any non-terminal state and stops any
// streaming task.
func (s *Service) Cancelar(ctx context.Context, emergenciaID, operadorID types.ID) (*Emergencia, error) {
	return s.transition(ctx, emergenciaID, EstadoCancelada, "operador", &operadorID, true)
}

// Emergencia returns one emergency by id.
func (s *Service) Emergencia(ctx context.Context, id types.ID) (*Emergencia, error) {
	return s.store.GetEmergencia(ctx, id)
}

func (s *Service) transition(ctx context.Context, id types.ID, to Estado, actorType string, actorID *types.ID, terminal bool) (*Emergencia, error) {
	em, err := s.store.GetEmergencia(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(em.Estado, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidState, em.Estado, to)
	}

	ok, err := s.store.UpdateEstado(ctx, em.ID, em.Estado, to, em.StatusVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("actualizar estado: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, em.ID, em.Estado, to, actorType, actorID)

	if terminal {
		s.scheduler.Stop(em.ID)
	}

	s.solicitantes.Notify("emergencia_actualizada", map[string]any{
		"emergencia_id": em.ID,
		"estado":        to,
	}, em.SolicitanteID)

	em.Estado = to
	em.StatusVersion++
	em.UpdatedAt = time.Now().UTC()

	s.log.Info().Int64("emergencia", int64(em.ID)).Str("estado", string(to)).Msg("estado actualizado")
	return em, nil
}

// appendEvent records the transition for auditing; a failed append is
// logged, not surfaced, because the state change already committed.
func (s *Service) appendEvent(ctx context.Context, emergenciaID types.ID, from, to Estado, actorType string, actorID *types.ID) {
	ev := &Evento{
		EmergenciaID: emergenciaID,
		FromEstado:   from,
		ToEstado:     to,
		ActorType:    actorType,
		ActorID:      actorID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int64("emergencia", int64(emergenciaID)).Msg("registrar evento")
	}
}
