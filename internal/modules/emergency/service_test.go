// README: Emergency workflow tests with in-memory store and feed fakes.
package emergency

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"sirena/internal/modules/location"
	"sirena/internal/types"
)

// memStore is an in-memory EmergencyStore.
type memStore struct {
	solicitudes map[types.ID]*Solicitud
	emergencias map[types.ID]*Emergencia
	ordenes     []*OrdenDespacho
	eventos     []*Evento
	nextID      types.ID
}

func newMemStore() *memStore {
	return &memStore{
		solicitudes: make(map[types.ID]*Solicitud),
		emergencias: make(map[types.ID]*Emergencia),
		nextID:      1,
	}
}

func (m *memStore) CreateSolicitud(_ context.Context, sol *Solicitud) error {
	sol.ID = m.nextID
	m.nextID++
	cp := *sol
	m.solicitudes[sol.ID] = &cp
	return nil
}

func (m *memStore) GetSolicitud(_ context.Context, id types.ID) (*Solicitud, error) {
	sol, ok := m.solicitudes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sol
	return &cp, nil
}

func (m *memStore) ListSolicitudesPendientes(_ context.Context) ([]Solicitud, error) {
	var out []Solicitud
	for _, sol := range m.solicitudes {
		evaluated := false
		for _, em := range m.emergencias {
			if em.SolicitudID == sol.ID {
				evaluated = true
				break
			}
		}
		if !evaluated {
			out = append(out, *sol)
		}
	}
	return out, nil
}

func (m *memStore) SetSolicitudAtendida(_ context.Context, room string) (bool, error) {
	for _, sol := range m.solicitudes {
		if sol.Room == room {
			sol.Atendida = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateEmergencia(_ context.Context, em *Emergencia) error {
	em.ID = m.nextID
	m.nextID++
	cp := *em
	m.emergencias[em.ID] = &cp
	return nil
}

func (m *memStore) GetEmergencia(_ context.Context, id types.ID) (*Emergencia, error) {
	em, ok := m.emergencias[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *em
	return &cp, nil
}

func (m *memStore) UpdateEstado(_ context.Context, id types.ID, from, to Estado, version int, ambulanciaID *types.ID) (bool, error) {
	em, ok := m.emergencias[id]
	if !ok || em.Estado != from || em.StatusVersion != version {
		return false, nil
	}
	em.Estado = to
	em.StatusVersion++
	if ambulanciaID != nil {
		em.AmbulanciaID = ambulanciaID
	}
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, ev *Evento) error {
	m.eventos = append(m.eventos, ev)
	return nil
}

func (m *memStore) CreateOrden(_ context.Context, o *OrdenDespacho) error {
	o.ID = m.nextID
	m.nextID++
	m.ordenes = append(m.ordenes, o)
	return nil
}

type fakeMatcher struct {
	id    types.ID
	found bool
	err   error
}

func (f *fakeMatcher) FindNearest(_ context.Context, _ types.Point, _ location.VehicleType) (types.ID, bool, error) {
	return f.id, f.found, f.err
}

// fakeScheduler records start/stop calls.
type fakeScheduler struct {
	evaluating []types.ID
	assigned   []types.ID
	handovers  []types.ID
	stopped    []types.ID
}

func (f *fakeScheduler) StartEvaluating(emergenciaID, _ types.ID, _ location.VehicleType) bool {
	f.evaluating = append(f.evaluating, emergenciaID)
	return true
}

func (f *fakeScheduler) StopThenStartAssigned(emergenciaID, _, _ types.ID) bool {
	f.handovers = append(f.handovers, emergenciaID)
	return true
}

func (f *fakeScheduler) Stop(emergenciaID types.ID) bool {
	f.stopped = append(f.stopped, emergenciaID)
	return true
}

type fakeFleet struct {
	available map[types.ID]bool
}

func (f *fakeFleet) Available(_ context.Context, id types.ID) (bool, error) {
	return f.available[id], nil
}

// fakeNotifier records envelopes per type.
type fakeNotifier struct {
	messages []struct {
		Type    string
		Targets []types.ID
	}
}

func (f *fakeNotifier) Notify(msgType string, _ any, targets ...types.ID) {
	f.messages = append(f.messages, struct {
		Type    string
		Targets []types.ID
	}{msgType, targets})
}

func (f *fakeNotifier) got(msgType string) bool {
	for _, m := range f.messages {
		if m.Type == msgType {
			return true
		}
	}
	return false
}

type fakeRooms struct {
	created []string
}

func (f *fakeRooms) CreateRoom(_ context.Context, name string, _ int) error {
	f.created = append(f.created, name)
	return nil
}

type fixture struct {
	svc       *Service
	store     *memStore
	scheduler *fakeScheduler
	fleet     *fakeFleet
	ops       *fakeNotifier
	reqs      *fakeNotifier
	ambs      *fakeNotifier
	rooms     *fakeRooms
	matcher   *fakeMatcher
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		scheduler: &fakeScheduler{},
		fleet:     &fakeFleet{available: map[types.ID]bool{5: true}},
		ops:       &fakeNotifier{},
		reqs:      &fakeNotifier{},
		ambs:      &fakeNotifier{},
		rooms:     &fakeRooms{},
		matcher:   &fakeMatcher{id: 5, found: true},
	}
	f.svc = NewService(
		f.store, f.matcher, f.scheduler, f.fleet,
		f.ops, f.reqs, f.ambs,
		f.rooms, func() string { return "emergencia-test" }, nil,
		zerolog.Nop(),
	)
	return f
}

func (f *fixture) solicitar(t *testing.T) *Solicitud {
	t.Helper()
	sol, err := f.svc.Solicitar(context.Background(), SolicitarCommand{
		SolicitanteID: 20,
		Nombre:        "Ana",
		Telefono:      "3001234567",
		Ubicacion:     types.Point{Lat: 4.7110, Lng: -74.0721},
		Descripcion:   "dolor en el pecho",
	})
	if err != nil {
		t.Fatalf("Solicitar: %v", err)
	}
	return sol
}

func (f *fixture) valorar(t *testing.T, solicitudID types.ID) *Emergencia {
	t.Helper()
	res, err := f.svc.Valorar(context.Background(), ValorarCommand{
		SolicitudID:    solicitudID,
		OperadorID:     10,
		TipoAmbulancia: location.VehicleMedicalizada,
		Prioridad:      PrioridadAlta,
		Descripcion:    "posible infarto",
	})
	if err != nil {
		t.Fatalf("Valorar: %v", err)
	}
	return res.Emergencia
}

func (f *fixture) despachar(t *testing.T, emergenciaID types.ID) *OrdenDespacho {
	t.Helper()
	orden, err := f.svc.Despachar(context.Background(), DespacharCommand{
		EmergenciaID:         emergenciaID,
		AmbulanciaID:         5,
		OperadorAmbulanciaID: 30,
		OperadorEmergenciaID: 10,
	})
	if err != nil {
		t.Fatalf("Despachar: %v", err)
	}
	return orden
}

func TestSolicitar_CreatesRoomAndBroadcasts(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)

	if sol.ID == 0 {
		t.Fatal("solicitud not persisted")
	}
	if sol.Room != "emergencia-test" {
		t.Errorf("room = %q", sol.Room)
	}
	if len(f.rooms.created) != 1 || f.rooms.created[0] != "emergencia-test" {
		t.Errorf("rooms created = %v", f.rooms.created)
	}
	if !f.ops.got("nueva_solicitud") {
		t.Error("operators not notified of new request")
	}
}

func TestSolicitar_Validation(t *testing.T) {
	f := newFixture()
	cases := []SolicitarCommand{
		{SolicitanteID: 0, Nombre: "Ana", Ubicacion: types.Point{Lat: 4, Lng: -74}},
		{SolicitanteID: 1, Nombre: "", Ubicacion: types.Point{Lat: 4, Lng: -74}},
		{SolicitanteID: 1, Nombre: "Ana", Ubicacion: types.Point{Lat: 95, Lng: -74}},
	}
	for i, cmd := range cases {
		if _, err := f.svc.Solicitar(context.Background(), cmd); !errors.Is(err, ErrBadRequest) {
			t.Errorf("case %d: err = %v, want ErrBadRequest", i, err)
		}
	}
}

func TestValorar_CreatesEmergencyAndStartsStream(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)

	if em.Estado != EstadoValorada {
		t.Errorf("estado = %s, want VALORADA", em.Estado)
	}
	if len(f.scheduler.evaluating) != 1 || f.scheduler.evaluating[0] != em.ID {
		t.Errorf("evaluating stream not started: %v", f.scheduler.evaluating)
	}
	if !f.reqs.got("emergencia_valorada") {
		t.Error("requester not told about evaluation")
	}
}

func TestValorar_UnknownSolicitud(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Valorar(context.Background(), ValorarCommand{
		SolicitudID: 999, OperadorID: 10,
		TipoAmbulancia: location.VehicleBasica, Prioridad: PrioridadMedia,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestValorar_MatcherErrorIsAdvisoryOnly(t *testing.T) {
	f := newFixture()
	f.matcher.err = errors.New("redis down")
	sol := f.solicitar(t)

	res, err := f.svc.Valorar(context.Background(), ValorarCommand{
		SolicitudID: sol.ID, OperadorID: 10,
		TipoAmbulancia: location.VehicleBasica, Prioridad: PrioridadMedia,
	})
	if err != nil {
		t.Fatalf("matcher failure must not fail evaluation: %v", err)
	}
	if res.AmbulanciaSugerida != nil {
		t.Error("suggestion present despite matcher error")
	}
}

func TestDespachar_FullFlow(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)
	orden := f.despachar(t, em.ID)

	if orden.AmbulanciaID != 5 {
		t.Errorf("orden ambulancia = %d", orden.AmbulanciaID)
	}

	updated, _ := f.store.GetEmergencia(context.Background(), em.ID)
	if updated.Estado != EstadoAsignada {
		t.Errorf("estado = %s, want ASIGNADA", updated.Estado)
	}
	if updated.AmbulanciaID == nil || *updated.AmbulanciaID != 5 {
		t.Error("ambulancia_id not recorded on the emergency")
	}

	if !f.ambs.got("orden_despacho") {
		t.Error("crew did not receive the dispatch order")
	}
	if !f.reqs.got("emergencia_despachada") {
		t.Error("requester not told about dispatch")
	}
	if len(f.scheduler.handovers) != 1 || f.scheduler.handovers[0] != em.ID {
		t.Errorf("stream handover missing: %v", f.scheduler.handovers)
	}
}

func TestDespachar_RejectsUnavailableAmbulance(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)

	_, err := f.svc.Despachar(context.Background(), DespacharCommand{
		EmergenciaID: em.ID, AmbulanciaID: 99,
		OperadorAmbulanciaID: 30, OperadorEmergenciaID: 10,
	})
	if !errors.Is(err, ErrAmbulanceUnavailable) {
		t.Fatalf("err = %v, want ErrAmbulanceUnavailable", err)
	}
}

func TestDespachar_RejectsWrongState(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)
	f.despachar(t, em.ID)

	// Already ASIGNADA; dispatching again is an invalid transition.
	_, err := f.svc.Despachar(context.Background(), DespacharCommand{
		EmergenciaID: em.ID, AmbulanciaID: 5,
		OperadorAmbulanciaID: 30, OperadorEmergenciaID: 10,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestResolver_StopsStream(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)
	f.despachar(t, em.ID)

	resolved, err := f.svc.Resolver(context.Background(), em.ID, 10)
	if err != nil {
		t.Fatalf("Resolver: %v", err)
	}
	if resolved.Estado != EstadoResuelta {
		t.Errorf("estado = %s, want RESUELTA", resolved.Estado)
	}
	if len(f.scheduler.stopped) != 1 || f.scheduler.stopped[0] != em.ID {
		t.Errorf("stream not stopped on resolution: %v", f.scheduler.stopped)
	}
}

func TestCancelar_FromEvaluatedState(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)

	cancelled, err := f.svc.Cancelar(context.Background(), em.ID, 10)
	if err != nil {
		t.Fatalf("Cancelar: %v", err)
	}
	if cancelled.Estado != EstadoCancelada {
		t.Errorf("estado = %s, want CANCELADA", cancelled.Estado)
	}
}

func TestCancelar_TerminalStateRejected(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)
	f.despachar(t, em.ID)
	if _, err := f.svc.Resolver(context.Background(), em.ID, 10); err != nil {
		t.Fatalf("Resolver: %v", err)
	}

	_, err := f.svc.Cancelar(context.Background(), em.ID, 10)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState from RESUELTA", err)
	}
}

func TestMarcarEnEscena(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)
	em := f.valorar(t, sol.ID)
	f.despachar(t, em.ID)

	onScene, err := f.svc.MarcarEnEscena(context.Background(), em.ID, 5)
	if err != nil {
		t.Fatalf("MarcarEnEscena: %v", err)
	}
	if onScene.Estado != EstadoEnEscena {
		t.Errorf("estado = %s, want EN_ESCENA", onScene.Estado)
	}
	if len(f.scheduler.stopped) != 0 {
		t.Error("on-scene transition must not stop the tracking stream")
	}
}

func TestAtenderSala(t *testing.T) {
	f := newFixture()
	sol := f.solicitar(t)

	if err := f.svc.AtenderSala(context.Background(), sol.Room); err != nil {
		t.Fatalf("AtenderSala: %v", err)
	}
	if !f.ops.got("sala_atendida") {
		t.Error("operators not told the room was attended")
	}

	err := f.svc.AtenderSala(context.Background(), "emergencia-nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unknown room", err)
	}
}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to Estado
		want     bool
	}{
		{EstadoCreada, EstadoValorada, true},
		{EstadoValorada, EstadoAsignada, true},
		{EstadoAsignada, EstadoEnEscena, true},
		{EstadoAsignada, EstadoResuelta, true},
		{EstadoEnEscena, EstadoResuelta, true},
		{EstadoValorada, EstadoCancelada, true},
		{EstadoCreada, EstadoAsignada, false},
		{EstadoResuelta, EstadoCancelada, false},
		{EstadoCancelada, EstadoValorada, false},
		{EstadoValorada, EstadoResuelta, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
