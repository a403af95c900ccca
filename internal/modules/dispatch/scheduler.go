// README: Per-emergency streaming task scheduler. At most one task per
// emergency; task table and target reverse index live behind one mutex so
// the evaluate→dispatch handover is a single critical section.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sirena/internal/modules/location"
	"sirena/internal/types"
)

// Feed is the delivery surface a task pushes through.
type Feed interface {
	Notify(msgType string, data any, targets ...types.ID)
	IsConnected(id types.ID) bool
}

// CandidateSource re-runs the type filter over the live cache; the
// evaluating-phase stream calls it on every tick so newly connected units
// appear and dropped ones vanish.
type CandidateSource interface {
	LiveCandidates(ctx context.Context, tipo location.VehicleType) ([]location.Record, error)
}

// PositionSource reads a single ambulance's live position.
type PositionSource interface {
	Get(ctx context.Context, id types.ID) (*location.Record, error)
}

type task struct {
	target  types.ID
	indexed bool // registered in bySolicitante
	cancel  context.CancelFunc
	done    chan struct{}
}

// Scheduler owns one cancellable background loop per active emergency.
// Operator ids and solicitante ids are distinct id spaces, so the reverse
// index holds solicitante targets only; evaluating tasks end through the
// per-tick connectivity check instead.
type Scheduler struct {
	mu            sync.Mutex
	tasks         map[types.ID]*task    // emergencia id -> task
	bySolicitante map[types.ID]types.ID // solicitante id -> emergencia id

	operadores   Feed
	solicitantes Feed
	candidates   CandidateSource
	positions    PositionSource
	tick         time.Duration
	log          zerolog.Logger
}

func NewScheduler(operadores, solicitantes Feed, candidates CandidateSource, positions PositionSource, tick time.Duration, log zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		tasks:         make(map[types.ID]*task),
		bySolicitante: make(map[types.ID]types.ID),
		operadores:    operadores,
		solicitantes:  solicitantes,
		candidates:    candidates,
		positions:     positions,
		tick:          tick,
		log:           log.With().Str("component", "dispatch").Logger(),
	}
}

// StartEvaluating begins streaming the live candidate set for the requested
// vehicle type to the evaluating operator, roughly once per tick. Returns
// false if a task already exists for the emergency.
func (s *Scheduler) StartEvaluating(emergenciaID, operadorID types.ID, tipo location.VehicleType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(emergenciaID, operadorID, false, func(ctx context.Context) {
		s.evaluatingLoop(ctx, emergenciaID, operadorID, tipo)
	})
}

// StartAssigned begins streaming the assigned ambulance's position to the
// original solicitante. Returns false if a task already exists for the
// emergency.
func (s *Scheduler) StartAssigned(emergenciaID, solicitanteID, ambulanciaID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(emergenciaID, solicitanteID, true, func(ctx context.Context) {
		s.assignedLoop(ctx, emergenciaID, solicitanteID, ambulanciaID)
	})
}

// StopThenStartAssigned performs the evaluate→dispatch handover: the
// evaluating task is cancelled and the assigned task registered under the
// same lock, so at no point do two tasks — or zero tasks — exist for the
// emergency.
func (s *Scheduler) StopThenStartAssigned(emergenciaID, solicitanteID, ambulanciaID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(emergenciaID)
	return s.startLocked(emergenciaID, solicitanteID, true, func(ctx context.Context) {
		s.assignedLoop(ctx, emergenciaID, solicitanteID, ambulanciaID)
	})
}

// Stop cancels the emergency's task if one is running; reports whether a
// task existed. Idempotent.
func (s *Scheduler) Stop(emergenciaID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(emergenciaID)
}

// StopByTarget locates the assigned-phase task addressed to a solicitante
// through the reverse index and stops it; used when the solicitante's last
// connection goes away. Evaluating tasks are never indexed here.
func (s *Scheduler) StopByTarget(target types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	emergenciaID, ok := s.bySolicitante[target]
	if !ok {
		return false
	}
	return s.removeLocked(emergenciaID)
}

// Active reports whether a task is running for the emergency.
func (s *Scheduler) Active(emergenciaID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[emergenciaID]
	return ok
}

// ActiveCount returns the number of running tasks.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown cancels every task and waits for the loops to wind down.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	stopped := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		t.cancel()
		stopped = append(stopped, t)
		delete(s.tasks, id)
		if t.indexed {
			delete(s.bySolicitante, t.target)
		}
	}
	s.mu.Unlock()

	for _, t := range stopped {
		<-t.done
	}
}

// startLocked registers and spawns a task; indexed tasks also join the
// solicitante reverse index. Caller holds mu.
func (s *Scheduler) startLocked(emergenciaID, target types.ID, indexed bool, loop func(ctx context.Context)) bool {
	if _, exists := s.tasks[emergenciaID]; exists {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{target: target, indexed: indexed, cancel: cancel, done: make(chan struct{})}
	s.tasks[emergenciaID] = t
	if indexed {
		s.bySolicitante[target] = emergenciaID
	}
	go s.run(ctx, emergenciaID, t, loop)
	return true
}

// removeLocked cancels and unregisters the emergency's task. Caller holds mu.
func (s *Scheduler) removeLocked(emergenciaID types.ID) bool {
	t, ok := s.tasks[emergenciaID]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.tasks, emergenciaID)
	if t.indexed && s.bySolicitante[t.target] == emergenciaID {
		delete(s.bySolicitante, t.target)
	}
	return true
}

// run hosts a task loop and guarantees cleanup. A panic inside one
// emergency's loop is contained here and cannot reach any other task.
func (s *Scheduler) run(ctx context.Context, emergenciaID types.ID, t *task, loop func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Int64("emergencia", int64(emergenciaID)).Msg("task panicked")
		}
		s.mu.Lock()
		if cur, ok := s.tasks[emergenciaID]; ok && cur == t {
			delete(s.tasks, emergenciaID)
			if t.indexed && s.bySolicitante[t.target] == emergenciaID {
				delete(s.bySolicitante, t.target)
			}
		}
		s.mu.Unlock()
		close(t.done)
	}()
	loop(ctx)
}

type ambulancePosition struct {
	ID       types.ID `json:"id"`
	Latitud  float64  `json:"latitud"`
	Longitud float64  `json:"longitud"`
}

type candidatesPayload struct {
	EmergenciaID types.ID            `json:"emergencia_id"`
	Ambulancias  []ambulancePosition `json:"ambulancias"`
}

type positionPayload struct {
	Latitud  float64 `json:"latitud"`
	Longitud float64 `json:"longitud"`
}

// evaluatingLoop streams every type-matching live ambulance to the
// evaluating operator until cancelled or the operator disconnects.
func (s *Scheduler) evaluatingLoop(ctx context.Context, emergenciaID, operadorID types.ID, tipo location.VehicleType) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if !s.operadores.IsConnected(operadorID) {
			s.log.Info().Int64("emergencia", int64(emergenciaID)).Int64("operador", int64(operadorID)).
				Msg("operador sin conexiones, deteniendo info_ambulancias")
			return
		}
		s.pushCandidates(ctx, emergenciaID, operadorID, tipo)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) pushCandidates(ctx context.Context, emergenciaID, operadorID types.ID, tipo location.VehicleType) {
	recs, err := s.candidates.LiveCandidates(ctx, tipo)
	if err != nil {
		// Transient cache trouble must not kill the stream.
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Int64("emergencia", int64(emergenciaID)).Msg("leer candidatas")
		}
		return
	}

	ambulancias := make([]ambulancePosition, 0, len(recs))
	for _, rec := range recs {
		ambulancias = append(ambulancias, ambulancePosition{
			ID:       rec.AmbulanceID,
			Latitud:  rec.Latitud,
			Longitud: rec.Longitud,
		})
	}
	s.operadores.Notify("info_ambulancias", candidatesPayload{
		EmergenciaID: emergenciaID,
		Ambulancias:  ambulancias,
	}, operadorID)
}

// assignedLoop streams the one assigned ambulance's position to the
// solicitante, pushing the first fix immediately, until cancelled or the
// solicitante disconnects.
func (s *Scheduler) assignedLoop(ctx context.Context, emergenciaID, solicitanteID, ambulanciaID types.ID) {
	s.pushPosition(ctx, emergenciaID, solicitanteID, ambulanciaID)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.solicitantes.IsConnected(solicitanteID) {
			s.log.Info().Int64("emergencia", int64(emergenciaID)).Int64("solicitante", int64(solicitanteID)).
				Msg("solicitante sin conexiones, deteniendo ubicacion_ambulancia")
			return
		}
		s.pushPosition(ctx, emergenciaID, solicitanteID, ambulanciaID)
	}
}

func (s *Scheduler) pushPosition(ctx context.Context, emergenciaID, solicitanteID, ambulanciaID types.ID) {
	rec, err := s.positions.Get(ctx, ambulanciaID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Int64("emergencia", int64(emergenciaID)).Msg("leer ubicación de ambulancia")
		}
		return
	}
	if rec == nil {
		// No fix yet; try again next tick.
		return
	}
	s.solicitantes.Notify("ubicacion_ambulancia", positionPayload{
		Latitud:  rec.Latitud,
		Longitud: rec.Longitud,
	}, solicitanteID)
}
