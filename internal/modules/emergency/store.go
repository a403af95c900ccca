// README: Emergency store backed by PostgreSQL (solicitudes, emergencias,
// ordenes_despacho, emergencia_eventos).
package emergency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sirena/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSolicitud(ctx context.Context, sol *Solicitud) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO solicitudes (
			solicitante_id, nombre, telefono, latitud, longitud,
			descripcion, room, atendida, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		int64(sol.SolicitanteID), sol.Nombre, sol.Telefono,
		sol.Ubicacion.Lat, sol.Ubicacion.Lng,
		sol.Descripcion, sol.Room, sol.Atendida, sol.CreatedAt,
	)
	return row.Scan(&sol.ID)
}

func (s *Store) GetSolicitud(ctx context.Context, id types.ID) (*Solicitud, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, solicitante_id, nombre, telefono, latitud, longitud,
		       descripcion, room, atendida, created_at
		FROM solicitudes
		WHERE id = $1`, int64(id),
	)
	return scanSolicitud(row)
}

// ListSolicitudesPendientes returns requests that no emergency references
// yet, oldest first, for the operator queue.
func (s *Store) ListSolicitudesPendientes(ctx context.Context) ([]Solicitud, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.solicitante_id, s.nombre, s.telefono, s.latitud, s.longitud,
		       s.descripcion, s.room, s.atendida, s.created_at
		FROM solicitudes s
		LEFT JOIN emergencias e ON e.solicitud_id = s.id
		WHERE e.id IS NULL
		ORDER BY s.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Solicitud
	for rows.Next() {
		sol, err := scanSolicitud(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sol)
	}
	return out, rows.Err()
}

// SetSolicitudAtendida marks the request whose room matches as attended;
// reports whether a row matched.
func (s *Store) SetSolicitudAtendida(ctx context.Context, room string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE solicitudes SET atendida = TRUE WHERE room = $1`, room)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CreateEmergencia(ctx context.Context, em *Emergencia) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO emergencias (
			solicitud_id, solicitante_id, operador_id, ambulancia_id,
			estado, status_version, tipo_ambulancia, prioridad, descripcion,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		int64(em.SolicitudID), int64(em.SolicitanteID), int64(em.OperadorID),
		toInt64Ptr(em.AmbulanciaID),
		string(em.Estado), em.StatusVersion,
		string(em.TipoAmbulancia), string(em.Prioridad), em.Descripcion,
		em.CreatedAt, em.UpdatedAt,
	)
	return row.Scan(&em.ID)
}

func (s *Store) GetEmergencia(ctx context.Context, id types.ID) (*Emergencia, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, solicitud_id, solicitante_id, operador_id, ambulancia_id,
		       estado, status_version, tipo_ambulancia, prioridad, descripcion,
		       created_at, updated_at
		FROM emergencias
		WHERE id = $1`, int64(id),
	)

	var em Emergencia
	var ambulanciaID *int64
	err := row.Scan(
		&em.ID, &em.SolicitudID, &em.SolicitanteID, &em.OperadorID, &ambulanciaID,
		&em.Estado, &em.StatusVersion, &em.TipoAmbulancia, &em.Prioridad, &em.Descripcion,
		&em.CreatedAt, &em.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ambulanciaID != nil {
		id := types.ID(*ambulanciaID)
		em.AmbulanciaID = &id
	}
	return &em, nil
}

// UpdateEstado applies a state transition with optimistic concurrency;
// returns false when another writer advanced the row first.
func (s *Store) UpdateEstado(ctx context.Context, id types.ID, from, to Estado, version int, ambulanciaID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE emergencias
		SET estado = $3, status_version = status_version + 1,
		    ambulancia_id = COALESCE($5, ambulancia_id), updated_at = $6
		WHERE id = $1 AND estado = $2 AND status_version = $4`,
		int64(id), string(from), string(to), version,
		toInt64Ptr(ambulanciaID), time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *Evento) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO emergencia_eventos (
			emergencia_id, from_estado, to_estado, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(ev.EmergenciaID), string(ev.FromEstado), string(ev.ToEstado),
		ev.ActorType, toInt64Ptr(ev.ActorID), ev.CreatedAt,
	)
	return err
}

func (s *Store) CreateOrden(ctx context.Context, o *OrdenDespacho) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO ordenes_despacho (
			emergencia_id, ambulancia_id, operador_ambulancia_id,
			operador_emergencia_id, fecha_hora
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		int64(o.EmergenciaID), int64(o.AmbulanciaID), int64(o.OperadorAmbulanciaID),
		int64(o.OperadorEmergenciaID), o.FechaHora,
	)
	return row.Scan(&o.ID)
}

func scanSolicitud(row pgx.Row) (*Solicitud, error) {
	var sol Solicitud
	err := row.Scan(
		&sol.ID, &sol.SolicitanteID, &sol.Nombre, &sol.Telefono,
		&sol.Ubicacion.Lat, &sol.Ubicacion.Lng,
		&sol.Descripcion, &sol.Room, &sol.Atendida, &sol.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sol, nil
}

func toInt64Ptr(id *types.ID) *int64 {
	if id == nil {
		return nil
	}
	n := int64(*id)
	return &n
}
