// README: Fleet store backed by PostgreSQL; ambulance identity, vehicle type,
// and availability flag.
package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sirena/internal/types"
)

var ErrUnknownAmbulance = errors.New("ambulancia no encontrada")

type Fleet struct {
	db *pgxpool.Pool
}

func NewFleet(db *pgxpool.Pool) *Fleet {
	return &Fleet{db: db}
}

// VehicleType returns the registered type for an ambulance, validating that
// the unit exists before any cache write is attempted.
func (f *Fleet) VehicleType(ctx context.Context, id types.ID) (VehicleType, error) {
	row := f.db.QueryRow(ctx, `SELECT tipo FROM ambulancias WHERE id = $1`, int64(id))

	var tipo string
	err := row.Scan(&tipo)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnknownAmbulance
	}
	if err != nil {
		return "", err
	}
	return VehicleType(tipo), nil
}

// SetAvailability flips the unit's availability flag.
func (f *Fleet) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := f.db.Exec(ctx,
		`UPDATE ambulancias SET disponibilidad = $2 WHERE id = $1`,
		int64(id), available,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAmbulance
	}
	return nil
}

// Available reports the unit's availability flag.
func (f *Fleet) Available(ctx context.Context, id types.ID) (bool, error) {
	row := f.db.QueryRow(ctx, `SELECT disponibilidad FROM ambulancias WHERE id = $1`, int64(id))

	var available bool
	err := row.Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrUnknownAmbulance
	}
	if err != nil {
		return false, err
	}
	return available, nil
}
