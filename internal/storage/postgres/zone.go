package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwalk/server/internal/storage"
)

// ZoneRepository reads zone definitions.
type ZoneRepository struct {
	db *pgxpool.Pool
}

// NewZoneRepository creates a ZoneRepository backed by the given pool.
func NewZoneRepository(db *pgxpool.Pool) *ZoneRepository {
	return &ZoneRepository{db: db}
}

const zoneColumns = `id, name, description, spawn_x, spawn_y, spawn_z, created_at`

func scanZone(row pgx.Row) (*storage.ZoneRecord, error) {
	var z storage.ZoneRecord
	err := row.Scan(&z.ID, &z.Name, &z.Description, &z.Spawn.X, &z.Spawn.Y, &z.Spawn.Z, &z.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

// GetByID retrieves a zone definition.
//
// Postcondition: Returns the zone or storage.ErrNotFound.
func (r *ZoneRepository) GetByID(ctx context.Context, id string) (*storage.ZoneRecord, error) {
	z, err := scanZone(r.db.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("zone %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying zone: %w", err)
	}
	return z, nil
}

// List returns every zone definition ordered by id.
func (r *ZoneRepository) List(ctx context.Context) ([]*storage.ZoneRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+zoneColumns+` FROM zones ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	defer rows.Close()

	zones := make([]*storage.ZoneRecord, 0)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning zone row: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
