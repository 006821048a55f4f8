package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/storage"
)

// CompanionRepository provides companion persistence operations. Companion
// core stats live in a stats JSON column; absent fields default to 10.
type CompanionRepository struct {
	db *pgxpool.Pool
}

// NewCompanionRepository creates a CompanionRepository backed by the given pool.
func NewCompanionRepository(db *pgxpool.Pool) *CompanionRepository {
	return &CompanionRepository{db: db}
}

const companionColumns = `id, name, zone_id, pos_x, pos_y, pos_z, stats,
	current_health, max_health, personality, created_at`

// DefaultCompanionStats is the baseline used for stats the JSON omits.
func DefaultCompanionStats() combat.CoreStats {
	return combat.CoreStats{
		Level: 1, Strength: 10, Agility: 10, Vitality: 10,
		Intellect: 10, Willpower: 10, Luck: 10,
	}
}

func scanCompanion(row pgx.Row) (*storage.Companion, error) {
	var c storage.Companion
	var statsJSON []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.ZoneID,
		&c.Position.X, &c.Position.Y, &c.Position.Z, &statsJSON,
		&c.Resources.CurrentHealth, &c.Resources.MaxHealth,
		&c.Personality, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CoreStats = DefaultCompanionStats()
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &c.CoreStats); err != nil {
			return nil, fmt.Errorf("decoding companion stats: %w", err)
		}
	}
	return &c, nil
}

// GetByID retrieves a companion by primary key.
//
// Postcondition: Returns the companion or storage.ErrNotFound.
func (r *CompanionRepository) GetByID(ctx context.Context, id string) (*storage.Companion, error) {
	c, err := scanCompanion(r.db.QueryRow(ctx,
		`SELECT `+companionColumns+` FROM companions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("companion %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying companion: %w", err)
	}
	return c, nil
}

// FindByName retrieves a companion by name, case-insensitive.
func (r *CompanionRepository) FindByName(ctx context.Context, name string) (*storage.Companion, error) {
	c, err := scanCompanion(r.db.QueryRow(ctx,
		`SELECT `+companionColumns+` FROM companions WHERE LOWER(name) = LOWER($1)`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("companion %q: %w", name, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying companion by name: %w", err)
	}
	return c, nil
}

// ListByZone returns all companions homed in the given zone.
func (r *CompanionRepository) ListByZone(ctx context.Context, zoneID string) ([]*storage.Companion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+companionColumns+` FROM companions WHERE zone_id = $1 ORDER BY id ASC`, zoneID)
	if err != nil {
		return nil, fmt.Errorf("listing companions: %w", err)
	}
	defer rows.Close()

	comps := make([]*storage.Companion, 0)
	for rows.Next() {
		c, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning companion row: %w", err)
		}
		comps = append(comps, c)
	}
	return comps, rows.Err()
}

// UpdatePosition persists a companion's position.
func (r *CompanionRepository) UpdatePosition(ctx context.Context, id string, pos zone.Position) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE companions SET pos_x = $2, pos_y = $3, pos_z = $4 WHERE id = $1`,
		id, pos.X, pos.Y, pos.Z)
	if err != nil {
		return fmt.Errorf("updating companion position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("companion %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// UpdateHealth persists only the current health, clamped to [0, max_health].
func (r *CompanionRepository) UpdateHealth(ctx context.Context, id string, currentHealth float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE companions
		SET current_health = LEAST(GREATEST($2, 0), max_health)
		WHERE id = $1`,
		id, currentHealth)
	if err != nil {
		return fmt.Errorf("updating companion health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("companion %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
