package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/storage"
)

// AbilityRepository reads ability definitions. Damage and healing specs are
// stored as JSON columns; pgx maps them straight onto the spec structs.
type AbilityRepository struct {
	db *pgxpool.Pool
}

// NewAbilityRepository creates an AbilityRepository backed by the given pool.
func NewAbilityRepository(db *pgxpool.Pool) *AbilityRepository {
	return &AbilityRepository{db: db}
}

const abilityColumns = `id, name, description, target_type, range_m, cooldown_s, atb_cost,
	is_builder, is_free, stamina_cost, mana_cost, health_cost, cast_time, aoe_radius,
	damage, healing`

func scanAbility(row pgx.Row) (*combat.Ability, error) {
	var a combat.Ability
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.TargetType, &a.Range, &a.Cooldown, &a.ATBCost,
		&a.IsBuilder, &a.IsFree, &a.StaminaCost, &a.ManaCost, &a.HealthCost,
		&a.CastTime, &a.AoERadius, &a.Damage, &a.Healing,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID retrieves an ability definition.
//
// Postcondition: Returns the ability or storage.ErrNotFound.
func (r *AbilityRepository) GetByID(ctx context.Context, id string) (*combat.Ability, error) {
	a, err := scanAbility(r.db.QueryRow(ctx,
		`SELECT `+abilityColumns+` FROM abilities WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ability %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying ability: %w", err)
	}
	return a, nil
}

// FindByName retrieves an ability by name, case-insensitive.
func (r *AbilityRepository) FindByName(ctx context.Context, name string) (*combat.Ability, error) {
	a, err := scanAbility(r.db.QueryRow(ctx,
		`SELECT `+abilityColumns+` FROM abilities WHERE LOWER(name) = LOWER($1)`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ability %q: %w", name, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying ability by name: %w", err)
	}
	return a, nil
}

// List returns every ability definition ordered by id.
func (r *AbilityRepository) List(ctx context.Context) ([]*combat.Ability, error) {
	rows, err := r.db.Query(ctx, `SELECT `+abilityColumns+` FROM abilities ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing abilities: %w", err)
	}
	defer rows.Close()

	abilities := make([]*combat.Ability, 0)
	for rows.Next() {
		a, err := scanAbility(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ability row: %w", err)
		}
		abilities = append(abilities, a)
	}
	return abilities, rows.Err()
}
