package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/storage"
)

// CharacterRepository provides character persistence operations.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

const characterColumns = `id, account_id, name, zone_id, pos_x, pos_y, pos_z, heading,
	level, strength, agility, vitality, intellect, willpower, luck,
	current_health, max_health, current_stamina, max_stamina, current_mana, max_mana,
	appearance, last_seen_at, created_at, updated_at`

func scanCharacter(row pgx.Row) (*storage.Character, error) {
	var c storage.Character
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Name, &c.ZoneID,
		&c.Position.X, &c.Position.Y, &c.Position.Z, &c.Heading,
		&c.CoreStats.Level, &c.CoreStats.Strength, &c.CoreStats.Agility,
		&c.CoreStats.Vitality, &c.CoreStats.Intellect, &c.CoreStats.Willpower, &c.CoreStats.Luck,
		&c.Resources.CurrentHealth, &c.Resources.MaxHealth,
		&c.Resources.CurrentStamina, &c.Resources.MaxStamina,
		&c.Resources.CurrentMana, &c.Resources.MaxMana,
		&c.Appearance, &c.LastSeenAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new character and returns it with ID and timestamps set.
//
// Precondition: c.AccountID must reference an existing account; c.Name must be non-empty.
// Postcondition: Returns the created character or storage.ErrNameTaken on duplicate.
func (r *CharacterRepository) Create(ctx context.Context, c *storage.Character) (*storage.Character, error) {
	out, err := scanCharacter(r.db.QueryRow(ctx, `
		INSERT INTO characters
			(account_id, name, zone_id, pos_x, pos_y, pos_z, heading,
			 level, strength, agility, vitality, intellect, willpower, luck,
			 current_health, max_health, current_stamina, max_stamina, current_mana, max_mana,
			 appearance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING `+characterColumns,
		c.AccountID, c.Name, c.ZoneID, c.Position.X, c.Position.Y, c.Position.Z, c.Heading,
		c.CoreStats.Level, c.CoreStats.Strength, c.CoreStats.Agility,
		c.CoreStats.Vitality, c.CoreStats.Intellect, c.CoreStats.Willpower, c.CoreStats.Luck,
		c.Resources.CurrentHealth, c.Resources.MaxHealth,
		c.Resources.CurrentStamina, c.Resources.MaxStamina,
		c.Resources.CurrentMana, c.Resources.MaxMana,
		c.Appearance,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrNameTaken
		}
		return nil, fmt.Errorf("inserting character: %w", err)
	}
	return out, nil
}

// GetByID retrieves a character by its primary key.
//
// Postcondition: Returns the character or storage.ErrNotFound.
func (r *CharacterRepository) GetByID(ctx context.Context, id string) (*storage.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("character %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying character: %w", err)
	}
	return c, nil
}

// FindByName retrieves a character by name, case-insensitive.
func (r *CharacterRepository) FindByName(ctx context.Context, name string) (*storage.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE LOWER(name) = LOWER($1)`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("character %q: %w", name, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying character by name: %w", err)
	}
	return c, nil
}

// ListByAccount returns all characters for the given account, oldest first.
func (r *CharacterRepository) ListByAccount(ctx context.Context, accountID string) ([]*storage.Character, error) {
	return r.list(ctx, "account_id = $1", accountID)
}

// ListByZone returns all characters whose saved location is the given zone.
func (r *CharacterRepository) ListByZone(ctx context.Context, zoneID string) ([]*storage.Character, error) {
	return r.list(ctx, "zone_id = $1", zoneID)
}

func (r *CharacterRepository) list(ctx context.Context, where string, arg any) ([]*storage.Character, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE `+where+` ORDER BY created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	chars := make([]*storage.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// UpdatePosition persists a character's position and heading. Writes are
// last-writer-wins; the owning zone server holds the authoritative copy.
func (r *CharacterRepository) UpdatePosition(ctx context.Context, id string, pos zone.Position, heading float64) error {
	return r.exec(ctx, id, `
		UPDATE characters
		SET pos_x = $2, pos_y = $3, pos_z = $4, heading = $5, updated_at = NOW()
		WHERE id = $1`,
		pos.X, pos.Y, pos.Z, heading)
}

// UpdateResources persists all six resource pool values.
func (r *CharacterRepository) UpdateResources(ctx context.Context, id string, res storage.Resources) error {
	return r.exec(ctx, id, `
		UPDATE characters
		SET current_health = $2, max_health = $3,
		    current_stamina = $4, max_stamina = $5,
		    current_mana = $6, max_mana = $7,
		    updated_at = NOW()
		WHERE id = $1`,
		res.CurrentHealth, res.MaxHealth,
		res.CurrentStamina, res.MaxStamina,
		res.CurrentMana, res.MaxMana)
}

// UpdateHealth persists only the current health, clamped to [0, max_health].
func (r *CharacterRepository) UpdateHealth(ctx context.Context, id string, currentHealth float64) error {
	return r.exec(ctx, id, `
		UPDATE characters
		SET current_health = LEAST(GREATEST($2, 0), max_health), updated_at = NOW()
		WHERE id = $1`,
		currentHealth)
}

// UpdateLastSeen stamps the character's last seen time.
func (r *CharacterRepository) UpdateLastSeen(ctx context.Context, id string) error {
	return r.exec(ctx, id, `UPDATE characters SET last_seen_at = NOW() WHERE id = $1`)
}

func (r *CharacterRepository) exec(ctx context.Context, id, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("updating character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("character %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
