// Package storage defines the persistence models and service interfaces the
// game servers depend on. Implementations live in the postgres subpackage;
// an in-memory variant backs tests and standalone mode.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/zone"
)

// ErrNotFound is returned when a lookup yields no row.
var ErrNotFound = errors.New("not found")

// ErrNameTaken is returned when a unique name constraint is violated.
var ErrNameTaken = errors.New("name already taken")

// Account is a login identity owning up to MaxCharacters characters.
type Account struct {
	ID            string
	Username      string
	PasswordHash  string
	IsGuest       bool
	MaxCharacters int
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

// Resources are a character's spendable pools. Current values are clamped
// to [0, max] by writers.
type Resources struct {
	CurrentHealth  float64 `json:"currentHealth"`
	MaxHealth      float64 `json:"maxHealth"`
	CurrentStamina float64 `json:"currentStamina"`
	MaxStamina     float64 `json:"maxStamina"`
	CurrentMana    float64 `json:"currentMana"`
	MaxMana        float64 `json:"maxMana"`
}

// DefaultCoreStats is the baseline statline for a freshly created
// character or a companion whose stored stats are partial.
func DefaultCoreStats() combat.CoreStats {
	return combat.CoreStats{
		Level: 1, Strength: 10, Agility: 10, Vitality: 10,
		Intellect: 10, Willpower: 10, Luck: 10,
	}
}

// Character is a player-controlled persistent entity.
type Character struct {
	ID         string
	AccountID  string
	Name       string
	ZoneID     string
	Position   zone.Position
	Heading    float64
	CoreStats  combat.CoreStats
	Resources  Resources
	Appearance map[string]string
	LastSeenAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Companion is an NPC entity that an external controller can inhabit.
type Companion struct {
	ID          string
	Name        string
	ZoneID      string
	Position    zone.Position
	CoreStats   combat.CoreStats
	Resources   Resources
	Personality string
	CreatedAt   time.Time
}

// ZoneRecord is the static definition of one zone.
type ZoneRecord struct {
	ID          string
	Name        string
	Description string
	Spawn       zone.Position
	CreatedAt   time.Time
}

// InventoryItem is one stack in a character's inventory.
type InventoryItem struct {
	ID          string
	CharacterID string
	ItemID      string
	Name        string
	Quantity    int
	Slot        string
	CreatedAt   time.Time
}

// AccountService manages login identities.
type AccountService interface {
	Create(ctx context.Context, username, password string) (*Account, error)
	CreateGuest(ctx context.Context) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// CharacterService manages persistent characters.
//
// Name lookups are case-insensitive. Position and resource writes are
// last-writer-wins; the owning zone server holds the authoritative copy.
type CharacterService interface {
	Create(ctx context.Context, c *Character) (*Character, error)
	GetByID(ctx context.Context, id string) (*Character, error)
	FindByName(ctx context.Context, name string) (*Character, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Character, error)
	ListByZone(ctx context.Context, zoneID string) ([]*Character, error)
	UpdatePosition(ctx context.Context, id string, pos zone.Position, heading float64) error
	UpdateResources(ctx context.Context, id string, res Resources) error
	UpdateHealth(ctx context.Context, id string, currentHealth float64) error
	UpdateLastSeen(ctx context.Context, id string) error
}

// CompanionService manages NPC companions.
type CompanionService interface {
	GetByID(ctx context.Context, id string) (*Companion, error)
	FindByName(ctx context.Context, name string) (*Companion, error)
	ListByZone(ctx context.Context, zoneID string) ([]*Companion, error)
	UpdatePosition(ctx context.Context, id string, pos zone.Position) error
	UpdateHealth(ctx context.Context, id string, currentHealth float64) error
}

// ZoneService reads zone definitions.
type ZoneService interface {
	GetByID(ctx context.Context, id string) (*ZoneRecord, error)
	List(ctx context.Context) ([]*ZoneRecord, error)
}

// AbilityService reads ability definitions.
type AbilityService interface {
	GetByID(ctx context.Context, id string) (*combat.Ability, error)
	FindByName(ctx context.Context, name string) (*combat.Ability, error)
	List(ctx context.Context) ([]*combat.Ability, error)
}

// InventoryService manages character inventories.
type InventoryService interface {
	ListByCharacter(ctx context.Context, characterID string) ([]*InventoryItem, error)
	Add(ctx context.Context, item *InventoryItem) (*InventoryItem, error)
	UpdateQuantity(ctx context.Context, id string, quantity int) error
	Remove(ctx context.Context, id string) error
}

// Store bundles every persistence service.
type Store struct {
	Accounts   AccountService
	Characters CharacterService
	Companions CompanionService
	Zones      ZoneService
	Abilities  AbilityService
	Inventory  InventoryService
}

// AbilityCatalogAdapter bridges an AbilityService to the combat catalog's
// store interface.
type AbilityCatalogAdapter struct {
	Service AbilityService
}

func (a AbilityCatalogAdapter) GetAbility(ctx context.Context, id string) (combat.Ability, bool, error) {
	ab, err := a.Service.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return combat.Ability{}, false, nil
	}
	if err != nil {
		return combat.Ability{}, false, err
	}
	return *ab, true, nil
}

func (a AbilityCatalogAdapter) FindAbilityByName(ctx context.Context, name string) (combat.Ability, bool, error) {
	ab, err := a.Service.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return combat.Ability{}, false, nil
	}
	if err != nil {
		return combat.Ability{}, false, err
	}
	return *ab, true, nil
}
