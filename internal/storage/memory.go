package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/zone"
)

// MemoryStore is an in-memory Store used by tests and standalone mode. All
// methods are safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*Account
	characters map[string]*Character
	companions map[string]*Companion
	zones      map[string]*ZoneRecord
	abilities  map[string]*combat.Ability
	inventory  map[string]*InventoryItem
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*Account),
		characters: make(map[string]*Character),
		companions: make(map[string]*Companion),
		zones:      make(map[string]*ZoneRecord),
		abilities:  make(map[string]*combat.Ability),
		inventory:  make(map[string]*InventoryItem),
		now:        time.Now,
	}
}

// Services returns the Store view of this MemoryStore.
func (m *MemoryStore) Services() Store {
	return Store{
		Accounts:   memoryAccounts{m},
		Characters: memoryCharacters{m},
		Companions: memoryCompanions{m},
		Zones:      memoryZones{m},
		Abilities:  memoryAbilities{m},
		Inventory:  memoryInventory{m},
	}
}

// SeedZone inserts a zone record directly, for tests and seeding.
func (m *MemoryStore) SeedZone(z ZoneRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z.CreatedAt.IsZero() {
		z.CreatedAt = m.now()
	}
	m.zones[z.ID] = &z
}

// SeedCompanion inserts a companion record directly, for tests and seeding.
func (m *MemoryStore) SeedCompanion(c Companion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.companions[c.ID] = &c
}

// SeedAbility inserts an ability definition directly, for tests and seeding.
func (m *MemoryStore) SeedAbility(a combat.Ability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abilities[a.ID] = &a
}

func clampResources(r Resources) Resources {
	r.CurrentHealth = clamp(r.CurrentHealth, 0, r.MaxHealth)
	r.CurrentStamina = clamp(r.CurrentStamina, 0, r.MaxStamina)
	r.CurrentMana = clamp(r.CurrentMana, 0, r.MaxMana)
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type memoryAccounts struct{ m *MemoryStore }

func (s memoryAccounts) Create(_ context.Context, username, password string) (*Account, error) {
	return s.create(username, password, false)
}

func (s memoryAccounts) CreateGuest(_ context.Context) (*Account, error) {
	return s.create("guest-"+uuid.NewString()[:8], "", true)
}

func (s memoryAccounts) create(username, password string, guest bool) (*Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, a := range s.m.accounts {
		if strings.EqualFold(a.Username, username) {
			return nil, ErrNameTaken
		}
	}
	hash := ""
	if password != "" {
		var err error
		hash, err = HashPassword(password)
		if err != nil {
			return nil, err
		}
	}
	a := &Account{
		ID:            uuid.NewString(),
		Username:      username,
		PasswordHash:  hash,
		IsGuest:       guest,
		MaxCharacters: 5,
		CreatedAt:     s.m.now(),
	}
	s.m.accounts[a.ID] = a
	out := *a
	return &out, nil
}

func (s memoryAccounts) GetByID(_ context.Context, id string) (*Account, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	a, ok := s.m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (s memoryAccounts) GetByUsername(_ context.Context, username string) (*Account, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, a := range s.m.accounts {
		if strings.EqualFold(a.Username, username) {
			out := *a
			return &out, nil
		}
	}
	return nil, fmt.Errorf("account %q: %w", username, ErrNotFound)
}

func (s memoryAccounts) UpdateLastLogin(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	a.LastLoginAt = s.m.now()
	return nil
}

type memoryCharacters struct{ m *MemoryStore }

func (s memoryCharacters) Create(_ context.Context, c *Character) (*Character, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.characters {
		if strings.EqualFold(existing.Name, c.Name) {
			return nil, ErrNameTaken
		}
	}
	out := *c
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := s.m.now()
	out.CreatedAt = now
	out.UpdatedAt = now
	out.LastSeenAt = now
	stored := out
	s.m.characters[stored.ID] = &stored
	return &out, nil
}

func (s memoryCharacters) GetByID(_ context.Context, id string) (*Character, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	c, ok := s.m.characters[id]
	if !ok {
		return nil, fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s memoryCharacters) FindByName(_ context.Context, name string) (*Character, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, c := range s.m.characters {
		if strings.EqualFold(c.Name, name) {
			out := *c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("character %q: %w", name, ErrNotFound)
}

func (s memoryCharacters) ListByAccount(_ context.Context, accountID string) ([]*Character, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []*Character
	for _, c := range s.m.characters {
		if c.AccountID == accountID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sortCharacters(out)
	return out, nil
}

func (s memoryCharacters) ListByZone(_ context.Context, zoneID string) ([]*Character, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []*Character
	for _, c := range s.m.characters {
		if c.ZoneID == zoneID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sortCharacters(out)
	return out, nil
}

func sortCharacters(cs []*Character) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

func (s memoryCharacters) UpdatePosition(_ context.Context, id string, pos zone.Position, heading float64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.characters[id]
	if !ok {
		return fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	c.Position = pos
	c.Heading = heading
	c.UpdatedAt = s.m.now()
	return nil
}

func (s memoryCharacters) UpdateResources(_ context.Context, id string, res Resources) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.characters[id]
	if !ok {
		return fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	c.Resources = clampResources(res)
	c.UpdatedAt = s.m.now()
	return nil
}

func (s memoryCharacters) UpdateHealth(_ context.Context, id string, currentHealth float64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.characters[id]
	if !ok {
		return fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	c.Resources.CurrentHealth = clamp(currentHealth, 0, c.Resources.MaxHealth)
	c.UpdatedAt = s.m.now()
	return nil
}

func (s memoryCharacters) UpdateLastSeen(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.characters[id]
	if !ok {
		return fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	c.LastSeenAt = s.m.now()
	return nil
}

type memoryCompanions struct{ m *MemoryStore }

func (s memoryCompanions) GetByID(_ context.Context, id string) (*Companion, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	c, ok := s.m.companions[id]
	if !ok {
		return nil, fmt.Errorf("companion %s: %w", id, ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s memoryCompanions) FindByName(_ context.Context, name string) (*Companion, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, c := range s.m.companions {
		if strings.EqualFold(c.Name, name) {
			out := *c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("companion %q: %w", name, ErrNotFound)
}

func (s memoryCompanions) ListByZone(_ context.Context, zoneID string) ([]*Companion, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []*Companion
	for _, c := range s.m.companions {
		if c.ZoneID == zoneID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memoryCompanions) UpdatePosition(_ context.Context, id string, pos zone.Position) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.companions[id]
	if !ok {
		return fmt.Errorf("companion %s: %w", id, ErrNotFound)
	}
	c.Position = pos
	return nil
}

func (s memoryCompanions) UpdateHealth(_ context.Context, id string, currentHealth float64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.companions[id]
	if !ok {
		return fmt.Errorf("companion %s: %w", id, ErrNotFound)
	}
	c.Resources.CurrentHealth = clamp(currentHealth, 0, c.Resources.MaxHealth)
	return nil
}

type memoryZones struct{ m *MemoryStore }

func (s memoryZones) GetByID(_ context.Context, id string) (*ZoneRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	z, ok := s.m.zones[id]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", id, ErrNotFound)
	}
	out := *z
	return &out, nil
}

func (s memoryZones) List(_ context.Context) ([]*ZoneRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []*ZoneRecord
	for _, z := range s.m.zones {
		copied := *z
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryAbilities struct{ m *MemoryStore }

func (s memoryAbilities) GetByID(_ context.Context, id string) (*combat.Ability, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	a, ok := s.m.abilities[id]
	if !ok {
		return nil, fmt.Errorf("ability %s: %w", id, ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (s memoryAbilities) FindByName(_ context.Context, name string) (*combat.Ability, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, a := range s.m.abilities {
		if strings.EqualFold(a.Name, name) {
			out := *a
			return &out, nil
		}
	}
	return nil, fmt.Errorf("ability %q: %w", name, ErrNotFound)
}

func (s memoryAbilities) List(_ context.Context) ([]*combat.Ability, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []*combat.Ability
	for _, a := range s.m.abilities {
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryInventory struct{ m *MemoryStore }

func (s memoryInventory) ListByCharacter(_ context.Context, characterID string) ([]*InventoryItem, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []*InventoryItem
	for _, it := range s.m.inventory {
		if it.CharacterID == characterID {
			copied := *it
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memoryInventory) Add(_ context.Context, item *InventoryItem) (*InventoryItem, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := *item
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.CreatedAt = s.m.now()
	stored := out
	s.m.inventory[stored.ID] = &stored
	return &out, nil
}

func (s memoryInventory) UpdateQuantity(_ context.Context, id string, quantity int) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	it, ok := s.m.inventory[id]
	if !ok {
		return fmt.Errorf("inventory item %s: %w", id, ErrNotFound)
	}
	it.Quantity = quantity
	return nil
}

func (s memoryInventory) Remove(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.inventory[id]; !ok {
		return fmt.Errorf("inventory item %s: %w", id, ErrNotFound)
	}
	delete(s.m.inventory, id)
	return nil
}
