package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/storage"
)

func newStore() storage.Store {
	return storage.NewMemoryStore().Services()
}

func TestCharacterCreateAndFind(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	c, err := s.Characters.Create(ctx, &storage.Character{
		AccountID: "acct-1",
		Name:      "Aria",
		ZoneID:    "zone-1",
		CoreStats: combat.CoreStats{Level: 1, Strength: 10},
		Resources: storage.Resources{CurrentHealth: 100, MaxHealth: 100},
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	// Name lookups are case-insensitive.
	found, err := s.Characters.FindByName(ctx, "ARIA")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)

	_, err = s.Characters.Create(ctx, &storage.Character{AccountID: "acct-2", Name: "aria"})
	assert.ErrorIs(t, err, storage.ErrNameTaken)

	_, err = s.Characters.FindByName(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCharacterUpdatePositionAndHealth(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	c, err := s.Characters.Create(ctx, &storage.Character{
		Name:      "Bren",
		ZoneID:    "zone-1",
		Resources: storage.Resources{CurrentHealth: 50, MaxHealth: 100},
	})
	require.NoError(t, err)

	require.NoError(t, s.Characters.UpdatePosition(ctx, c.ID, zone.Position{X: 3, Y: 4, Z: 0}, 90))
	got, err := s.Characters.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, zone.Position{X: 3, Y: 4}, got.Position)
	assert.Equal(t, 90.0, got.Heading)

	// Health writes clamp to [0, max].
	require.NoError(t, s.Characters.UpdateHealth(ctx, c.ID, -25))
	got, _ = s.Characters.GetByID(ctx, c.ID)
	assert.Zero(t, got.Resources.CurrentHealth)

	require.NoError(t, s.Characters.UpdateHealth(ctx, c.ID, 500))
	got, _ = s.Characters.GetByID(ctx, c.ID)
	assert.Equal(t, 100.0, got.Resources.CurrentHealth)

	assert.ErrorIs(t, s.Characters.UpdateHealth(ctx, "missing", 10), storage.ErrNotFound)
}

func TestCharacterListByZone(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		zoneID := "zone-1"
		if name == "C" {
			zoneID = "zone-2"
		}
		_, err := s.Characters.Create(ctx, &storage.Character{Name: name, ZoneID: zoneID})
		require.NoError(t, err)
	}
	in1, err := s.Characters.ListByZone(ctx, "zone-1")
	require.NoError(t, err)
	assert.Len(t, in1, 2)
}

func TestAccountLifecycle(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	a, err := s.Accounts.Create(ctx, "rivka", "hunter2hunter2")
	require.NoError(t, err)
	assert.False(t, a.IsGuest)
	assert.True(t, storage.CheckPassword("hunter2hunter2", a.PasswordHash))
	assert.False(t, storage.CheckPassword("wrong", a.PasswordHash))

	_, err = s.Accounts.Create(ctx, "RIVKA", "other")
	assert.ErrorIs(t, err, storage.ErrNameTaken)

	g, err := s.Accounts.CreateGuest(ctx)
	require.NoError(t, err)
	assert.True(t, g.IsGuest)
	assert.Empty(t, g.PasswordHash)

	byName, err := s.Accounts.GetByUsername(ctx, "Rivka")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byName.ID)
}

func TestCompanionSeedAndLookup(t *testing.T) {
	m := storage.NewMemoryStore()
	s := m.Services()
	ctx := context.Background()

	m.SeedCompanion(storage.Companion{
		ID:        "comp-1",
		Name:      "Thistle",
		ZoneID:    "zone-1",
		CoreStats: combat.CoreStats{Level: 1, Strength: 10},
	})

	c, err := s.Companions.FindByName(ctx, "thistle")
	require.NoError(t, err)
	assert.Equal(t, "comp-1", c.ID)

	list, err := s.Companions.ListByZone(ctx, "zone-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAbilityCatalogAdapter(t *testing.T) {
	m := storage.NewMemoryStore()
	s := m.Services()
	ctx := context.Background()

	m.SeedAbility(combat.Ability{ID: "fireball", Name: "Fireball", ATBCost: 120})
	adapter := storage.AbilityCatalogAdapter{Service: s.Abilities}

	a, ok, err := adapter.GetAbility(ctx, "fireball")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120.0, a.ATBCost)

	_, ok, err = adapter.GetAbility(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
