package combat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAbilityStore struct {
	abilities map[string]Ability
}

func (f *fakeAbilityStore) GetAbility(_ context.Context, id string) (Ability, bool, error) {
	a, ok := f.abilities[id]
	return a, ok, nil
}

func (f *fakeAbilityStore) FindAbilityByName(_ context.Context, name string) (Ability, bool, error) {
	for _, a := range f.abilities {
		if strings.EqualFold(a.Name, name) {
			return a, true, nil
		}
	}
	return Ability{}, false, nil
}

func fireball() Ability {
	return Ability{
		ID:         "fireball",
		Name:       "Fireball",
		TargetType: TargetEnemy,
		Range:      20,
		Cooldown:   8,
		ATBCost:    120,
		ManaCost:   15,
		Damage:     &DamageSpec{Type: DamageMagic, Amount: 12, ScalingStat: "intellect", ScalingMultiplier: 0.8},
	}
}

func TestCatalogResolveByID(t *testing.T) {
	cat := NewCatalog(&fakeAbilityStore{abilities: map[string]Ability{"fireball": fireball()}})

	a, err := cat.ResolveByID(context.Background(), "fireball")
	require.NoError(t, err)
	assert.Equal(t, "Fireball", a.Name)

	// Unknown and empty ids fall back to the basic attack.
	a, err = cat.ResolveByID(context.Background(), "no-such-ability")
	require.NoError(t, err)
	assert.Equal(t, BasicAttackID, a.ID)

	a, err = cat.ResolveByID(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, BasicAttackID, a.ID)
}

func TestCatalogResolveByName(t *testing.T) {
	cat := NewCatalog(&fakeAbilityStore{abilities: map[string]Ability{"fireball": fireball()}})

	a, ok, err := cat.ResolveByName(context.Background(), "FIREBALL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fireball", a.ID)

	_, ok, err = cat.ResolveByName(context.Background(), "ice lance")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalogNilStore(t *testing.T) {
	cat := NewCatalog(nil)

	a, err := cat.ResolveByID(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, BasicAttackID, a.ID)

	a, ok, err := cat.ResolveByName(context.Background(), "basic attack")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BasicAttackID, a.ID)
}

func TestBasicAttackShape(t *testing.T) {
	a := BasicAttack()
	assert.Equal(t, 2.0, a.Range)
	assert.Equal(t, 100.0, a.ATBCost)
	assert.Zero(t, a.Cooldown)
	assert.False(t, a.IsBuilder)
	require.NotNil(t, a.Damage)
	assert.Equal(t, DamagePhysical, a.Damage.Type)
}

func TestDeriveCombatStats(t *testing.T) {
	s := DeriveCombatStats(CoreStats{Level: 10, Strength: 20, Agility: 10, Vitality: 15, Intellect: 5, Willpower: 5, Luck: 10})
	assert.Equal(t, 55.0, s.AttackRating)
	assert.Equal(t, 80.0, s.PhysicalAccuracy)
	assert.Equal(t, 32.5, s.Defense)
	assert.Equal(t, 3.0, s.Absorption)
	assert.Equal(t, 7.0, s.CriticalHitChance)
	assert.Equal(t, 300.0, s.MaxHealth)
}
