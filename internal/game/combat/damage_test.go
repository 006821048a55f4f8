package combat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftwalk/server/internal/game/dice"
)

func attackerCore() CoreStats {
	return CoreStats{Level: 1, Strength: 10, Agility: 10}
}

func defenderCore() CoreStats {
	return CoreStats{Level: 1, Agility: 10, Vitality: 10}
}

// Fixture numbers, derived once by hand:
//
//	attacker: accuracy 80, crit 5, glance 10, pen 5
//	defender: evasion 4, defense 16, absorption 2, deflect 5
//	hit chance 75 + 2.5 - 2 = 75.5
//	base damage 5 + 10*0.5 = 10
//	mitigated floor((10 - 2) * (1 - 16/116)) = 6
func fixtureSpec() *DamageSpec {
	return &DamageSpec{Type: DamagePhysical, Amount: 5, ScalingStat: "strength", ScalingMultiplier: 0.5}
}

func TestHitChanceNeutral(t *testing.T) {
	chance := HitChance(DamagePhysical, DeriveCombatStats(attackerCore()), DeriveCombatStats(defenderCore()))
	assert.InDelta(t, 75.5, chance, 1e-9)
}

func TestHitChanceClamped(t *testing.T) {
	slippery := DeriveCombatStats(CoreStats{Agility: 1000})
	assert.Equal(t, 5.0, HitChance(DamagePhysical, DeriveCombatStats(attackerCore()), slippery))

	sniper := DeriveCombatStats(CoreStats{Agility: 1000})
	assert.Equal(t, 95.0, HitChance(DamagePhysical, sniper, DeriveCombatStats(CoreStats{})))
}

func TestHitChanceMagicUsesMagicStats(t *testing.T) {
	caster := DeriveCombatStats(CoreStats{Intellect: 20})
	stoic := DeriveCombatStats(CoreStats{Willpower: 10})
	// magic accuracy 85, magic evasion 4: 75 + 5 - 2
	assert.InDelta(t, 78.0, HitChance(DamageMagic, caster, stoic), 1e-9)
}

func TestBaseDamage(t *testing.T) {
	derived := DeriveCombatStats(attackerCore())
	assert.Equal(t, 10.0, BaseDamage(fixtureSpec(), attackerCore(), derived))

	// Nil spec falls back to half the attack rating.
	assert.Equal(t, 10.0, BaseDamage(nil, attackerCore(), derived))

	// Floor of 1 even for a zeroed attacker.
	assert.Equal(t, 1.0, BaseDamage(nil, CoreStats{}, DeriveCombatStats(CoreStats{})))
}

func resolveWith(t *testing.T, rolls ...float64) HitResult {
	t.Helper()
	calc := NewCalculator(dice.NewSequenceSource(rolls...))
	return calc.Resolve(fixtureSpec(), attackerCore(), DeriveCombatStats(attackerCore()), DeriveCombatStats(defenderCore()))
}

func TestResolveMiss(t *testing.T) {
	res := resolveWith(t, 80)
	assert.Equal(t, OutcomeMiss, res.Outcome)
	assert.Zero(t, res.Damage)
	assert.InDelta(t, 75.5, res.HitChance, 1e-9)
}

func TestResolveOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		roll    float64
		outcome Outcome
		damage  float64
	}{
		{"crit", 2, OutcomeCrit, 11},
		{"glance", 7, OutcomeGlance, 2},
		{"penetrating", 17, OutcomePenetrating, 8},
		{"deflected", 22, OutcomeDeflected, 3},
		{"plain hit", 50, OutcomeHit, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := resolveWith(t, 10, tc.roll)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.damage, res.Damage)
			assert.Equal(t, 10.0, res.BaseDamage)
			assert.Equal(t, 6.0, res.MitigatedDamage)
		})
	}
}

func TestOutcomeWireTokens(t *testing.T) {
	// These strings ship in combat_hit payloads; clients match on them.
	assert.Equal(t, "miss", string(OutcomeMiss))
	assert.Equal(t, "hit", string(OutcomeHit))
	assert.Equal(t, "crit", string(OutcomeCrit))
	assert.Equal(t, "glance", string(OutcomeGlance))
	assert.Equal(t, "penetrating", string(OutcomePenetrating))
	assert.Equal(t, "deflected", string(OutcomeDeflected))
}

func TestResolveNonFiniteWindowsUseFallbacks(t *testing.T) {
	attacker := DeriveCombatStats(attackerCore())
	attacker.CriticalHitChance = math.NaN()
	attacker.GlancingBlowChance = math.Inf(1)
	attacker.PenetratingChance = math.NaN()
	defender := DeriveCombatStats(defenderCore())
	defender.DeflectedChance = math.Inf(-1)

	// Fallback windows crit 5, glance 0, penetrating 5, deflected 5.
	cases := []struct {
		roll    float64
		outcome Outcome
	}{
		{2, OutcomeCrit},
		{7, OutcomePenetrating},
		{12, OutcomeDeflected},
		{50, OutcomeHit},
	}
	for _, tc := range cases {
		calc := NewCalculator(dice.NewSequenceSource(10, tc.roll))
		res := calc.Resolve(fixtureSpec(), attackerCore(), attacker, defender)
		assert.Equal(t, tc.outcome, res.Outcome)
	}
}

func TestResolveBoundaryRollHits(t *testing.T) {
	// A roll exactly equal to the hit chance still lands.
	res := resolveWith(t, 75.5, 50)
	assert.Equal(t, OutcomeHit, res.Outcome)
}

func TestResolveLandedHitNeverZero(t *testing.T) {
	tank := DeriveCombatStats(CoreStats{Vitality: 10000})
	calc := NewCalculator(dice.NewSequenceSource(10, 50))
	res := calc.Resolve(fixtureSpec(), attackerCore(), DeriveCombatStats(attackerCore()), tank)
	require.Equal(t, OutcomeHit, res.Outcome)
	assert.Equal(t, 1.0, res.Damage)
}

func TestResolveHealing(t *testing.T) {
	spec := &HealingSpec{Amount: 10, ScalingStat: "willpower", ScalingMultiplier: 0.5}
	assert.Equal(t, 15.0, ResolveHealing(spec, CoreStats{Willpower: 10}))
	assert.Zero(t, ResolveHealing(nil, CoreStats{}))
}
