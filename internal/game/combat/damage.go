package combat

import (
	"math"

	"github.com/riftwalk/server/internal/game/dice"
)

// Outcome classifies a resolved attack.
type Outcome string

const (
	OutcomeMiss        Outcome = "miss"
	OutcomeHit         Outcome = "hit"
	OutcomeCrit        Outcome = "crit"
	OutcomeGlance      Outcome = "glance"
	OutcomePenetrating Outcome = "penetrating"
	OutcomeDeflected   Outcome = "deflected"
)

// HitResult is the outcome of one damage resolution.
type HitResult struct {
	Outcome Outcome `json:"outcome"`
	// Damage is the final amount applied to the defender, zero on a miss.
	Damage float64 `json:"damage"`
	// BaseDamage is the pre-mitigation amount, zero on a miss.
	BaseDamage float64 `json:"baseDamage"`
	// MitigatedDamage is the plain mitigated amount before any outcome
	// multiplier, zero on a miss.
	MitigatedDamage float64 `json:"mitigatedDamage"`
	// HitChance is the clamped chance that was rolled against.
	HitChance float64 `json:"hitChance"`
}

const (
	hitChanceFloor   = 5.0
	hitChanceCeiling = 95.0
	neutralAccuracy  = 75.0
)

// Calculator resolves attacks using an injected randomness source so tests
// can replay exact roll sequences.
type Calculator struct {
	dice dice.Source
}

// NewCalculator creates a Calculator over the given randomness source.
func NewCalculator(src dice.Source) *Calculator {
	return &Calculator{dice: src}
}

// BaseDamage computes the pre-mitigation damage for the spec. A nil spec
// falls back to half the attacker's attack rating.
//
// Postcondition: The result is at least 1.
func BaseDamage(spec *DamageSpec, attacker CoreStats, derived CombatStats) float64 {
	var raw float64
	if spec == nil {
		raw = derived.AttackRating * 0.5
	} else {
		raw = spec.Amount + attacker.Stat(spec.ScalingStat)*spec.ScalingMultiplier
	}
	return math.Max(1, math.Floor(raw))
}

// HitChance computes the clamped chance to land an attack of the given
// damage type against the defender.
//
// Postcondition: The result is within [5, 95].
func HitChance(damageType DamageType, attacker, defender CombatStats) float64 {
	accuracy := attacker.PhysicalAccuracy
	evasion := defender.Evasion
	if damageType == DamageMagic {
		accuracy = attacker.MagicAccuracy
		evasion = defender.MagicEvasion
	}
	chance := neutralAccuracy + (accuracy-neutralAccuracy)*0.5 - evasion*0.5
	return math.Min(hitChanceCeiling, math.Max(hitChanceFloor, chance))
}

// mitigate applies the defender's flat absorption and percentage reduction
// for the damage type. Glancing blows are halved before absorption applies.
// The floor of 1 keeps every landed hit meaningful.
func mitigate(base float64, damageType DamageType, defender CombatStats, isGlancing bool) float64 {
	defense := defender.Defense
	absorption := defender.Absorption
	if damageType == DamageMagic {
		defense = defender.MagicDefense
		absorption = defender.MagicAbsorption
	}
	dmg := base
	if isGlancing {
		dmg *= 0.5
	}
	dmg -= absorption
	dmg *= 1 - defense/(defense+100)
	return math.Max(1, math.Floor(dmg))
}

// Resolve runs the full attack pipeline: hit roll, outcome roll, base
// damage, then per-outcome mitigation. It consumes one roll on a miss and
// two on a landed attack.
func (c *Calculator) Resolve(spec *DamageSpec, attackerCore CoreStats, attacker, defender CombatStats) HitResult {
	damageType := DamagePhysical
	if spec != nil {
		damageType = spec.Type
	}

	chance := HitChance(damageType, attacker, defender)
	if c.dice.Percent() > chance {
		return HitResult{Outcome: OutcomeMiss, HitChance: chance}
	}

	base := BaseDamage(spec, attackerCore, attacker)
	mitigated := mitigate(base, damageType, defender, false)
	res := HitResult{BaseDamage: base, MitigatedDamage: mitigated, HitChance: chance}

	// The outcome roll walks stacked windows in a fixed order. Anything
	// past the last window is a plain hit.
	roll := c.dice.Percent()
	critEnd := clampWindow(attacker.CriticalHitChance, 5)
	glanceEnd := critEnd + clampWindow(attacker.GlancingBlowChance, 0)
	penEnd := glanceEnd + clampWindow(attacker.PenetratingChance, 5)
	deflectEnd := penEnd + clampWindow(defender.DeflectedChance, 5)

	switch {
	case roll < critEnd:
		res.Outcome = OutcomeCrit
		res.Damage = mitigate(math.Floor(base*1.5), damageType, defender, false)
	case roll < glanceEnd:
		res.Outcome = OutcomeGlance
		res.Damage = mitigate(base, damageType, defender, true)
	case roll < penEnd:
		// Penetrating hits skip percentage mitigation entirely.
		absorption := defender.Absorption
		if damageType == DamageMagic {
			absorption = defender.MagicAbsorption
		}
		res.Outcome = OutcomePenetrating
		res.Damage = math.Max(1, math.Floor(base-absorption))
	case roll < deflectEnd:
		res.Outcome = OutcomeDeflected
		res.Damage = math.Max(1, math.Floor(mitigated*0.5))
	default:
		res.Outcome = OutcomeHit
		res.Damage = mitigated
	}
	return res
}

// clampWindow bounds an outcome window to [0,100]. Non-finite stats fall
// back to the per-window default instead of collapsing the window.
func clampWindow(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = fallback
	}
	return math.Min(100, math.Max(0, v))
}

// ResolveHealing computes the amount restored by a healing spec.
func ResolveHealing(spec *HealingSpec, caster CoreStats) float64 {
	if spec == nil {
		return 0
	}
	raw := spec.Amount + caster.Stat(spec.ScalingStat)*spec.ScalingMultiplier
	return math.Max(1, math.Floor(raw))
}
