package combat

import "math"

// CoreStats are a combatant's base attributes.
type CoreStats struct {
	Level     int     `json:"level"`
	Strength  float64 `json:"strength"`
	Agility   float64 `json:"agility"`
	Vitality  float64 `json:"vitality"`
	Intellect float64 `json:"intellect"`
	Willpower float64 `json:"willpower"`
	Luck      float64 `json:"luck"`
}

// Stat returns the named core stat's value. Unknown names return 0, which
// makes unscaled damage specs degrade to their flat amount.
func (s CoreStats) Stat(name string) float64 {
	switch name {
	case "strength":
		return s.Strength
	case "agility":
		return s.Agility
	case "vitality":
		return s.Vitality
	case "intellect":
		return s.Intellect
	case "willpower":
		return s.Willpower
	case "luck":
		return s.Luck
	default:
		return 0
	}
}

// CombatStats are the derived values the damage calculator consumes.
type CombatStats struct {
	AttackRating     float64 `json:"attackRating"`
	SpellRating      float64 `json:"spellRating"`
	PhysicalAccuracy float64 `json:"physicalAccuracy"`
	MagicAccuracy    float64 `json:"magicAccuracy"`
	Evasion          float64 `json:"evasion"`
	MagicEvasion     float64 `json:"magicEvasion"`
	Defense          float64 `json:"defense"`
	MagicDefense     float64 `json:"magicDefense"`
	Absorption       float64 `json:"absorption"`
	MagicAbsorption  float64 `json:"magicAbsorption"`

	CriticalHitChance  float64 `json:"criticalHitChance"`
	GlancingBlowChance float64 `json:"glancingBlowChance"`
	PenetratingChance  float64 `json:"penetratingChance"`
	DeflectedChance    float64 `json:"deflectedChance"`

	MaxHealth  float64 `json:"maxHealth"`
	MaxStamina float64 `json:"maxStamina"`
	MaxMana    float64 `json:"maxMana"`
}

// DeriveCombatStats produces the derived combat values from core attributes.
// The formulas keep low-level characters near the calculator's neutral
// accuracy of 75 so early fights land most of the time.
func DeriveCombatStats(s CoreStats) CombatStats {
	lvl := float64(s.Level)
	return CombatStats{
		AttackRating:     s.Strength*2 + lvl*1.5,
		SpellRating:      s.Intellect*2 + lvl*1.5,
		PhysicalAccuracy: 75 + s.Agility*0.5,
		MagicAccuracy:    75 + s.Intellect*0.5,
		Evasion:          s.Agility * 0.4,
		MagicEvasion:     s.Willpower * 0.4,
		Defense:          s.Vitality*1.5 + lvl,
		MagicDefense:     s.Willpower*1.5 + lvl,
		Absorption:       math.Floor(s.Vitality * 0.25),
		MagicAbsorption:  math.Floor(s.Willpower * 0.25),

		CriticalHitChance:  5 + s.Luck*0.2,
		GlancingBlowChance: 10,
		PenetratingChance:  5 + s.Luck*0.1,
		DeflectedChance:    5,

		MaxHealth:  100 + s.Vitality*10 + lvl*5,
		MaxStamina: 100 + s.Agility*5,
		MaxMana:    100 + s.Intellect*5 + s.Willpower*5,
	}
}

// AttackSpeedBonus returns the extra ATB fill rate per second granted by
// agility. The manager adds this to the base fill rate.
func AttackSpeedBonus(s CoreStats) float64 {
	return s.Agility * 0.1
}

// MovementSpeed returns a combatant's base walk speed in metres per second.
func MovementSpeed(s CoreStats) float64 {
	return 1.5 + s.Agility*0.01
}
