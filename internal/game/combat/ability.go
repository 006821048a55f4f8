// Package combat implements the ability catalog, the ATB/cooldown combat
// manager, derived combat statistics, and the damage calculator.
package combat

import (
	"context"
	"strings"
)

// TargetType constrains what an ability can be aimed at.
type TargetType string

const (
	TargetSelf   TargetType = "self"
	TargetEnemy  TargetType = "enemy"
	TargetAlly   TargetType = "ally"
	TargetGround TargetType = "ground"
	TargetAoE    TargetType = "aoe"
)

// DamageType selects the mitigation path.
type DamageType string

const (
	DamagePhysical DamageType = "physical"
	DamageMagic    DamageType = "magic"
)

// DamageSpec describes an ability's damage line.
type DamageSpec struct {
	Type DamageType `json:"type"`
	// Amount is the flat base before scaling.
	Amount float64 `json:"amount"`
	// ScalingStat names the attacker core stat that scales the damage.
	ScalingStat string `json:"scalingStat,omitempty"`
	// ScalingMultiplier is applied to the scaling stat's value.
	ScalingMultiplier float64 `json:"scalingMultiplier,omitempty"`
}

// HealingSpec describes an ability's healing line.
type HealingSpec struct {
	Amount            float64 `json:"amount"`
	ScalingStat       string  `json:"scalingStat,omitempty"`
	ScalingMultiplier float64 `json:"scalingMultiplier,omitempty"`
}

// Ability is one usable combat action definition.
type Ability struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	TargetType  TargetType `json:"targetType"`
	// Range is the maximum use distance in metres.
	Range float64 `json:"range"`
	// Cooldown is in seconds.
	Cooldown float64 `json:"cooldown"`
	ATBCost  float64 `json:"atbCost"`
	// IsBuilder abilities refund their ATB cost on use.
	IsBuilder bool `json:"isBuilder,omitempty"`
	// IsFree abilities skip the ATB gate entirely.
	IsFree      bool         `json:"isFree,omitempty"`
	StaminaCost float64      `json:"staminaCost,omitempty"`
	ManaCost    float64      `json:"manaCost,omitempty"`
	HealthCost  float64      `json:"healthCost,omitempty"`
	CastTime    float64      `json:"castTime,omitempty"`
	AoERadius   float64      `json:"aoeRadius,omitempty"`
	Damage      *DamageSpec  `json:"damage,omitempty"`
	Healing     *HealingSpec `json:"healing,omitempty"`
}

// BasicAttackID is the built-in fallback ability id.
const BasicAttackID = "basic_attack"

// BasicAttack returns the built-in fallback ability used when a requested
// ability id cannot be resolved.
func BasicAttack() Ability {
	return Ability{
		ID:          BasicAttackID,
		Name:        "Basic Attack",
		Description: "A plain strike with whatever is in hand.",
		TargetType:  TargetEnemy,
		Range:       2,
		Cooldown:    0,
		ATBCost:     100,
		Damage: &DamageSpec{
			Type:              DamagePhysical,
			Amount:            5,
			ScalingStat:       "strength",
			ScalingMultiplier: 0.5,
		},
	}
}

// AbilityStore is the persistence surface the catalog resolves against.
type AbilityStore interface {
	GetAbility(ctx context.Context, id string) (Ability, bool, error)
	FindAbilityByName(ctx context.Context, name string) (Ability, bool, error)
}

// Catalog resolves abilities by id or name against the store, with the
// built-in basic attack as the fallback for id lookups.
type Catalog struct {
	store AbilityStore
}

// NewCatalog creates a Catalog over a store. A nil store resolves only the
// built-in basic attack.
func NewCatalog(store AbilityStore) *Catalog {
	return &Catalog{store: store}
}

// ResolveByID returns the ability with the given id, falling back to the
// built-in basic attack when the id is empty or unknown.
//
// Postcondition: Always returns a usable ability unless the store errors.
func (c *Catalog) ResolveByID(ctx context.Context, id string) (Ability, error) {
	if id == "" || id == BasicAttackID {
		return BasicAttack(), nil
	}
	if c.store != nil {
		a, ok, err := c.store.GetAbility(ctx, id)
		if err != nil {
			return Ability{}, err
		}
		if ok {
			return a, nil
		}
	}
	return BasicAttack(), nil
}

// ResolveByName returns the ability with the given name, case-insensitive.
// Unlike id resolution there is no fallback: an unknown name is (_, false).
func (c *Catalog) ResolveByName(ctx context.Context, name string) (Ability, bool, error) {
	if strings.EqualFold(name, BasicAttack().Name) || strings.EqualFold(name, BasicAttackID) {
		return BasicAttack(), true, nil
	}
	if c.store == nil {
		return Ability{}, false, nil
	}
	return c.store.FindAbilityByName(ctx, name)
}
