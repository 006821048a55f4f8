package world

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/storage"
)

// Combat rejection reasons sent in combat_error events.
const (
	reasonUnknownAbility        = "unknown_ability"
	reasonInvalidTarget         = "invalid_target"
	reasonOutOfRange            = "out_of_range"
	reasonOnCooldown            = "on_cooldown"
	reasonATBLow                = "atb_low"
	reasonInsufficientResources = "insufficient_resources"
)

// combatant is a resolved attacker or defender snapshot for one action.
type combatant struct {
	entity  zone.Entity
	core    combat.CoreStats
	derived combat.CombatStats
	res     storage.Resources
}

// handleCombatAction runs one ability use through the full gate sequence:
// ability resolution, targeting, range, cooldown, ATB, resource costs,
// then damage and healing resolution. Runs on the zone actor.
func (s *Manager) handleCombatAction(zs *zoneState, attackerID string, p bus.CombatActionPayload) {
	attackerEnt, ok := zs.zone.GetEntity(attackerID)
	if !ok {
		return
	}

	ability, ok := s.resolveAbility(zs, attackerEnt, p)
	if !ok {
		return
	}

	targetEnt, ok := s.resolveTarget(zs, attackerEnt, ability, p)
	if !ok {
		s.sendToSocket(attackerEnt.SocketID, EventCombatError, CombatErrorEvent{
			Reason:    reasonInvalidTarget,
			AbilityID: ability.ID,
		})
		return
	}

	if ability.TargetType != combat.TargetSelf {
		if attackerEnt.Position.DistanceTo(targetEnt.Position) > ability.Range {
			s.fanOut(zs, attackerEnt.Position, "", EventCombatError, CombatErrorEvent{
				Reason:    reasonOutOfRange,
				AbilityID: ability.ID,
			})
			return
		}
	}

	if zs.combat.CooldownRemaining(attackerID, ability.ID) > 0 {
		s.sendToSocket(attackerEnt.SocketID, EventCombatError, CombatErrorEvent{
			Reason:    reasonOnCooldown,
			AbilityID: ability.ID,
		})
		return
	}
	if !ability.IsFree && !zs.combat.CanSpendATB(attackerID, ability.ATBCost) {
		s.sendToSocket(attackerEnt.SocketID, EventCombatError, CombatErrorEvent{
			Reason:    reasonATBLow,
			AbilityID: ability.ID,
		})
		return
	}

	attacker, err := s.loadCombatant(zs, attackerEnt)
	if err != nil {
		s.logger.Error("loading attacker", zap.String("entity", attackerID), zap.Error(err))
		return
	}
	defender, err := s.loadCombatant(zs, targetEnt)
	if err != nil {
		s.logger.Error("loading defender", zap.String("entity", targetEnt.ID), zap.Error(err))
		return
	}

	if !s.payCosts(zs, &attacker, ability) {
		return
	}

	if !ability.IsFree {
		zs.combat.SpendATB(attackerID, ability.ATBCost)
		if ability.IsBuilder {
			zs.combat.AddATB(attackerID, ability.ATBCost)
		}
	}
	if ability.Cooldown > 0 {
		zs.combat.SetCooldown(attackerID, ability.ID, time.Duration(ability.Cooldown*float64(time.Second)))
	}

	hostile := ability.TargetType == combat.TargetEnemy && targetEnt.ID != attackerID
	if hostile {
		zs.combat.RecordHostileAction(attackerID)
		zs.combat.RecordHostileAction(targetEnt.ID)
		attackerStarted := zs.combat.StartCombat(attackerID)
		targetStarted := zs.combat.StartCombat(targetEnt.ID)
		zs.zone.SetEntityCombatState(attackerID, true)
		zs.zone.SetEntityCombatState(targetEnt.ID, true)
		if attackerStarted || targetStarted {
			s.fanOut(zs, attackerEnt.Position, "", EventCombatStart, CombatStartEvent{
				AttackerID: attackerID,
				TargetID:   targetEnt.ID,
			})
			s.refreshAllRosters(zs)
		}
	}

	s.fanOut(zs, attackerEnt.Position, "", EventCombatAction, CombatActionEvent{
		AttackerID:  attackerID,
		TargetID:    targetEnt.ID,
		AbilityID:   ability.ID,
		AbilityName: ability.Name,
	})

	if ability.Damage != nil {
		s.resolveDamage(zs, attacker, defender, ability)
	}
	if ability.Healing != nil {
		s.resolveHealing(zs, attacker, defender, ability)
	}
}

// resolveAbility maps the payload's ability reference to a definition.
// A name that matches nothing is an error; an id that matches nothing
// falls back to the basic attack.
func (s *Manager) resolveAbility(zs *zoneState, attacker zone.Entity, p bus.CombatActionPayload) (combat.Ability, bool) {
	if p.AbilityName != "" {
		ability, found, err := s.catalog.ResolveByName(s.ctx, p.AbilityName)
		if err != nil {
			s.logger.Error("resolving ability by name", zap.String("name", p.AbilityName), zap.Error(err))
			return combat.Ability{}, false
		}
		if !found {
			s.sendToSocket(attacker.SocketID, EventCombatError, CombatErrorEvent{
				Reason: reasonUnknownAbility,
			})
			return combat.Ability{}, false
		}
		return ability, true
	}
	ability, err := s.catalog.ResolveByID(s.ctx, p.AbilityID)
	if err != nil {
		s.logger.Error("resolving ability", zap.String("id", p.AbilityID), zap.Error(err))
		return combat.Ability{}, false
	}
	return ability, true
}

// resolveTarget finds the action's target entity. Self-targeted abilities
// always target the attacker.
func (s *Manager) resolveTarget(zs *zoneState, attacker zone.Entity, ability combat.Ability, p bus.CombatActionPayload) (zone.Entity, bool) {
	if ability.TargetType == combat.TargetSelf {
		return attacker, true
	}
	if p.TargetID != "" {
		if e, ok := zs.zone.GetEntity(p.TargetID); ok {
			return e, true
		}
		return zone.Entity{}, false
	}
	if p.TargetName != "" {
		return zs.zone.FindEntityByName(p.TargetName)
	}
	return zone.Entity{}, false
}

// loadCombatant snapshots an entity's stats and resources from the store
// and refreshes the tick-time stats cache.
func (s *Manager) loadCombatant(zs *zoneState, e zone.Entity) (combatant, error) {
	c := combatant{entity: e}
	if e.Kind == zone.KindCompanion {
		comp, err := s.store.Companions.GetByID(s.ctx, e.ID)
		if err != nil {
			return c, err
		}
		c.core = comp.CoreStats
		c.res = comp.Resources
	} else {
		ch, err := s.store.Characters.GetByID(s.ctx, e.ID)
		if err != nil {
			return c, err
		}
		c.core = ch.CoreStats
		c.res = ch.Resources
	}
	c.derived = combat.DeriveCombatStats(c.core)
	zs.stats[e.ID] = c.core
	return c, nil
}

// payCosts deducts the ability's resource costs from the attacker,
// rejecting the action when any pool cannot cover its cost. An ability
// can never take its user's last hit point.
func (s *Manager) payCosts(zs *zoneState, attacker *combatant, ability combat.Ability) bool {
	if ability.HealthCost > 0 && ability.HealthCost >= attacker.res.CurrentHealth {
		s.rejectCosts(attacker, ability)
		return false
	}
	if attacker.res.CurrentStamina < ability.StaminaCost || attacker.res.CurrentMana < ability.ManaCost {
		s.rejectCosts(attacker, ability)
		return false
	}
	if ability.HealthCost == 0 && ability.StaminaCost == 0 && ability.ManaCost == 0 {
		return true
	}
	attacker.res.CurrentHealth -= ability.HealthCost
	attacker.res.CurrentStamina -= ability.StaminaCost
	attacker.res.CurrentMana -= ability.ManaCost
	s.persistResources(attacker)
	return true
}

func (s *Manager) rejectCosts(attacker *combatant, ability combat.Ability) {
	s.sendToSocket(attacker.entity.SocketID, EventCombatError, CombatErrorEvent{
		Reason:    reasonInsufficientResources,
		AbilityID: ability.ID,
	})
}

func (s *Manager) persistResources(c *combatant) {
	var err error
	if c.entity.Kind == zone.KindCompanion {
		err = s.store.Companions.UpdateHealth(s.ctx, c.entity.ID, c.res.CurrentHealth)
	} else {
		err = s.store.Characters.UpdateResources(s.ctx, c.entity.ID, c.res)
	}
	if err != nil {
		s.logger.Error("persisting resources",
			zap.String("entity", c.entity.ID), zap.Error(err))
	}
}

// resolveDamage rolls the attack and applies the result to the defender.
func (s *Manager) resolveDamage(zs *zoneState, attacker, defender combatant, ability combat.Ability) {
	res := s.calc.Resolve(ability.Damage, attacker.core, attacker.derived, defender.derived)
	if s.metrics != nil {
		s.metrics.CombatActions.WithLabelValues(string(res.Outcome)).Inc()
	}
	if res.Outcome == combat.OutcomeMiss {
		s.fanOut(zs, attacker.entity.Position, "", EventCombatMiss, CombatMissEvent{
			AttackerID: attacker.entity.ID,
			TargetID:   defender.entity.ID,
		})
		return
	}

	newHealth := math.Max(0, defender.res.CurrentHealth-res.Damage)
	s.applyHealth(zs, defender, newHealth)

	s.fanOut(zs, attacker.entity.Position, "", EventCombatHit, CombatHitEvent{
		AttackerID:      attacker.entity.ID,
		TargetID:        defender.entity.ID,
		Outcome:         string(res.Outcome),
		Amount:          res.Damage,
		BaseDamage:      res.BaseDamage,
		MitigatedDamage: res.MitigatedDamage,
	})

	if newHealth == 0 {
		s.fanOut(zs, defender.entity.Position, "", EventCombatDeath, CombatDeathEvent{
			TargetID: defender.entity.ID,
		})
	}
}

// resolveHealing restores health to the target, clamped to its maximum.
func (s *Manager) resolveHealing(zs *zoneState, attacker, defender combatant, ability combat.Ability) {
	amount := combat.ResolveHealing(ability.Healing, attacker.core)
	if amount <= 0 {
		return
	}
	target := defender
	if ability.TargetType == combat.TargetSelf {
		target = attacker
	}
	newHealth := math.Min(target.res.MaxHealth, target.res.CurrentHealth+amount)
	s.applyHealth(zs, target, newHealth)
}

func (s *Manager) applyHealth(zs *zoneState, c combatant, newHealth float64) {
	var err error
	if c.entity.Kind == zone.KindCompanion {
		err = s.store.Companions.UpdateHealth(s.ctx, c.entity.ID, newHealth)
	} else {
		err = s.store.Characters.UpdateHealth(s.ctx, c.entity.ID, newHealth)
	}
	if err != nil {
		s.logger.Error("persisting health",
			zap.String("entity", c.entity.ID), zap.Error(err))
	}
}
