package combat

import (
	"sync"
	"time"
)

const (
	// ATBMax caps the action gauge.
	ATBMax = 200.0
	// ATBBaseRate is the gauge fill rate in points per second before
	// attack speed bonuses.
	ATBBaseRate = 10.0
	// CombatTimeout drops a combatant out of combat after this long
	// without a hostile action.
	CombatTimeout = 15 * time.Second
)

// CombatantState tracks one entity's gauge, cooldowns, and combat flag.
type CombatantState struct {
	EntityID      string
	ATB           float64
	InCombat      bool
	LastHostileAt time.Time
	cooldowns     map[string]time.Time
}

// Manager owns combat state for a single zone. The zone actor is the only
// writer; the mutex guards incidental cross-goroutine reads.
type Manager struct {
	mu         sync.RWMutex
	combatants map[string]*CombatantState
	now        func() time.Time
}

// NewManager creates an empty combat manager.
func NewManager() *Manager {
	return &Manager{
		combatants: make(map[string]*CombatantState),
		now:        time.Now,
	}
}

func (m *Manager) state(entityID string) *CombatantState {
	c, ok := m.combatants[entityID]
	if !ok {
		c = &CombatantState{
			EntityID:  entityID,
			ATB:       ATBMax,
			cooldowns: make(map[string]time.Time),
		}
		m.combatants[entityID] = c
	}
	return c
}

// StartCombat marks the entity as in combat and stamps the hostile timer.
// It reports whether the entity transitioned into combat by this call.
func (m *Manager) StartCombat(entityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state(entityID)
	transitioned := !c.InCombat
	c.InCombat = true
	c.LastHostileAt = m.now()
	return transitioned
}

// RecordHostileAction refreshes the combat timeout for the entity.
func (m *Manager) RecordHostileAction(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state(entityID)
	c.InCombat = true
	c.LastHostileAt = m.now()
}

// EndCombat clears the entity's combat flag.
func (m *Manager) EndCombat(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.combatants[entityID]; ok {
		c.InCombat = false
	}
}

// InCombat reports whether the entity is currently flagged in combat.
func (m *Manager) InCombat(entityID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.combatants[entityID]
	return ok && c.InCombat
}

// ATB returns the entity's current gauge value.
func (m *Manager) ATB(entityID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.combatants[entityID]; ok {
		return c.ATB
	}
	return ATBMax
}

// SetClock overrides the manager's time source so callers can drive
// cooldown and timeout expiry without waiting in real time.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Remove drops all combat state for an entity leaving the zone.
func (m *Manager) Remove(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.combatants, entityID)
}

// Update advances the gauge of every in-combat entity by dt seconds and
// returns the ids whose combat flags expired this update. bonusFor supplies
// the per-entity attack speed bonus and may be nil.
//
// Postcondition: Every gauge stays within [0, ATBMax].
func (m *Manager) Update(dt float64, bonusFor func(entityID string) float64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	now := m.now()
	for id, c := range m.combatants {
		if !c.InCombat {
			continue
		}
		rate := ATBBaseRate
		if bonusFor != nil {
			rate += bonusFor(id)
		}
		c.ATB += rate * dt
		if c.ATB > ATBMax {
			c.ATB = ATBMax
		}
		if now.Sub(c.LastHostileAt) >= CombatTimeout {
			c.InCombat = false
			expired = append(expired, id)
		}
	}
	return expired
}

// CanSpendATB reports whether the entity has at least cost on the gauge.
func (m *Manager) CanSpendATB(entityID string, cost float64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.combatants[entityID]
	if !ok {
		return cost <= ATBMax
	}
	return c.ATB >= cost
}

// SpendATB deducts cost from the gauge, saturating at zero.
func (m *Manager) SpendATB(entityID string, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state(entityID)
	c.ATB -= cost
	if c.ATB < 0 {
		c.ATB = 0
	}
}

// AddATB credits the gauge, saturating at ATBMax. Builder abilities use
// this to refund their cost.
func (m *Manager) AddATB(entityID string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state(entityID)
	c.ATB += amount
	if c.ATB > ATBMax {
		c.ATB = ATBMax
	}
}

// CooldownRemaining returns how long until the ability is usable again.
// Zero means ready.
func (m *Manager) CooldownRemaining(entityID, abilityID string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.combatants[entityID]
	if !ok {
		return 0
	}
	until, ok := c.cooldowns[abilityID]
	if !ok {
		return 0
	}
	remaining := until.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SetCooldown starts the ability's cooldown clock. A non-positive duration
// clears it.
func (m *Manager) SetCooldown(entityID, abilityID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state(entityID)
	if d <= 0 {
		delete(c.cooldowns, abilityID)
		return
	}
	c.cooldowns[abilityID] = m.now().Add(d)
}
