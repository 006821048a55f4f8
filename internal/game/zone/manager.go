package zone

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// LastSpeakerMemory is how long a recorded speaker stays attached to a
// listener's roster channels.
const LastSpeakerMemory = 30 * time.Second

type lastSpeaker struct {
	name string
	at   time.Time
}

// Manager owns one zone's entity table and answers spatial queries over it.
//
// The zone server drives every mutation from a single per-zone actor; the
// internal mutex makes reads from other goroutines (spatial fan-out during
// broadcast) safe as well.
type Manager struct {
	info Info

	mu       sync.RWMutex
	entities map[string]*Entity
	speakers map[string]lastSpeaker // listener ID → last speaker
	now      func() time.Time
}

// NewManager creates an empty Manager for the given zone record.
//
// Precondition: info.ID must be non-empty.
func NewManager(info Info) *Manager {
	return &Manager{
		info:     info,
		entities: make(map[string]*Entity),
		speakers: make(map[string]lastSpeaker),
		now:      time.Now,
	}
}

// Info returns the immutable zone record.
func (m *Manager) Info() Info { return m.info }

// AddEntity inserts (or overwrites) an entity.
//
// Precondition: e.ID must be non-empty.
// Postcondition: GetEntity(e.ID) returns the stored copy.
func (m *Manager) AddEntity(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := e
	m.entities[e.ID] = &stored
}

// AddPlayer inserts an entity of kind player bound to the given socket.
// An existing entity with the same ID is overwritten.
func (m *Manager) AddPlayer(id, name string, pos Position, socketID string, isMachine bool) {
	m.AddEntity(Entity{
		ID:        id,
		Name:      name,
		Kind:      KindPlayer,
		Position:  pos,
		SocketID:  socketID,
		IsMachine: isMachine,
	})
}

// RemovePlayer removes an entity by ID. Removing an absent ID is a no-op.
func (m *Manager) RemovePlayer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, id)
	delete(m.speakers, id)
}

// UpdatePosition moves an entity.
//
// Postcondition: Returns false if the entity is not resident.
func (m *Manager) UpdatePosition(id string, pos Position) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return false
	}
	e.Position = pos
	return true
}

// SetEntityCombatState flips the entity's danger flag.
func (m *Manager) SetEntityCombatState(id string, inCombat bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return false
	}
	e.InCombat = inCombat
	return true
}

// SetCompanionSocketID binds or releases a remote controller on a companion.
// An empty socketID releases.
//
// Postcondition: Returns false if the companion is not resident.
func (m *Manager) SetCompanionSocketID(companionID, socketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[companionID]
	if !ok || e.Kind != KindCompanion {
		return false
	}
	e.SocketID = socketID
	return true
}

// GetEntity returns a copy of the entity with the given ID.
func (m *Manager) GetEntity(id string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// FindEntityByName returns the entity whose name matches, case-insensitive.
func (m *Manager) FindEntityByName(name string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entities {
		if strings.EqualFold(e.Name, name) {
			return *e, true
		}
	}
	return Entity{}, false
}

// EntityCount returns the number of resident entities.
func (m *Manager) EntityCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// AllEntities returns copies of every resident entity in unspecified order.
func (m *Manager) AllEntities() []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, *e)
	}
	return out
}

// Nearby holds one spatial query hit.
type Nearby struct {
	Entity   Entity
	Distance float64
}

// EntitiesInRange returns all entities within rangeMetres of origin,
// sorted ascending by distance (ties broken by ID). An entity at exactly
// rangeMetres is included. excludeID is omitted when non-empty.
//
// The scan is O(N) over the entity table; zones are small enough that a
// spatial index has not paid for itself.
func (m *Manager) EntitiesInRange(origin Position, rangeMetres float64, excludeID string) []Nearby {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Nearby
	for _, e := range m.entities {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		d := origin.DistanceTo(e.Position)
		if d <= rangeMetres {
			hits = append(hits, Nearby{Entity: *e, Distance: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Entity.ID < hits[j].Entity.ID
	})
	return hits
}

// PlayerSocketIDsInRange returns the socket handles of player entities
// within rangeMetres of origin.
func (m *Manager) PlayerSocketIDsInRange(origin Position, rangeMetres float64, excludeID string) []string {
	return m.socketIDsInRange(origin, rangeMetres, excludeID, KindPlayer)
}

// CompanionSocketIDsInRange returns the socket handles of inhabited
// companions within rangeMetres of origin.
func (m *Manager) CompanionSocketIDsInRange(origin Position, rangeMetres float64, excludeID string) []string {
	return m.socketIDsInRange(origin, rangeMetres, excludeID, KindCompanion)
}

func (m *Manager) socketIDsInRange(origin Position, rangeMetres float64, excludeID string, kind EntityKind) []string {
	hits := m.EntitiesInRange(origin, rangeMetres, excludeID)
	var ids []string
	for _, h := range hits {
		if h.Entity.Kind == kind && h.Entity.SocketID != "" {
			ids = append(ids, h.Entity.SocketID)
		}
	}
	return ids
}

// RecordLastSpeaker notes that speakerName just spoke to the listener.
// The record expires after LastSpeakerMemory; expiry is checked on read.
func (m *Manager) RecordLastSpeaker(listenerID, speakerName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakers[listenerID] = lastSpeaker{name: speakerName, at: m.now()}
}

// lastSpeakerFor returns the unexpired speaker for the listener, purging a
// stale record.
func (m *Manager) lastSpeakerFor(listenerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.speakers[listenerID]
	if !ok {
		return "", false
	}
	if m.now().Sub(s.at) > LastSpeakerMemory {
		delete(m.speakers, listenerID)
		return "", false
	}
	return s.name, true
}
