// Package world hosts the per-zone simulation: it owns the zone entity
// tables, routes bus envelopes onto single-writer zone actors, runs the
// tick loop, and fans results back out to gateway sockets.
package world

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/config"
	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/command"
	"github.com/riftwalk/server/internal/game/dice"
	"github.com/riftwalk/server/internal/game/movement"
	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/metrics"
	"github.com/riftwalk/server/internal/npc"
	"github.com/riftwalk/server/internal/registry"
	"github.com/riftwalk/server/internal/storage"
)

// ObserverBand is the fan-out radius for combat events, matching the
// "hear" proximity channel.
var ObserverBand = zone.BandRange("hear")

// Deps carries everything a world Manager needs. All fields except NPCs,
// Metrics, and Dice are required.
type Deps struct {
	Server     config.ServerConfig
	Simulation config.SimulationConfig
	Bus        bus.Bus
	Store      storage.Store
	Registry   *registry.Registry
	NPCs       *npc.Controller
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Dice       dice.Source
}

// zoneState bundles the per-zone simulation systems. Everything in it is
// mutated only from the zone's actor goroutine.
type zoneState struct {
	zone     *zone.Manager
	movement *movement.System
	combat   *combat.Manager
	actor    *actor

	// rosters caches the last roster sent to each socket-bearing entity,
	// keyed by entity ID. Deltas are computed against these.
	rosters map[string]*zone.Roster
	// stats caches core stats for ATB fill-rate lookups during ticks.
	stats map[string]combat.CoreStats
}

// Manager runs every zone assigned to this server.
type Manager struct {
	serverID string
	host     string
	assigned []string

	bus      bus.Bus
	store    storage.Store
	registry *registry.Registry
	npcs     *npc.Controller
	metrics  *metrics.Metrics
	logger   *zap.Logger

	catalog  *combat.Catalog
	calc     *combat.Calculator
	commands *command.Registry
	executor *command.Executor
	ticks    *TickManager

	mu    sync.RWMutex
	zones map[string]*zoneState

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a world Manager. Zones are not loaded until Start.
//
// Precondition: d.Bus, d.Store, d.Registry, and d.Logger must be non-nil.
func New(d Deps) *Manager {
	src := d.Dice
	if src == nil {
		src = dice.NewCryptoSource()
	}
	reg := command.NewRegistry()
	command.RegisterBuiltins(reg)
	return &Manager{
		serverID: d.Server.ID,
		host:     d.Server.Host,
		assigned: d.Server.AssignedZones,
		bus:      d.Bus,
		store:    d.Store,
		registry: d.Registry,
		npcs:     d.NPCs,
		metrics:  d.Metrics,
		logger:   d.Logger,
		catalog:  combat.NewCatalog(storage.AbilityCatalogAdapter{Service: d.Store.Abilities}),
		calc:     combat.NewCalculator(src),
		commands: reg,
		executor: command.NewExecutor(reg, d.Bus, d.Logger),
		ticks:    NewTickManager(d.Simulation.TickInterval()),
		zones:    make(map[string]*zoneState),
	}
}

// Start loads the assigned zones (or every zone in the store when none are
// assigned), claims them in the registry, subscribes to their input
// channels, and starts the tick loop.
//
// Postcondition: On nil error every loaded zone is assigned and ticking.
func (s *Manager) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	records, err := s.zoneRecords(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no zones to serve")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := s.addZone(gctx, rec); err != nil {
				return fmt.Errorf("loading zone %s: %w", rec.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.ticks.Start(s.ctx)
	s.logger.Info("world started",
		zap.String("serverId", s.serverID),
		zap.Int("zones", len(records)))
	return nil
}

// Stop releases zone assignments and halts the tick loop and actors.
func (s *Manager) Stop(ctx context.Context) error {
	s.mu.Lock()
	zones := s.zones
	s.zones = make(map[string]*zoneState)
	s.mu.Unlock()

	for id := range zones {
		s.ticks.Unregister(id)
		if err := s.registry.UnassignZone(ctx, id); err != nil {
			s.logger.Warn("unassign zone failed", zap.String("zone", id), zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, zs := range zones {
		zs.actor.wait()
	}
	return nil
}

// ZoneIDs returns the IDs of the zones this manager currently serves.
func (s *Manager) ZoneIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	return ids
}

func (s *Manager) zoneRecords(ctx context.Context) ([]*storage.ZoneRecord, error) {
	if len(s.assigned) == 0 {
		return s.store.Zones.List(ctx)
	}
	records := make([]*storage.ZoneRecord, 0, len(s.assigned))
	for _, id := range s.assigned {
		rec, err := s.store.Zones.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("assigned zone %s: %w", id, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Manager) addZone(ctx context.Context, rec *storage.ZoneRecord) error {
	zm := zone.NewManager(zone.Info{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
	})
	zs := &zoneState{
		zone:    zm,
		combat:  combat.NewManager(),
		actor:   newActor(s.logger.With(zap.String("zone", rec.ID))),
		rosters: make(map[string]*zone.Roster),
		stats:   make(map[string]combat.CoreStats),
	}
	zs.movement = movement.NewSystem(zm, &storePersister{state: zs, store: s.store}, s.logger)

	companions, err := s.store.Companions.ListByZone(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("listing companions: %w", err)
	}
	for _, comp := range companions {
		zm.AddEntity(zone.Entity{
			ID:       comp.ID,
			Name:     comp.Name,
			Kind:     zone.KindCompanion,
			Position: comp.Position,
		})
		zs.stats[comp.ID] = comp.CoreStats
		if s.npcs != nil {
			s.npcs.SetPersona(comp.ID, comp.Personality)
		}
	}

	if err := s.registry.AssignZone(ctx, rec.ID, s.host); err != nil {
		return fmt.Errorf("claiming zone: %w", err)
	}

	s.mu.Lock()
	s.zones[rec.ID] = zs
	s.mu.Unlock()

	go zs.actor.run(s.ctx)

	channel := bus.ZoneInputChannel(rec.ID)
	err = s.bus.Subscribe(ctx, channel, func(_ string, env *bus.Envelope) {
		zs.actor.enqueue(func() { s.dispatch(zs, env) })
	})
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", channel, err)
	}

	s.ticks.RegisterTick(rec.ID, func(dt float64) {
		zs.actor.enqueue(func() { s.tickZone(zs, dt) })
	})
	return nil
}

// zoneState looks up the state for a zone ID.
func (s *Manager) zoneState(zoneID string) (*zoneState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zs, ok := s.zones[zoneID]
	return zs, ok
}

// tickZone advances one zone by dt seconds. Runs on the zone actor.
func (s *Manager) tickZone(zs *zoneState, dt float64) {
	start := time.Now()
	zoneID := zs.zone.Info().ID

	stops := zs.movement.Update(s.ctx, dt)
	for _, stop := range stops {
		s.sendToEntity(zs, stop.EntityID, EventMovementStopped, MovementStoppedEvent{
			EntityID: stop.EntityID,
			Reason:   string(stop.Reason),
			Position: stop.Position,
		})
	}

	expired := zs.combat.Update(dt, func(entityID string) float64 {
		return combat.AttackSpeedBonus(zs.stats[entityID])
	})
	for _, id := range expired {
		zs.zone.SetEntityCombatState(id, false)
		if e, ok := zs.zone.GetEntity(id); ok {
			s.fanOut(zs, e.Position, "", EventCombatEnd, CombatEndEvent{EntityID: id})
		}
	}

	s.refreshAllRosters(zs)

	if s.metrics != nil {
		s.metrics.TickDuration.WithLabelValues(zoneID).Observe(time.Since(start).Seconds())
		s.metrics.ZoneEntities.WithLabelValues(zoneID, string(zone.KindPlayer)).Set(float64(countKind(zs.zone, zone.KindPlayer)))
		s.metrics.ZoneEntities.WithLabelValues(zoneID, string(zone.KindCompanion)).Set(float64(countKind(zs.zone, zone.KindCompanion)))
	}
}

func countKind(zm *zone.Manager, kind zone.EntityKind) int {
	n := 0
	for _, e := range zm.AllEntities() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// refreshRosterFor recomputes one entity's roster, sends the delta to its
// socket when anything changed, and updates the cache. Entities without a
// socket are skipped.
func (s *Manager) refreshRosterFor(zs *zoneState, entityID string) {
	e, ok := zs.zone.GetEntity(entityID)
	if !ok {
		delete(zs.rosters, entityID)
		return
	}
	if e.SocketID == "" {
		return
	}
	delta, roster, ok := zs.zone.CalculateProximityRosterDelta(entityID, zs.rosters[entityID])
	if !ok {
		delete(zs.rosters, entityID)
		return
	}
	cached := roster
	zs.rosters[entityID] = &cached
	if delta == nil {
		return
	}
	s.sendToSocket(e.SocketID, EventProximityDelta, delta)
	if s.metrics != nil {
		s.metrics.RosterDeltas.Inc()
	}
}

// refreshAllRosters recomputes rosters for every socket-bearing entity.
// Unchanged rosters produce no traffic.
func (s *Manager) refreshAllRosters(zs *zoneState) {
	for _, e := range zs.zone.AllEntities() {
		if e.SocketID != "" {
			s.refreshRosterFor(zs, e.ID)
		}
	}
}

// sendToSocket publishes a CLIENT_MESSAGE for one gateway socket.
func (s *Manager) sendToSocket(socketID, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("marshalling client event", zap.String("event", event), zap.Error(err))
		return
	}
	env, err := bus.NewEnvelope(bus.TypeClientMessage, "", "", socketID, bus.ClientMessagePayload{
		SocketID: socketID,
		Event:    event,
		Data:     raw,
	})
	if err != nil {
		s.logger.Error("building client envelope", zap.String("event", event), zap.Error(err))
		return
	}
	if err := s.bus.Publish(s.ctx, bus.GatewayOutputChannel, env); err != nil {
		s.logger.Warn("publishing client event", zap.String("event", event), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.BusPublishes.WithLabelValues("gateway_output").Inc()
	}
}

// sendToEntity delivers an event to the entity's socket, if it has one.
func (s *Manager) sendToEntity(zs *zoneState, entityID, event string, data any) {
	if e, ok := zs.zone.GetEntity(entityID); ok && e.SocketID != "" {
		s.sendToSocket(e.SocketID, event, data)
	}
}

// fanOut delivers an event to every player socket and inhabited companion
// socket within ObserverBand of origin, excluding excludeID.
func (s *Manager) fanOut(zs *zoneState, origin zone.Position, excludeID, event string, data any) {
	s.fanOutRange(zs, origin, ObserverBand, excludeID, event, data)
}

// fanOutRange is fanOut with an explicit radius, used for chat channels
// whose band is narrower or wider than the observer band.
func (s *Manager) fanOutRange(zs *zoneState, origin zone.Position, rangeMetres float64, excludeID, event string, data any) {
	for _, socketID := range zs.zone.PlayerSocketIDsInRange(origin, rangeMetres, excludeID) {
		s.sendToSocket(socketID, event, data)
	}
	for _, socketID := range zs.zone.CompanionSocketIDsInRange(origin, rangeMetres, excludeID) {
		s.sendToSocket(socketID, event, data)
	}
}

// storePersister writes movement positions through the character or
// companion store depending on the entity's kind.
type storePersister struct {
	state *zoneState
	store storage.Store
}

func (p *storePersister) PersistPosition(ctx context.Context, entityID string, pos zone.Position) error {
	e, ok := p.state.zone.GetEntity(entityID)
	if !ok {
		return nil
	}
	if e.Kind == zone.KindCompanion {
		return p.store.Companions.UpdatePosition(ctx, entityID, pos)
	}
	heading, _ := p.state.movement.Heading(entityID)
	return p.store.Characters.UpdatePosition(ctx, entityID, pos, heading)
}
