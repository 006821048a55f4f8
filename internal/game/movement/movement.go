// Package movement integrates entity positions each tick for entities with
// an active movement order.
package movement

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/game/zone"
)

// PersistInterval is how often a mover's position is written through the
// character store while moving. Positions are also persisted at stop.
const PersistInterval = 1.0 // seconds

// snapDistance is how close a mover must be to a fixed target position
// before it snaps onto it and stops.
const snapDistance = 0.5 // metres

// SpeedMode selects the speed multiplier for a movement order.
type SpeedMode string

const (
	SpeedWalk SpeedMode = "walk"
	SpeedJog  SpeedMode = "jog"
	SpeedRun  SpeedMode = "run"
	SpeedStop SpeedMode = "stop"
)

// Multiplier returns the base-speed multiplier for the mode.
func (s SpeedMode) Multiplier() float64 {
	switch s {
	case SpeedWalk:
		return 1.0
	case SpeedJog:
		return 2.0
	case SpeedRun:
		return 3.5
	default:
		return 0
	}
}

// StopReason explains why a movement order ended.
type StopReason string

const (
	StopTargetReached   StopReason = "target_reached"
	StopTargetLost      StopReason = "target_lost"
	StopDistanceReached StopReason = "distance_reached"
	StopRequested       StopReason = "requested"
)

// Order is one entity's active movement state.
type Order struct {
	EntityID string
	// StartPosition is where the order began.
	StartPosition zone.Position
	// Heading is degrees clockwise from north; updated each tick when
	// tracking a target.
	Heading float64
	// Speed selects the multiplier; BaseSpeed is metres/second from the
	// entity's agility-derived stat.
	Speed     SpeedMode
	BaseSpeed float64
	// DistanceLimit caps total travel in metres; 0 means unlimited.
	DistanceLimit float64
	// TargetName tracks a zone entity by name or ID; empty means none.
	TargetName string
	// TargetPosition is a fixed destination; nil means none.
	TargetPosition *zone.Position
	// TargetRangeFeet is how close (feet) to approach a tracked target.
	TargetRangeFeet float64
	StartTime       time.Time

	distanceTraveled float64
	sincePersist     float64
}

// StopEvent reports a movement order ending during Update.
type StopEvent struct {
	EntityID string
	Reason   StopReason
	Position zone.Position
}

// PositionPersister writes a mover's position through the character store.
type PositionPersister interface {
	PersistPosition(ctx context.Context, entityID string, pos zone.Position) error
}

// System steps all active movement orders for one zone.
// It is driven only from the zone's actor, so no locking is needed.
type System struct {
	zone    *zone.Manager
	persist PositionPersister
	logger  *zap.Logger
	orders  map[string]*Order
}

// NewSystem creates a movement System bound to one zone manager.
//
// Precondition: zm, persist, and logger must be non-nil.
func NewSystem(zm *zone.Manager, persist PositionPersister, logger *zap.Logger) *System {
	return &System{
		zone:    zm,
		persist: persist,
		logger:  logger,
		orders:  make(map[string]*Order),
	}
}

// Start begins (or replaces) a movement order for ord.EntityID.
//
// Precondition: ord.EntityID must be resident in the zone.
func (s *System) Start(ord Order) {
	if e, ok := s.zone.GetEntity(ord.EntityID); ok {
		ord.StartPosition = e.Position
	}
	if ord.StartTime.IsZero() {
		ord.StartTime = time.Now()
	}
	stored := ord
	s.orders[ord.EntityID] = &stored
}

// Stop cancels an active order, persisting the final position.
//
// Postcondition: Returns the stop event, or false if no order was active.
func (s *System) Stop(ctx context.Context, entityID string) (StopEvent, bool) {
	ord, ok := s.orders[entityID]
	if !ok {
		return StopEvent{}, false
	}
	e, _ := s.zone.GetEntity(entityID)
	return s.finish(ctx, ord, e.Position, StopRequested), true
}

// Moving reports whether the entity has an active order.
func (s *System) Moving(entityID string) bool {
	_, ok := s.orders[entityID]
	return ok
}

// Heading returns the entity's current order heading in degrees.
func (s *System) Heading(entityID string) (float64, bool) {
	ord, ok := s.orders[entityID]
	if !ok {
		return 0, false
	}
	return ord.Heading, true
}

// Update advances every active order by dt seconds, writing positions into
// the zone manager and persisting on the 1-second cadence.
//
// Precondition: dt must be >= 0.
// Postcondition: Returns the orders that stopped this tick.
func (s *System) Update(ctx context.Context, dt float64) []StopEvent {
	var stops []StopEvent
	for _, ord := range s.orders {
		if ev, stopped := s.step(ctx, ord, dt); stopped {
			stops = append(stops, ev)
		}
	}
	return stops
}

func (s *System) step(ctx context.Context, ord *Order, dt float64) (StopEvent, bool) {
	entity, ok := s.zone.GetEntity(ord.EntityID)
	if !ok {
		delete(s.orders, ord.EntityID)
		return StopEvent{EntityID: ord.EntityID, Reason: StopTargetLost}, true
	}
	pos := entity.Position

	speed := ord.BaseSpeed * ord.Speed.Multiplier()
	step := speed * dt
	if step <= 0 {
		return StopEvent{}, false
	}

	switch {
	case ord.TargetPosition != nil:
		target := *ord.TargetPosition
		if pos.DistanceTo(target) <= snapDistance {
			s.place(ord.EntityID, target)
			return s.finish(ctx, ord, target, StopTargetReached), true
		}
		ord.Heading = float64(pos.BearingTo(target))

	case ord.TargetName != "":
		target, found := s.resolveTarget(ord.TargetName)
		if !found {
			return s.finish(ctx, ord, pos, StopTargetLost), true
		}
		ord.Heading = float64(pos.BearingTo(target.Position))
		if pos.DistanceTo(target.Position) <= ord.TargetRangeFeet*zone.FeetToMetres {
			return s.finish(ctx, ord, pos, StopTargetReached), true
		}
	}

	// Clamp the final step so cumulative distance lands exactly on the limit.
	limited := false
	if ord.DistanceLimit > 0 && ord.distanceTraveled+step >= ord.DistanceLimit {
		step = ord.DistanceLimit - ord.distanceTraveled
		limited = true
	}

	rad := ord.Heading * math.Pi / 180
	pos.X += math.Sin(rad) * step
	pos.Y += math.Cos(rad) * step
	ord.distanceTraveled += step
	s.place(ord.EntityID, pos)

	if limited {
		return s.finish(ctx, ord, pos, StopDistanceReached), true
	}

	ord.sincePersist += dt
	if ord.sincePersist >= PersistInterval {
		ord.sincePersist = 0
		s.persistPosition(ctx, ord.EntityID, pos)
	}
	return StopEvent{}, false
}

func (s *System) resolveTarget(nameOrID string) (zone.Entity, bool) {
	if e, ok := s.zone.FindEntityByName(nameOrID); ok {
		return e, true
	}
	return s.zone.GetEntity(nameOrID)
}

func (s *System) place(entityID string, pos zone.Position) {
	s.zone.UpdatePosition(entityID, pos)
}

// finish removes the order and persists the final position. Persist
// failures are logged, never fatal: the next order supersedes.
func (s *System) finish(ctx context.Context, ord *Order, pos zone.Position, reason StopReason) StopEvent {
	delete(s.orders, ord.EntityID)
	s.persistPosition(ctx, ord.EntityID, pos)
	return StopEvent{EntityID: ord.EntityID, Reason: reason, Position: pos}
}

func (s *System) persistPosition(ctx context.Context, entityID string, pos zone.Position) {
	if err := s.persist.PersistPosition(ctx, entityID, pos); err != nil {
		s.logger.Error("persisting position",
			zap.String("entity", entityID),
			zap.Error(err),
		)
	}
}
