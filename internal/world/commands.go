package world

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/command"
	"github.com/riftwalk/server/internal/game/movement"
	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/storage"
)

// handleCommand runs one slash command through the executor and translates
// the resulting intents into zone effects.
func (s *Manager) handleCommand(zs *zoneState, env *bus.Envelope, p *bus.CommandPayload) {
	sender, ok := zs.zone.GetEntity(env.CharacterID)
	if !ok {
		return
	}
	inv := command.Invocation{
		CharacterID:   sender.ID,
		CharacterName: sender.Name,
		ZoneID:        zs.zone.Info().ID,
	}
	res := s.executor.Execute(s.ctx, inv, p.Line)

	s.sendToSocket(sender.SocketID, EventCommandResult, CommandResultEvent{
		Success: res.Success,
		Message: res.Message,
		Error:   res.Error,
		Data:    res.Data,
	})
	for _, ev := range res.Events {
		s.applyCommandEvent(zs, sender, ev)
	}
}

// applyCommandEvent turns one command intent into zone state changes and
// client traffic. The sender entity is re-read where an earlier event in
// the same result may have moved it.
func (s *Manager) applyCommandEvent(zs *zoneState, sender zone.Entity, ev command.Event) {
	if cur, ok := zs.zone.GetEntity(sender.ID); ok {
		sender = cur
	}
	switch ev.Type {
	case command.EventSpeech:
		s.deliverChat(zs, sender, ev.Channel, ev.Message)
	case command.EventEmote:
		s.deliverChat(zs, sender, "emote", sender.Name+" "+ev.Message)
	case command.EventPrivateMessage:
		s.deliverWhisper(zs, sender, ev.Recipient, ev.Message)
	case command.EventCombatAction:
		s.handleCombatAction(zs, sender.ID, bus.CombatActionPayload{
			AbilityID:   ev.AbilityID,
			AbilityName: ev.AbilityName,
			TargetID:    ev.TargetID,
			TargetName:  ev.TargetName,
		})
	case command.EventMovement:
		s.applyMovementEvent(zs, sender, ev)
	case command.EventMovementStop:
		if stop, ok := zs.movement.Stop(s.ctx, sender.ID); ok {
			s.sendToEntity(zs, sender.ID, EventMovementStopped, MovementStoppedEvent{
				EntityID: sender.ID,
				Reason:   string(stop.Reason),
				Position: stop.Position,
			})
		} else {
			// Nothing in flight; persist where the entity stands.
			s.persistCurrentPosition(zs, sender.ID)
		}
	default:
		s.logger.Warn("unhandled command event", zap.String("type", string(ev.Type)))
	}
}

// deliverWhisper routes a private message to its recipient wherever in the
// cluster they are connected.
func (s *Manager) deliverWhisper(zs *zoneState, sender zone.Entity, recipientName, message string) {
	ch, err := s.store.Characters.FindByName(s.ctx, recipientName)
	if errors.Is(err, storage.ErrNotFound) {
		s.sendToSocket(sender.SocketID, EventCommandResult, CommandResultEvent{
			Success: false, Error: "no such character: " + recipientName,
		})
		return
	}
	if err != nil {
		s.logger.Error("whisper recipient lookup", zap.String("name", recipientName), zap.Error(err))
		return
	}
	loc, online, err := s.registry.GetPlayerLocation(s.ctx, ch.ID)
	if err != nil {
		s.logger.Error("whisper location lookup", zap.String("character", ch.ID), zap.Error(err))
		return
	}
	if !online {
		s.sendToSocket(sender.SocketID, EventCommandResult, CommandResultEvent{
			Success: false, Error: recipientName + " is not online",
		})
		return
	}
	data := ChatEvent{
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Channel:    "whisper",
		Message:    message,
	}
	s.sendToSocket(loc.SocketID, EventChat, data)
	s.sendToSocket(sender.SocketID, EventChat, data)
}

// applyMovementEvent moves the sender one discrete step, either toward a
// named target or along an explicit heading.
func (s *Manager) applyMovementEvent(zs *zoneState, sender zone.Entity, ev command.Event) {
	if ev.TargetID != "" || ev.TargetName != "" {
		s.stepTowardTarget(zs, sender, ev)
		return
	}
	if ev.Heading == nil {
		return
	}
	if ev.DistanceFeet > 0 {
		// An explicit travel distance becomes a tick-driven order rather
		// than a teleport.
		zs.movement.Start(s.buildOrder(zs, sender, *ev.Heading, ev.Speed, ev.DistanceFeet*zone.FeetToMetres))
		return
	}
	s.stepAlongHeading(zs, sender, *ev.Heading)
}

// stepTowardTarget closes the gap to the target in one step, stopping at
// the requested approach range.
func (s *Manager) stepTowardTarget(zs *zoneState, sender zone.Entity, ev command.Event) {
	target, ok := zs.zone.GetEntity(ev.TargetID)
	if !ok {
		target, ok = zs.zone.FindEntityByName(ev.TargetName)
	}
	if !ok || target.ID == sender.ID {
		s.sendToSocket(sender.SocketID, EventCommandResult, CommandResultEvent{
			Success: false, Error: "no such target",
		})
		return
	}
	dist := sender.Position.DistanceTo(target.Position)
	stopAt := math.Max(0, dist-ev.TargetRangeFeet*zone.FeetToMetres)
	if stopAt <= 0 {
		return
	}
	heading := float64(sender.Position.BearingTo(target.Position))
	s.placeStep(zs, sender, heading, stopAt)
}

// stepAlongHeading moves one movement-speed metre step in the given
// direction. Entities always cover at least half a metre so a step is
// visible on the roster.
func (s *Manager) stepAlongHeading(zs *zoneState, sender zone.Entity, heading float64) {
	step := math.Max(0.5, combat.MovementSpeed(zs.stats[sender.ID]))
	s.placeStep(zs, sender, heading, step)
}

// placeStep integrates a single step and persists the landing position.
func (s *Manager) placeStep(zs *zoneState, sender zone.Entity, heading, step float64) {
	rad := heading * math.Pi / 180
	pos := zone.Position{
		X: sender.Position.X + math.Sin(rad)*step,
		Y: sender.Position.Y + math.Cos(rad)*step,
		Z: sender.Position.Z,
	}
	if !zs.zone.UpdatePosition(sender.ID, pos) {
		return
	}
	if err := s.store.Characters.UpdatePosition(s.ctx, sender.ID, pos, heading); err != nil {
		s.logger.Warn("persisting step", zap.String("character", sender.ID), zap.Error(err))
	}
	s.refreshAllRosters(zs)
}

// persistCurrentPosition writes the entity's in-memory position through to
// the store.
func (s *Manager) persistCurrentPosition(zs *zoneState, entityID string) {
	e, ok := zs.zone.GetEntity(entityID)
	if !ok {
		return
	}
	if e.Kind == zone.KindCompanion {
		if err := s.store.Companions.UpdatePosition(s.ctx, entityID, e.Position); err != nil {
			s.logger.Warn("persisting companion position", zap.String("companion", entityID), zap.Error(err))
		}
		return
	}
	heading, _ := zs.movement.Heading(entityID)
	if err := s.store.Characters.UpdatePosition(s.ctx, entityID, e.Position, heading); err != nil {
		s.logger.Warn("persisting character position", zap.String("character", entityID), zap.Error(err))
	}
}

// buildOrder assembles a tick-driven movement order for an entity.
func (s *Manager) buildOrder(zs *zoneState, e zone.Entity, heading float64, speed string, distanceMetres float64) movement.Order {
	if movementSpeedMode(speed) == "" {
		speed = "walk"
	}
	return movement.Order{
		EntityID:      e.ID,
		StartPosition: e.Position,
		Heading:       heading,
		Speed:         movement.SpeedMode(movementSpeedMode(speed)),
		BaseSpeed:     combat.MovementSpeed(zs.stats[e.ID]),
		DistanceLimit: distanceMetres,
	}
}
