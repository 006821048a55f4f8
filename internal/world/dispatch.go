package world

import (
	"strings"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/game/zone"
	"github.com/riftwalk/server/internal/npc"
)

// dispatch routes one inbound envelope to its handler. Runs on the zone
// actor, so handlers may mutate zone state freely.
func (s *Manager) dispatch(zs *zoneState, env *bus.Envelope) {
	if s.metrics != nil {
		s.metrics.EnvelopesHandled.WithLabelValues(string(env.Type)).Inc()
	}
	payload, err := env.Decode()
	if err != nil {
		s.logger.Warn("dropping malformed envelope",
			zap.String("type", string(env.Type)), zap.Error(err))
		return
	}

	switch p := payload.(type) {
	case *bus.JoinZonePayload:
		s.handleJoin(zs, env, p)
	case *bus.LeaveZonePayload:
		s.handleLeave(zs, env)
	case *bus.MovePayload:
		s.handleMove(zs, env, p)
	case *bus.ChatPayload:
		if env.Type == bus.TypeNPCChat {
			s.handleNPCChat(zs, env, p)
		} else {
			s.handleChat(zs, env, p)
		}
	case *bus.CommandPayload:
		s.handleCommand(zs, env, p)
	case *bus.CombatActionPayload:
		s.handleCombatAction(zs, env.CharacterID, *p)
	case *bus.ProximityRefreshPayload:
		s.handleProximityRefresh(zs, env)
	case *bus.InhabitPayload:
		if env.Type == bus.TypeNPCRelease {
			s.handleRelease(zs, p)
		} else {
			s.handleInhabit(zs, env, p)
		}
	default:
		s.logger.Warn("unhandled envelope type", zap.String("type", string(env.Type)))
	}
}

// handleJoin adds the player to the zone, records its gateway location,
// and sends the joiner a full roster (as a delta against nothing).
func (s *Manager) handleJoin(zs *zoneState, env *bus.Envelope, p *bus.JoinZonePayload) {
	pos := zone.Position{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z}
	zs.zone.AddPlayer(env.CharacterID, p.CharacterName, pos, env.SocketID, p.IsMachine)
	delete(zs.rosters, env.CharacterID)

	if ch, err := s.store.Characters.GetByID(s.ctx, env.CharacterID); err == nil {
		zs.stats[env.CharacterID] = ch.CoreStats
	} else {
		s.logger.Warn("loading joiner stats", zap.String("character", env.CharacterID), zap.Error(err))
	}

	zoneID := zs.zone.Info().ID
	if err := s.registry.UpdatePlayerLocation(s.ctx, env.CharacterID, zoneID, env.SocketID); err != nil {
		s.logger.Warn("recording player location", zap.String("character", env.CharacterID), zap.Error(err))
	}

	s.logger.Info("player joined zone",
		zap.String("zone", zoneID),
		zap.String("character", env.CharacterID),
		zap.String("name", p.CharacterName))

	// The joiner's first delta is the full roster; everyone else sees the
	// newcomer appear in theirs.
	s.refreshAllRosters(zs)
}

// handleLeave removes the player and everything keyed on it.
func (s *Manager) handleLeave(zs *zoneState, env *bus.Envelope) {
	id := env.CharacterID
	if _, moving := zs.movement.Stop(s.ctx, id); moving {
		s.logger.Debug("movement order cancelled on leave", zap.String("character", id))
	}
	zs.zone.RemovePlayer(id)
	zs.combat.Remove(id)
	delete(zs.rosters, id)
	delete(zs.stats, id)

	if err := s.registry.RemovePlayer(s.ctx, id); err != nil {
		s.logger.Warn("clearing player location", zap.String("character", id), zap.Error(err))
	}
	s.logger.Info("player left zone",
		zap.String("zone", zs.zone.Info().ID),
		zap.String("character", id))
	s.refreshAllRosters(zs)
}

// handleMove applies a client position update. A non-empty Speed starts or
// stops a server-driven movement order instead.
func (s *Manager) handleMove(zs *zoneState, env *bus.Envelope, p *bus.MovePayload) {
	id := env.CharacterID
	e, ok := zs.zone.GetEntity(id)
	if !ok {
		return
	}

	if p.Speed != "" {
		s.applyMoveOrder(zs, e, p)
		return
	}

	pos := zone.Position{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z}
	if zs.zone.UpdatePosition(id, pos) {
		s.refreshAllRosters(zs)
	}
}

// applyMoveOrder starts a continuous heading-directed movement order, or
// stops the active one when speed is "stop".
func (s *Manager) applyMoveOrder(zs *zoneState, e zone.Entity, p *bus.MovePayload) {
	mode := movementSpeedMode(p.Speed)
	if mode == "" {
		s.sendToSocket(e.SocketID, EventCommandResult, CommandResultEvent{
			Success: false, Error: "unknown speed " + p.Speed,
		})
		return
	}
	if mode == "stop" {
		if stop, ok := zs.movement.Stop(s.ctx, e.ID); ok {
			s.sendToEntity(zs, e.ID, EventMovementStopped, MovementStoppedEvent{
				EntityID: e.ID,
				Reason:   string(stop.Reason),
				Position: stop.Position,
			})
		}
		return
	}
	zs.movement.Start(s.buildOrder(zs, e, p.Heading, mode, 0))
}

// handleChat fans a chat line out to the channel's band and lets tracked
// companions hear (and possibly answer) it.
func (s *Manager) handleChat(zs *zoneState, env *bus.Envelope, p *bus.ChatPayload) {
	sender, ok := zs.zone.GetEntity(env.CharacterID)
	if !ok {
		return
	}
	s.deliverChat(zs, sender, p.Channel, p.Message)
}

// handleNPCChat is chat originated by an inhabited companion; the envelope
// CharacterID carries the companion ID.
func (s *Manager) handleNPCChat(zs *zoneState, env *bus.Envelope, p *bus.ChatPayload) {
	sender, ok := zs.zone.GetEntity(env.CharacterID)
	if !ok || sender.Kind != zone.KindCompanion {
		return
	}
	s.deliverChat(zs, sender, p.Channel, p.Message)
}

// deliverChat is the shared fan-out for player and companion speech.
func (s *Manager) deliverChat(zs *zoneState, sender zone.Entity, channel, message string) {
	band := zone.BandRange(channel)
	if band == 0 {
		channel = "say"
		band = zone.BandRange("say")
	}
	event := EventChat
	if channel == "emote" {
		event = EventEmote
	}
	data := ChatEvent{
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Channel:    channel,
		Message:    message,
	}
	// The speaker hears itself; listeners get their roster channels
	// annotated with the last speaker for the memory window.
	s.fanOutRange(zs, sender.Position, band, "", event, data)
	for _, n := range zs.zone.EntitiesInRange(sender.Position, band, sender.ID) {
		zs.zone.RecordLastSpeaker(n.Entity.ID, sender.Name)
		if n.Entity.Kind == zone.KindCompanion {
			s.relayToCompanion(zs, n.Entity, sender, channel, message)
		}
	}
}

// relayToCompanion feeds speech into a companion's conversation context and
// triggers a model-generated reply when the companion is addressed and not
// inhabited by a human.
func (s *Manager) relayToCompanion(zs *zoneState, comp, sender zone.Entity, channel, message string) {
	if s.npcs == nil {
		return
	}
	s.npcs.Track(comp.ID, sender.Name, message)
	if !s.npcs.ShouldRespond(comp.ID, comp.Name, message) {
		return
	}
	prompt := npc.ChatMessage{Sender: sender.Name, Text: message}
	zoneID := zs.zone.Info().ID
	// Generation happens off the actor; the reply re-enters through the
	// zone input channel like any other chat.
	go func() {
		reply, err := s.npcs.Respond(s.ctx, comp.ID, prompt)
		if err != nil || reply == "" {
			return
		}
		env, err := bus.NewEnvelope(bus.TypeNPCChat, zoneID, comp.ID, "", bus.ChatPayload{
			Channel: channel,
			Message: reply,
		})
		if err != nil {
			s.logger.Error("building npc chat envelope", zap.Error(err))
			return
		}
		if err := s.bus.Publish(s.ctx, bus.ZoneInputChannel(zoneID), env); err != nil {
			s.logger.Warn("publishing npc chat", zap.Error(err))
		}
	}()
}

// handleProximityRefresh drops the cached roster so the next delta is the
// full roster again.
func (s *Manager) handleProximityRefresh(zs *zoneState, env *bus.Envelope) {
	delete(zs.rosters, env.CharacterID)
	s.refreshRosterFor(zs, env.CharacterID)
}

// handleInhabit binds a controller socket to a companion.
func (s *Manager) handleInhabit(zs *zoneState, env *bus.Envelope, p *bus.InhabitPayload) {
	if !zs.zone.SetCompanionSocketID(p.CompanionID, env.SocketID) {
		s.logger.Warn("inhabit of unknown companion", zap.String("companion", p.CompanionID))
		return
	}
	if s.npcs != nil {
		s.npcs.Inhabit(p.CompanionID, env.SocketID)
	}
	delete(zs.rosters, p.CompanionID)
	s.refreshAllRosters(zs)
}

// handleRelease unbinds a companion's controller socket.
func (s *Manager) handleRelease(zs *zoneState, p *bus.InhabitPayload) {
	zs.zone.SetCompanionSocketID(p.CompanionID, "")
	if s.npcs != nil {
		s.npcs.Release(p.CompanionID)
	}
	delete(zs.rosters, p.CompanionID)
	s.refreshAllRosters(zs)
}

func movementSpeedMode(speed string) string {
	switch strings.ToLower(speed) {
	case "walk", "jog", "run", "stop":
		return strings.ToLower(speed)
	}
	return ""
}
