package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/storage"
)

// transport is the outbound half of one client connection. The WebSocket
// implementation lives in server.go; tests substitute a recorder.
type transport interface {
	Send(msg serverMessage) error
	Close() error
}

// Session is the per-socket state machine. All inbound handling for one
// socket runs on its read goroutine, so fields need no lock; the transport
// serializes concurrent outbound writes itself.
type Session struct {
	id     string
	srv    *Server
	out    transport
	logger *zap.Logger

	handshaken    bool
	authenticated bool
	accountID     string
	characterID   string
	characterName string
	zoneID        string
	clientInfo    string
	lastPing      time.Time
}

// ID returns the socket identifier used in bus envelopes.
func (s *Session) ID() string { return s.id }

func (s *Session) send(event string, data any) {
	if err := s.out.Send(serverMessage{Event: event, Data: data}); err != nil {
		s.logger.Debug("send failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Session) sendError(code, message string) {
	s.send("error", errorResponse{Code: code, Message: message, Severity: "error"})
}

// handle dispatches one inbound frame. Unknown types produce an error
// event; malformed bodies likewise.
func (s *Session) handle(ctx context.Context, msg clientMessage) {
	decode := func(v any) bool {
		if err := json.Unmarshal(msg.Data, v); err != nil {
			s.sendError("bad_payload", "malformed "+msg.Type+" payload")
			return false
		}
		return true
	}

	if msg.Type != msgHandshake && !s.handshaken {
		s.sendError("protocol", "handshake required")
		return
	}

	switch msg.Type {
	case msgHandshake:
		var req handshakeRequest
		if msg.Data != nil && !decode(&req) {
			return
		}
		s.handleHandshake(req)
	case msgAuth:
		var req authRequest
		if decode(&req) {
			s.handleAuth(ctx, req)
		}
	case msgCharacterSelect:
		var req characterSelectRequest
		if decode(&req) {
			s.handleCharacterSelect(ctx, req)
		}
	case msgCharacterCreate:
		var req characterCreateRequest
		if decode(&req) {
			s.handleCharacterCreate(ctx, req)
		}
	case msgMove:
		var req moveRequest
		if decode(&req) {
			s.handleMove(ctx, req)
		}
	case msgChat:
		var req chatRequest
		if decode(&req) {
			s.handleChat(ctx, req)
		}
	case msgCommand:
		var req commandRequest
		if decode(&req) {
			s.forwardInWorld(ctx, bus.TypePlayerCommand, bus.CommandPayload{Line: req.Line})
		}
	case msgCombatAction:
		var req combatActionRequest
		if decode(&req) {
			s.handleCombatAction(ctx, req)
		}
	case msgInteract:
		var req interactRequest
		if decode(&req) {
			// Accepted at the wire; the interaction system is not built.
			s.logger.Debug("interact dropped",
				zap.String("target", req.TargetID), zap.String("action", req.Action))
		}
	case msgPing:
		var req pingRequest
		if decode(&req) {
			s.lastPing = time.Now()
			s.send("pong", pongResponse{
				ClientTimestamp: req.Timestamp,
				ServerTimestamp: time.Now().UnixMilli(),
			})
		}
	case msgPlayerPeek:
		var req playerPeekRequest
		if decode(&req) {
			s.handlePlayerPeek(ctx, req)
		}
	case msgProximityRefresh:
		s.forwardInWorld(ctx, bus.TypePlayerProximityRefresh, bus.ProximityRefreshPayload{Force: true})
	default:
		s.sendError("unknown_type", "unknown message type "+msg.Type)
	}
}

func (s *Session) handleHandshake(req handshakeRequest) {
	compatible := req.Version == ProtocolVersion
	s.clientInfo = req.ClientInfo
	s.send("handshake_ack", handshakeAck{
		Version:      ProtocolVersion,
		Compatible:   compatible,
		Capabilities: []string{"proximity_roster_delta", "commands", "combat", "npc_inhabit"},
	})
	if !compatible {
		// Grace period so the ack flushes before the close.
		go func() {
			time.Sleep(time.Second)
			_ = s.out.Close()
		}()
		return
	}
	s.handshaken = true
}

func (s *Session) handleAuth(ctx context.Context, req authRequest) {
	var (
		acct *storage.Account
		err  error
	)
	switch req.Method {
	case AuthMethodGuest:
		acct, err = s.srv.auth.Guest(ctx)
	case AuthMethodCredentials:
		acct, err = s.srv.auth.Credentials(ctx, req.Username, req.Password)
	case AuthMethodToken:
		acct, err = s.srv.auth.Token(ctx, req.Token)
	default:
		s.send("auth_error", authError{
			Reason: "unsupported_method", Message: "unsupported auth method " + req.Method, CanRetry: true,
		})
		return
	}
	if errors.Is(err, ErrAuthFailed) {
		s.send("auth_error", authError{
			Reason: "invalid_credentials", Message: "authentication failed", CanRetry: true,
		})
		return
	}
	if err != nil {
		s.logger.Error("auth provider failure", zap.String("method", req.Method), zap.Error(err))
		s.send("auth_error", authError{
			Reason: "internal", Message: "authentication unavailable", CanRetry: true,
		})
		return
	}

	token, err := s.srv.auth.IssueToken(acct.ID)
	if err != nil {
		s.logger.Error("issuing session token", zap.Error(err))
		s.send("auth_error", authError{Reason: "internal", Message: "authentication unavailable", CanRetry: true})
		return
	}

	chars, err := s.srv.store.Characters.ListByAccount(ctx, acct.ID)
	if err != nil {
		s.logger.Error("listing characters", zap.String("account", acct.ID), zap.Error(err))
		chars = nil
	}
	summaries := make([]characterSummary, 0, len(chars))
	for _, c := range chars {
		summaries = append(summaries, characterSummary{
			ID: c.ID, Name: c.Name, ZoneID: c.ZoneID, Level: c.CoreStats.Level,
		})
	}

	s.authenticated = true
	s.accountID = acct.ID
	if err := s.srv.store.Accounts.UpdateLastLogin(ctx, acct.ID); err != nil {
		s.logger.Warn("recording login time", zap.Error(err))
	}
	s.send("auth_success", authSuccess{
		AccountID:          acct.ID,
		Token:              token,
		Characters:         summaries,
		CanCreateCharacter: len(chars) < acct.MaxCharacters,
		MaxCharacters:      acct.MaxCharacters,
	})
}

func (s *Session) handleCharacterSelect(ctx context.Context, req characterSelectRequest) {
	if !s.authenticated {
		s.sendError("unauthenticated", "authenticate first")
		return
	}
	ch, err := s.srv.store.Characters.GetByID(ctx, req.CharacterID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && ch.AccountID != s.accountID) {
		s.sendError("not_owned", "character not found on this account")
		return
	}
	if err != nil {
		s.logger.Error("loading character", zap.String("character", req.CharacterID), zap.Error(err))
		s.sendError("internal", "character unavailable")
		return
	}
	if err := s.srv.store.Characters.UpdateLastSeen(ctx, ch.ID); err != nil {
		s.logger.Warn("recording last seen", zap.Error(err))
	}
	s.enterWorld(ctx, ch)
}

func (s *Session) handleCharacterCreate(ctx context.Context, req characterCreateRequest) {
	if !s.authenticated {
		s.sendError("unauthenticated", "authenticate first")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.sendError("invalid_name", "character name required")
		return
	}

	starter, err := s.srv.starterZone(ctx)
	if err != nil {
		s.logger.Error("resolving starter zone", zap.Error(err))
		s.sendError("internal", "no starter zone available")
		return
	}

	core := storage.DefaultCoreStats()
	derived := combat.DeriveCombatStats(core)
	ch, err := s.srv.store.Characters.Create(ctx, &storage.Character{
		AccountID:  s.accountID,
		Name:       name,
		ZoneID:     starter.ID,
		Position:   starter.Spawn,
		CoreStats:  core,
		Appearance: req.Appearance,
		Resources: storage.Resources{
			CurrentHealth: derived.MaxHealth, MaxHealth: derived.MaxHealth,
			CurrentStamina: 100, MaxStamina: 100,
			CurrentMana: 100, MaxMana: 100,
		},
	})
	if errors.Is(err, storage.ErrNameTaken) {
		s.sendError("name_taken", "that name is already in use")
		return
	}
	if err != nil {
		s.logger.Error("creating character", zap.Error(err))
		s.sendError("internal", "could not create character")
		return
	}
	s.enterWorld(ctx, ch)
}

// enterWorld binds the session to a character and announces it to the
// owning zone server.
func (s *Session) enterWorld(ctx context.Context, ch *storage.Character) {
	s.characterID = ch.ID
	s.characterName = ch.Name
	s.zoneID = ch.ZoneID

	s.send("world_entry", worldEntry{
		Character: worldEntryCharacter{
			ID:        ch.ID,
			Name:      ch.Name,
			Position:  ch.Position,
			Heading:   ch.Heading,
			Core:      ch.CoreStats,
			Derived:   combat.DeriveCombatStats(ch.CoreStats),
			Resources: ch.Resources,
		},
		Zone: s.srv.zoneSummary(ctx, ch.ZoneID),
	})

	if err := s.srv.registry.UpdatePlayerLocation(ctx, ch.ID, ch.ZoneID, s.id); err != nil {
		s.logger.Warn("recording player location", zap.Error(err))
	}
	s.publishToZone(ctx, bus.TypePlayerJoinZone, bus.JoinZonePayload{
		CharacterName: ch.Name,
		Position:      bus.Position{X: ch.Position.X, Y: ch.Position.Y, Z: ch.Position.Z},
	})
}

func (s *Session) handleMove(ctx context.Context, req moveRequest) {
	if !s.inWorld() {
		return
	}
	p := bus.MovePayload{Heading: req.Heading, Speed: req.Speed}
	if req.Position != nil {
		p.Position = bus.Position{X: req.Position.X, Y: req.Position.Y, Z: req.Position.Z}
		if err := s.srv.store.Characters.UpdatePosition(ctx, s.characterID, *req.Position, req.Heading); err != nil {
			s.logger.Warn("persisting move", zap.Error(err))
		}
	}
	s.publishToZone(ctx, bus.TypePlayerMove, p)
}

func (s *Session) handleChat(ctx context.Context, req chatRequest) {
	if !s.inWorld() {
		return
	}
	// Slash lines typed into chat are commands.
	if strings.HasPrefix(req.Message, "/") {
		s.publishToZone(ctx, bus.TypePlayerCommand, bus.CommandPayload{Line: req.Message})
		return
	}
	s.publishToZone(ctx, bus.TypePlayerChat, bus.ChatPayload{
		Channel: req.Channel,
		Message: req.Message,
		Target:  req.Target,
	})
}

func (s *Session) handleCombatAction(ctx context.Context, req combatActionRequest) {
	if !s.inWorld() {
		return
	}
	p := bus.CombatActionPayload{
		AbilityID:   req.AbilityID,
		AbilityName: req.AbilityName,
		TargetID:    req.TargetID,
		TargetName:  req.TargetName,
	}
	if req.Position != nil {
		p.Position = &bus.Position{X: req.Position.X, Y: req.Position.Y, Z: req.Position.Z}
	}
	s.publishToZone(ctx, bus.TypePlayerCombatAction, p)
}

func (s *Session) handlePlayerPeek(ctx context.Context, req playerPeekRequest) {
	if !s.authenticated {
		s.sendError("unauthenticated", "authenticate first")
		return
	}
	resp := playerPeekResponse{TargetName: req.TargetName}
	ch, err := s.srv.store.Characters.FindByName(ctx, req.TargetName)
	if err == nil {
		loc, online, lookupErr := s.srv.registry.GetPlayerLocation(ctx, ch.ID)
		if lookupErr == nil && online {
			resp.Online = true
			resp.ZoneID = loc.ZoneID
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("peek lookup", zap.String("name", req.TargetName), zap.Error(err))
	}
	s.send("player_peek_response", resp)
}

func (s *Session) inWorld() bool {
	return s.authenticated && s.characterID != "" && s.zoneID != ""
}

// forwardInWorld publishes a typed payload when the session has entered a
// zone, silently dropping it otherwise.
func (s *Session) forwardInWorld(ctx context.Context, t bus.EnvelopeType, payload any) {
	if !s.inWorld() {
		return
	}
	s.publishToZone(ctx, t, payload)
}

func (s *Session) publishToZone(ctx context.Context, t bus.EnvelopeType, payload any) {
	env, err := bus.NewEnvelope(t, s.zoneID, s.characterID, s.id, payload)
	if err != nil {
		s.logger.Error("building envelope", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := s.srv.bus.Publish(ctx, bus.ZoneInputChannel(s.zoneID), env); err != nil {
		s.logger.Warn("publishing to zone", zap.String("type", string(t)), zap.Error(err))
	}
}

// disconnect tears the session down after the socket is gone: the zone is
// told the player left and the registry entry is cleared.
func (s *Session) disconnect(ctx context.Context, reason string) {
	if s.inWorld() {
		s.publishToZone(ctx, bus.TypePlayerLeaveZone, bus.LeaveZonePayload{Reason: reason})
		if err := s.srv.registry.RemovePlayer(ctx, s.characterID); err != nil {
			s.logger.Warn("clearing player location", zap.Error(err))
		}
	}
	s.characterID = ""
	s.zoneID = ""
}
