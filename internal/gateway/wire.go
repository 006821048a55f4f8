package gateway

import (
	"encoding/json"

	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/game/zone"
)

// ProtocolVersion is the wire protocol this gateway speaks. A client
// handshaking with a different version is told so and disconnected.
const ProtocolVersion = 1

// clientMessage is the inbound frame shape: a type tag and a typed body.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// serverMessage is the outbound frame shape.
type serverMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event types.
const (
	msgHandshake        = "handshake"
	msgAuth             = "auth"
	msgCharacterSelect  = "character_select"
	msgCharacterCreate  = "character_create"
	msgMove             = "move"
	msgChat             = "chat"
	msgCommand          = "command"
	msgCombatAction     = "combat_action"
	msgInteract         = "interact"
	msgPing             = "ping"
	msgPlayerPeek       = "player_peek"
	msgProximityRefresh = "proximity_refresh"
)

type handshakeRequest struct {
	Version    int    `json:"version"`
	ClientInfo string `json:"clientInfo,omitempty"`
}

type handshakeAck struct {
	Version      int      `json:"version"`
	Compatible   bool     `json:"compatible"`
	Capabilities []string `json:"capabilities"`
}

type authRequest struct {
	Method   string `json:"method"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

type characterSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ZoneID string `json:"zoneId"`
	Level  int    `json:"level"`
}

type authSuccess struct {
	AccountID          string             `json:"accountId"`
	Token              string             `json:"token"`
	Characters         []characterSummary `json:"characters"`
	CanCreateCharacter bool               `json:"canCreateCharacter"`
	MaxCharacters      int                `json:"maxCharacters"`
}

type authError struct {
	Reason   string `json:"reason"`
	Message  string `json:"message"`
	CanRetry bool   `json:"canRetry"`
}

type characterSelectRequest struct {
	CharacterID string `json:"characterId"`
}

type characterCreateRequest struct {
	Name       string            `json:"name"`
	Appearance map[string]string `json:"appearance,omitempty"`
}

type worldEntry struct {
	Character worldEntryCharacter `json:"character"`
	Zone      worldEntryZone      `json:"zone"`
}

type worldEntryCharacter struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Position  zone.Position      `json:"position"`
	Heading   float64            `json:"heading"`
	Core      combat.CoreStats   `json:"coreStats"`
	Derived   combat.CombatStats `json:"derivedStats"`
	Resources any                `json:"resources"`
}

type worldEntryZone struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type moveRequest struct {
	Method    string         `json:"method,omitempty"`
	Speed     string         `json:"speed,omitempty"`
	Heading   float64        `json:"heading,omitempty"`
	Position  *zone.Position `json:"position,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

type chatRequest struct {
	Channel   string `json:"channel"`
	Message   string `json:"message"`
	Target    string `json:"target,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type commandRequest struct {
	Line string `json:"line"`
}

type combatActionRequest struct {
	AbilityID   string         `json:"abilityId,omitempty"`
	AbilityName string         `json:"abilityName,omitempty"`
	TargetID    string         `json:"targetId,omitempty"`
	TargetName  string         `json:"targetName,omitempty"`
	Position    *zone.Position `json:"position,omitempty"`
	Timestamp   int64          `json:"timestamp,omitempty"`
}

type interactRequest struct {
	TargetID  string `json:"targetId"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type pingRequest struct {
	Timestamp int64 `json:"timestamp"`
}

type pongResponse struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

type playerPeekRequest struct {
	TargetName string `json:"targetName"`
}

type playerPeekResponse struct {
	TargetName string `json:"targetName"`
	Online     bool   `json:"online"`
	ZoneID     string `json:"zoneId,omitempty"`
}

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}
