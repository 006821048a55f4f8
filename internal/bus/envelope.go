package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeType discriminates the payload carried by an Envelope.
type EnvelopeType string

// Envelope types carried on zone input channels and the gateway output channel.
const (
	TypePlayerJoinZone        EnvelopeType = "PLAYER_JOIN_ZONE"
	TypePlayerLeaveZone       EnvelopeType = "PLAYER_LEAVE_ZONE"
	TypePlayerMove            EnvelopeType = "PLAYER_MOVE"
	TypePlayerChat            EnvelopeType = "PLAYER_CHAT"
	TypePlayerCommand         EnvelopeType = "PLAYER_COMMAND"
	TypePlayerCombatAction    EnvelopeType = "PLAYER_COMBAT_ACTION"
	TypePlayerProximityRefresh EnvelopeType = "PLAYER_PROXIMITY_REFRESH"
	TypeNPCInhabit            EnvelopeType = "NPC_INHABIT"
	TypeNPCRelease            EnvelopeType = "NPC_RELEASE"
	TypeNPCChat               EnvelopeType = "NPC_CHAT"
	TypeClientMessage         EnvelopeType = "CLIENT_MESSAGE"
)

// GatewayOutputChannel carries CLIENT_MESSAGE envelopes from zone servers to
// every gateway; each gateway forwards only the sockets it owns.
const GatewayOutputChannel = "gateway:output"

// ZoneInputChannel returns the input channel name for a zone.
func ZoneInputChannel(zoneID string) string {
	return "zone:" + zoneID + ":input"
}

// ZoneInputPattern matches every zone input channel.
const ZoneInputPattern = "zone:*:input"

// Envelope is the unit of transport on every bus channel. Payload holds the
// type-specific body; use Decode to recover the typed form.
type Envelope struct {
	Type        EnvelopeType    `json:"type"`
	ZoneID      string          `json:"zoneId,omitempty"`
	CharacterID string          `json:"characterId,omitempty"`
	SocketID    string          `json:"socketId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// Position is a point in zone space, metres. x = east, y = north, z = up.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// JoinZonePayload accompanies PLAYER_JOIN_ZONE.
type JoinZonePayload struct {
	CharacterName string   `json:"characterName"`
	Position      Position `json:"position"`
	IsMachine     bool     `json:"isMachine,omitempty"`
}

// LeaveZonePayload accompanies PLAYER_LEAVE_ZONE.
type LeaveZonePayload struct {
	Reason string `json:"reason,omitempty"`
}

// MovePayload accompanies PLAYER_MOVE.
type MovePayload struct {
	Position Position `json:"position"`
	Heading  float64  `json:"heading,omitempty"`
	Speed    string   `json:"speed,omitempty"`
}

// ChatPayload accompanies PLAYER_CHAT and NPC_CHAT.
type ChatPayload struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// CommandPayload accompanies PLAYER_COMMAND.
type CommandPayload struct {
	Line string `json:"line"`
}

// CombatActionPayload accompanies PLAYER_COMBAT_ACTION.
type CombatActionPayload struct {
	AbilityID   string    `json:"abilityId,omitempty"`
	AbilityName string    `json:"abilityName,omitempty"`
	TargetID    string    `json:"targetId,omitempty"`
	TargetName  string    `json:"targetName,omitempty"`
	Position    *Position `json:"position,omitempty"`
}

// ProximityRefreshPayload accompanies PLAYER_PROXIMITY_REFRESH.
type ProximityRefreshPayload struct {
	Force bool `json:"force,omitempty"`
}

// InhabitPayload accompanies NPC_INHABIT and NPC_RELEASE. For release the
// SocketID on the envelope identifies the controller being unbound.
type InhabitPayload struct {
	CompanionID string `json:"companionId"`
}

// ClientMessagePayload accompanies CLIENT_MESSAGE on gateway:output. Event is
// the wire event name delivered to the socket; Data is its JSON body.
type ClientMessagePayload struct {
	SocketID string          `json:"socketId"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope with the payload marshalled and the
// timestamp set to now.
//
// Precondition: payload must be JSON-marshallable (nil is allowed).
// Postcondition: Returns an Envelope ready to publish, or a non-nil error.
func NewEnvelope(t EnvelopeType, zoneID, characterID, socketID string, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", t, err)
		}
		raw = b
	}
	return &Envelope{
		Type:        t,
		ZoneID:      zoneID,
		CharacterID: characterID,
		SocketID:    socketID,
		Payload:     raw,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

// Encode serializes the envelope for transport.
func (e *Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshalling envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses a wire-format envelope.
//
// Postcondition: Returns the Envelope or a non-nil error; the payload is left
// raw for Decode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshalling envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("envelope missing type")
	}
	return &e, nil
}

// Decode recovers the typed payload for the envelope's type. Envelope types
// unknown to this build return an error so dispatchers can log and drop them.
//
// Postcondition: Returns one of the *Payload structs from this package.
func (e *Envelope) Decode() (any, error) {
	decode := func(v any) (any, error) {
		if len(e.Payload) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(e.Payload, v); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Type, err)
		}
		return v, nil
	}

	switch e.Type {
	case TypePlayerJoinZone:
		return decode(&JoinZonePayload{})
	case TypePlayerLeaveZone:
		return decode(&LeaveZonePayload{})
	case TypePlayerMove:
		return decode(&MovePayload{})
	case TypePlayerChat, TypeNPCChat:
		return decode(&ChatPayload{})
	case TypePlayerCommand:
		return decode(&CommandPayload{})
	case TypePlayerCombatAction:
		return decode(&CombatActionPayload{})
	case TypePlayerProximityRefresh:
		return decode(&ProximityRefreshPayload{})
	case TypeNPCInhabit, TypeNPCRelease:
		return decode(&InhabitPayload{})
	case TypeClientMessage:
		return decode(&ClientMessagePayload{})
	default:
		return nil, fmt.Errorf("unknown envelope type %q", e.Type)
	}
}
