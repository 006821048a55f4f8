package world

import "github.com/riftwalk/server/internal/game/zone"

// Client-facing event names published through gateway:output.
const (
	EventChat            = "chat"
	EventEmote           = "emote"
	EventCommandResult   = "command_result"
	EventProximityDelta  = "proximity_roster_delta"
	EventMovementStopped = "movement_stopped"
	EventCombatError     = "combat_error"
	EventCombatStart     = "combat_start"
	EventCombatAction    = "combat_action"
	EventCombatHit       = "combat_hit"
	EventCombatMiss      = "combat_miss"
	EventCombatDeath     = "combat_death"
	EventCombatEnd       = "combat_end"
)

// ChatEvent is delivered to every socket in the speech band.
type ChatEvent struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Channel    string `json:"channel"`
	Message    string `json:"message"`
}

// CommandResultEvent reports a command's outcome to its invoker.
type CommandResultEvent struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// MovementStoppedEvent reports a movement order ending.
type MovementStoppedEvent struct {
	EntityID string        `json:"entityId"`
	Reason   string        `json:"reason"`
	Position zone.Position `json:"position"`
}

// CombatErrorEvent reports a rejected combat action.
type CombatErrorEvent struct {
	Reason    string `json:"reason"`
	AbilityID string `json:"abilityId,omitempty"`
}

// CombatStartEvent announces a combat transition.
type CombatStartEvent struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
}

// CombatActionEvent announces an ability use.
type CombatActionEvent struct {
	AttackerID  string `json:"attackerId"`
	TargetID    string `json:"targetId"`
	AbilityID   string `json:"abilityId"`
	AbilityName string `json:"abilityName"`
}

// CombatHitEvent reports a landed attack.
type CombatHitEvent struct {
	AttackerID      string  `json:"attackerId"`
	TargetID        string  `json:"targetId"`
	Outcome         string  `json:"outcome"`
	Amount          float64 `json:"amount"`
	BaseDamage      float64 `json:"baseDamage"`
	MitigatedDamage float64 `json:"mitigatedDamage"`
}

// CombatMissEvent reports a whiffed attack.
type CombatMissEvent struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
}

// CombatDeathEvent reports a defender reduced to zero health.
type CombatDeathEvent struct {
	TargetID string `json:"targetId"`
}

// CombatEndEvent reports an entity leaving combat after the idle timeout.
type CombatEndEvent struct {
	EntityID string `json:"entityId"`
}
