package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// EventType enumerates the semantic events a command handler can emit.
type EventType string

const (
	EventSpeech         EventType = "speech"
	EventEmote          EventType = "emote"
	EventPrivateMessage EventType = "private_message"
	EventCombatAction   EventType = "combat_action"
	EventMovement       EventType = "movement"
	EventMovementStop   EventType = "movement_stop"
)

// Event is one semantic effect produced by a handler. Handlers never touch
// the network or the store; the world orchestrator translates events into
// broadcasts, combat actions, and movement.
type Event struct {
	Type EventType `json:"type"`

	// Speech, emote, and private messages.
	Message   string `json:"message,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	// Combat actions.
	AbilityID   string `json:"abilityId,omitempty"`
	AbilityName string `json:"abilityName,omitempty"`
	TargetID    string `json:"targetId,omitempty"`
	TargetName  string `json:"targetName,omitempty"`

	// Movement.
	Heading         *float64 `json:"heading,omitempty"`
	Speed           string   `json:"speed,omitempty"`
	DistanceFeet    float64  `json:"distanceFeet,omitempty"`
	TargetRangeFeet float64  `json:"targetRangeFeet,omitempty"`
}

// Result is what a handler returns to the executor.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Events  []Event        `json:"events,omitempty"`
}

// Failure builds a failed result with a user-visible error.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Parameter describes one parameter of a command.
type Parameter struct {
	Name        string
	Description string
	Required    bool
	// Named parameters are supplied as key:value pairs rather than
	// positionally.
	Named bool
	// Rest parameters swallow all remaining positional tokens.
	Rest bool
}

// Invocation carries the caller context and parsed arguments into a handler.
type Invocation struct {
	CharacterID   string
	CharacterName string
	ZoneID        string
	Args          []string
	Named         map[string]string
}

// Arg returns the i-th positional argument or "".
func (inv Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Rest joins the positional arguments from i onward with single spaces.
func (inv Invocation) Rest(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return strings.Join(inv.Args[i:], " ")
}

// Handler executes one command invocation.
type Handler func(ctx context.Context, inv Invocation) Result

// Command is a registered command definition.
type Command struct {
	Name        string
	Aliases     []string
	Category    string
	Description string
	Parameters  []Parameter
	// CooldownMS throttles re-use per character. Zero means none.
	CooldownMS     int
	RequiresTarget bool
	Handler        Handler
}

// Registry maps command names and aliases to definitions.
type Registry struct {
	byName map[string]*Command
	names  []string
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Command)}
}

// Register adds a command and its aliases.
//
// Precondition: The name and every alias match [a-z0-9_-]+ and are unused.
func (r *Registry) Register(cmd Command) error {
	if !namePattern.MatchString(cmd.Name) {
		return fmt.Errorf("invalid command name %q", cmd.Name)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	keys := append([]string{cmd.Name}, cmd.Aliases...)
	for _, k := range keys {
		if !namePattern.MatchString(k) {
			return fmt.Errorf("invalid alias %q for command %q", k, cmd.Name)
		}
		if _, exists := r.byName[k]; exists {
			return fmt.Errorf("command name %q already registered", k)
		}
	}
	c := cmd
	for _, k := range keys {
		r.byName[k] = &c
	}
	r.names = append(r.names, keys...)
	sort.Strings(r.names)
	return nil
}

// Resolve looks up a command by name or alias.
func (r *Registry) Resolve(name string) (*Command, bool) {
	c, ok := r.byName[strings.ToLower(name)]
	return c, ok
}

// Names returns every registered name and alias, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Commands returns the distinct registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	seen := make(map[string]bool)
	var out []*Command
	for _, n := range r.names {
		c := r.byName[n]
		if !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
