package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RegisterBuiltins installs the stock chat, combat, and movement commands.
func RegisterBuiltins(r *Registry) error {
	builtins := []Command{
		{
			Name:        "say",
			Aliases:     []string{"s"},
			Category:    "chat",
			Description: "Speak to everyone within earshot.",
			Parameters:  []Parameter{{Name: "message", Required: true, Rest: true}},
			Handler:     handleSay,
		},
		{
			Name:        "shout",
			Category:    "chat",
			Description: "Shout so the whole area hears you.",
			Parameters:  []Parameter{{Name: "message", Required: true, Rest: true}},
			CooldownMS:  3000,
			Handler:     handleShout,
		},
		{
			Name:        "emote",
			Aliases:     []string{"me", "em"},
			Category:    "chat",
			Description: "Describe an action in the third person.",
			Parameters:  []Parameter{{Name: "action", Required: true, Rest: true}},
			Handler:     handleEmote,
		},
		{
			Name:        "whisper",
			Aliases:     []string{"w", "tell"},
			Category:    "chat",
			Description: "Send a private message to a named player.",
			Parameters: []Parameter{
				{Name: "recipient", Required: true},
				{Name: "message", Required: true, Rest: true},
			},
			Handler: handleWhisper,
		},
		{
			Name:           "attack",
			Aliases:        []string{"a"},
			Category:       "combat",
			Description:    "Attack a target, optionally with a named ability.",
			Parameters:     []Parameter{{Name: "target", Required: true}},
			RequiresTarget: true,
			Handler:        handleAttack,
		},
		{
			Name:        "move",
			Aliases:     []string{"go"},
			Category:    "movement",
			Description: "Step toward a target or along a heading.",
			Handler:     handleMove,
		},
		{
			Name:        "stop",
			Category:    "movement",
			Description: "Stop moving and hold position.",
			Handler:     handleStop,
		},
	}
	for _, cmd := range builtins {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func handleSay(_ context.Context, inv Invocation) Result {
	msg := inv.Rest(0)
	return Result{
		Success: true,
		Events:  []Event{{Type: EventSpeech, Channel: "say", Message: msg}},
	}
}

func handleShout(_ context.Context, inv Invocation) Result {
	msg := inv.Rest(0)
	if msg == "" {
		return Failure("nothing to shout")
	}
	return Result{
		Success: true,
		Events:  []Event{{Type: EventSpeech, Channel: "shout", Message: strings.ToUpper(msg[:1]) + msg[1:]}},
	}
}

func handleEmote(_ context.Context, inv Invocation) Result {
	return Result{
		Success: true,
		Events:  []Event{{Type: EventEmote, Message: inv.Rest(0)}},
	}
}

func handleWhisper(_ context.Context, inv Invocation) Result {
	return Result{
		Success: true,
		Events: []Event{{
			Type:      EventPrivateMessage,
			Recipient: inv.Arg(0),
			Message:   inv.Rest(1),
		}},
	}
}

func handleAttack(_ context.Context, inv Invocation) Result {
	ev := Event{
		Type:        EventCombatAction,
		TargetName:  inv.Arg(0),
		AbilityID:   inv.Named["ability"],
		AbilityName: inv.Named["name"],
	}
	if t := inv.Named["target"]; t != "" && ev.TargetName == "" {
		ev.TargetName = t
	}
	return Result{Success: true, Events: []Event{ev}}
}

// handleMove accepts either a target form (target:<name> [range:<feet>]) or
// a heading form (heading:<degrees> [speed:<walk|jog|run>]).
func handleMove(_ context.Context, inv Invocation) Result {
	target := inv.Named["target"]
	if target == "" {
		target = inv.Arg(0)
	}

	ev := Event{Type: EventMovement, Speed: inv.Named["speed"]}
	if ev.Speed == "" {
		ev.Speed = "walk"
	}

	if target != "" {
		ev.TargetName = target
		if rangeStr := inv.Named["range"]; rangeStr != "" {
			feet, err := strconv.ParseFloat(rangeStr, 64)
			if err != nil || feet < 0 {
				return Failure("invalid range %q", rangeStr)
			}
			ev.TargetRangeFeet = feet
		}
		return Result{Success: true, Events: []Event{ev}}
	}

	headingStr := inv.Named["heading"]
	if headingStr == "" {
		return Failure("move needs a target or a heading")
	}
	heading, err := strconv.ParseFloat(headingStr, 64)
	if err != nil {
		return Failure("invalid heading %q", headingStr)
	}
	heading = normalizeHeading(heading)
	ev.Heading = &heading

	if distStr := inv.Named["distance"]; distStr != "" {
		feet, err := strconv.ParseFloat(distStr, 64)
		if err != nil || feet < 0 {
			return Failure("invalid distance %q", distStr)
		}
		ev.DistanceFeet = feet
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("moving on heading %.0f", heading),
		Events:  []Event{ev},
	}
}

func handleStop(_ context.Context, _ Invocation) Result {
	return Result{Success: true, Events: []Event{{Type: EventMovementStop}}}
}

func normalizeHeading(h float64) float64 {
	for h < 0 {
		h += 360
	}
	for h >= 360 {
		h -= 360
	}
	return h
}
