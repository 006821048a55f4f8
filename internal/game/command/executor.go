package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
)

const maxSuggestions = 3

// CooldownKey is the KV key holding a command's expiry timestamp for one
// character. The value is unix milliseconds; the key's TTL matches the
// command cooldown so stale entries clean themselves up.
func CooldownKey(characterID, commandName string) string {
	return "cooldown:" + characterID + ":" + commandName
}

// Executor parses lines, enforces cooldowns and parameters, and runs
// handlers.
type Executor struct {
	registry *Registry
	kv       bus.Bus
	logger   *zap.Logger
	now      func() time.Time

	// allow is the permission hook. The default allows everything.
	allow func(inv Invocation, cmd *Command) bool
}

// NewExecutor creates an Executor over a registry and the bus KV used for
// cluster-wide cooldown state.
func NewExecutor(registry *Registry, kv bus.Bus, logger *zap.Logger) *Executor {
	return &Executor{
		registry: registry,
		kv:       kv,
		logger:   logger,
		now:      time.Now,
		allow:    func(Invocation, *Command) bool { return true },
	}
}

// Execute parses and runs one raw command line for the invoking character.
// Failures are returned as unsuccessful results, never as errors; the only
// error paths a caller sees are inside Result.Error.
func (e *Executor) Execute(ctx context.Context, inv Invocation, raw string) Result {
	parsed, err := Parse(raw)
	if err != nil {
		return Failure("%v", err)
	}

	cmd, ok := e.registry.Resolve(parsed.Name)
	if !ok {
		res := Failure("unknown command %q", parsed.Name)
		if suggestions := e.Suggest(parsed.Name); len(suggestions) > 0 {
			res.Data = map[string]any{"suggestions": suggestions}
		}
		return res
	}

	if !e.allow(inv, cmd) {
		return Failure("you are not allowed to use %q", cmd.Name)
	}

	if remaining, onCooldown := e.cooldownRemaining(ctx, inv.CharacterID, cmd.Name); onCooldown {
		res := Failure("%q is on cooldown for %s", cmd.Name, remaining.Round(time.Millisecond))
		res.Data = map[string]any{"cooldownMs": remaining.Milliseconds()}
		return res
	}

	inv.Args = parsed.Args
	inv.Named = parsed.Named
	if msg := validateParameters(cmd, inv); msg != "" {
		return Failure("%s", msg)
	}

	result := cmd.Handler(ctx, inv)
	if result.Success && cmd.CooldownMS > 0 {
		e.writeCooldown(ctx, inv.CharacterID, cmd)
	}
	return result
}

// Suggest returns up to three nearby command names for an unknown input:
// prefix matches first, then substring matches, then names within edit
// distance three.
func (e *Executor) Suggest(input string) []string {
	input = strings.ToLower(input)
	names := e.registry.Names()

	var matches []string
	for _, n := range names {
		if strings.HasPrefix(n, input) {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		for _, n := range names {
			if strings.Contains(n, input) {
				matches = append(matches, n)
			}
		}
	}
	if len(matches) == 0 {
		type scored struct {
			name string
			dist int
		}
		var close []scored
		for _, n := range names {
			if d := levenshtein(input, n); d <= 3 {
				close = append(close, scored{n, d})
			}
		}
		sort.Slice(close, func(i, j int) bool {
			if close[i].dist != close[j].dist {
				return close[i].dist < close[j].dist
			}
			return close[i].name < close[j].name
		})
		for _, s := range close {
			matches = append(matches, s.name)
		}
	}

	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	return matches
}

func (e *Executor) cooldownRemaining(ctx context.Context, characterID, name string) (time.Duration, bool) {
	if e.kv == nil {
		return 0, false
	}
	val, ok, err := e.kv.Get(ctx, CooldownKey(characterID, name))
	if err != nil {
		// Best-effort: an unreadable cooldown never blocks the command.
		e.logger.Error("cooldown read failed", zap.String("command", name), zap.Error(err))
		return 0, false
	}
	if !ok {
		return 0, false
	}
	expiryMS, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	remaining := time.UnixMilli(expiryMS).Sub(e.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

func (e *Executor) writeCooldown(ctx context.Context, characterID string, cmd *Command) {
	if e.kv == nil {
		return
	}
	ttl := time.Duration(cmd.CooldownMS) * time.Millisecond
	expiry := e.now().Add(ttl).UnixMilli()
	key := CooldownKey(characterID, cmd.Name)
	if err := e.kv.SetEx(ctx, key, ttl, strconv.FormatInt(expiry, 10)); err != nil {
		// The command already ran. A lost cooldown write just means the
		// character can repeat it early.
		e.logger.Error("cooldown write failed", zap.String("command", cmd.Name), zap.Error(err))
	}
}

func validateParameters(cmd *Command, inv Invocation) string {
	var positional []Parameter
	for _, p := range cmd.Parameters {
		if p.Named {
			if p.Required && inv.Named[p.Name] == "" {
				return fmt.Sprintf("missing required parameter %q", p.Name)
			}
			continue
		}
		positional = append(positional, p)
	}
	required := 0
	for _, p := range positional {
		if p.Required {
			required++
		}
	}
	if len(inv.Args) < required {
		missing := positional[len(inv.Args)]
		return fmt.Sprintf("missing required parameter %q", missing.Name)
	}
	if cmd.RequiresTarget && inv.Arg(0) == "" && inv.Named["target"] == "" {
		return fmt.Sprintf("%q requires a target", cmd.Name)
	}
	return ""
}

// levenshtein is the plain dynamic-programming edit distance, small enough
// that command names never need more than two rows.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
