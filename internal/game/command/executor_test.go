package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
)

func newTestExecutor(t *testing.T) (*Executor, *Registry, *bus.MemoryBus) {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	kv := bus.NewMemoryBus()
	return NewExecutor(r, kv, zap.NewNop()), r, kv
}

func invokeAs(name string) Invocation {
	return Invocation{CharacterID: "char-1", CharacterName: name, ZoneID: "zone-1"}
}

func TestExecuteSay(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/say hello out there")
	require.True(t, res.Success)
	require.Len(t, res.Events, 1)
	assert.Equal(t, EventSpeech, res.Events[0].Type)
	assert.Equal(t, "say", res.Events[0].Channel)
	assert.Equal(t, "hello out there", res.Events[0].Message)
}

func TestExecuteAlias(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/w Bren \"see you soon\"")
	require.True(t, res.Success)
	require.Len(t, res.Events, 1)
	assert.Equal(t, EventPrivateMessage, res.Events[0].Type)
	assert.Equal(t, "Bren", res.Events[0].Recipient)
	assert.Equal(t, "see you soon", res.Events[0].Message)
}

func TestExecuteUnknownSuggestsAlternatives(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/sy hi")
	require.False(t, res.Success)
	require.NotNil(t, res.Data)
	suggestions, ok := res.Data["suggestions"].([]string)
	require.True(t, ok)
	assert.Contains(t, suggestions, "say")
}

func TestSuggestTiers(t *testing.T) {
	e, r, _ := newTestExecutor(t)
	require.NoError(t, r.Register(Command{
		Name:    "teleport",
		Handler: func(context.Context, Invocation) Result { return Result{Success: true} },
	}))

	// Prefix beats everything.
	assert.Equal(t, []string{"s", "say", "shout"}, e.Suggest("s"))
	// Substring when no prefix matches.
	assert.Equal(t, []string{"teleport"}, e.Suggest("port"))
	// Edit distance as the last resort, closest first.
	assert.Equal(t, []string{"say", "s", "a"}, e.Suggest("sby"))
	// Nothing within distance 3.
	assert.Empty(t, e.Suggest("xxxxxxxxxx"))
}

func TestExecuteMissingRequiredParameter(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/whisper Bren")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "message")
}

func TestExecuteMissingRequiredNamedParameter(t *testing.T) {
	e, r, _ := newTestExecutor(t)
	require.NoError(t, r.Register(Command{
		Name: "warp",
		Parameters: []Parameter{
			{Name: "destination", Required: true, Named: true},
		},
		Handler: func(_ context.Context, inv Invocation) Result {
			return Result{Success: true, Message: inv.Named["destination"]}
		},
	}))

	res := e.Execute(context.Background(), invokeAs("Aria"), "/warp")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "destination")

	res = e.Execute(context.Background(), invokeAs("Aria"), "/warp destination:spire")
	require.True(t, res.Success)
	assert.Equal(t, "spire", res.Message)
}

func TestExecuteRequiresTarget(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/attack")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "target")
}

func TestExecuteCooldown(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	res := e.Execute(context.Background(), invokeAs("Aria"), "/shout the gates are open")
	require.True(t, res.Success)

	// Second shout inside the 3 s window is rejected with the remaining time.
	now = now.Add(time.Second)
	res = e.Execute(context.Background(), invokeAs("Aria"), "/shout again")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "cooldown")
	assert.Equal(t, int64(2000), res.Data["cooldownMs"])

	// A different character is unaffected.
	other := Invocation{CharacterID: "char-2", CharacterName: "Bren", ZoneID: "zone-1"}
	res = e.Execute(context.Background(), other, "/shout me too")
	assert.True(t, res.Success)

	// After expiry the command runs again.
	now = now.Add(3 * time.Second)
	res = e.Execute(context.Background(), invokeAs("Aria"), "/shout once more")
	assert.True(t, res.Success)
}

func TestExecuteFailureSkipsCooldownWrite(t *testing.T) {
	e, _, kv := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), `/shout ""`)
	require.False(t, res.Success)
	_, ok, err := kv.Get(context.Background(), CooldownKey("char-1", "shout"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutePermissionHook(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	e.allow = func(_ Invocation, cmd *Command) bool { return cmd.Category != "combat" }

	res := e.Execute(context.Background(), invokeAs("Aria"), "/attack Rotfang")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "not allowed")

	res = e.Execute(context.Background(), invokeAs("Aria"), "/say still fine")
	assert.True(t, res.Success)
}

func TestMoveTargetForm(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), `/move target:"Rotfang the Elder" range:5`)
	require.True(t, res.Success)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, EventMovement, ev.Type)
	assert.Equal(t, "Rotfang the Elder", ev.TargetName)
	assert.Equal(t, 5.0, ev.TargetRangeFeet)
	assert.Nil(t, ev.Heading)
}

func TestMoveHeadingForm(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/move heading:450 speed:run distance:30")
	require.True(t, res.Success)
	ev := res.Events[0]
	require.NotNil(t, ev.Heading)
	assert.Equal(t, 90.0, *ev.Heading)
	assert.Equal(t, "run", ev.Speed)
	assert.Equal(t, 30.0, ev.DistanceFeet)
}

func TestMoveRejectsBadInput(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	for _, raw := range []string{"/move", "/move heading:north", "/move target:Bren range:-2"} {
		res := e.Execute(context.Background(), invokeAs("Aria"), raw)
		assert.False(t, res.Success, "raw=%q", raw)
	}
}

func TestStopEmitsMovementStop(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), invokeAs("Aria"), "/stop")
	require.True(t, res.Success)
	require.Len(t, res.Events, 1)
	assert.Equal(t, EventMovementStop, res.Events[0].Type)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("say", "say"))
	assert.Equal(t, 1, levenshtein("say", "stay"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
