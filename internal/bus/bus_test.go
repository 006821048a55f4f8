package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypePlayerChat, "zone-1", "char-1", "sock-1", ChatPayload{
		Channel: "say",
		Message: "hello there",
	})
	require.NoError(t, err)

	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypePlayerChat, decoded.Type)
	assert.Equal(t, "zone-1", decoded.ZoneID)
	assert.Equal(t, "char-1", decoded.CharacterID)
	assert.Equal(t, "sock-1", decoded.SocketID)

	payload, err := decoded.Decode()
	require.NoError(t, err)
	chat, ok := payload.(*ChatPayload)
	require.True(t, ok)
	assert.Equal(t, "say", chat.Channel)
	assert.Equal(t, "hello there", chat.Message)
}

func TestEnvelope_Property_AllTypesRoundTrip(t *testing.T) {
	types := []EnvelopeType{
		TypePlayerJoinZone, TypePlayerLeaveZone, TypePlayerMove,
		TypePlayerChat, TypePlayerCommand, TypePlayerCombatAction,
		TypePlayerProximityRefresh, TypeNPCInhabit, TypeNPCRelease,
		TypeNPCChat, TypeClientMessage,
	}
	rapid.Check(t, func(rt *rapid.T) {
		et := types[rapid.IntRange(0, len(types)-1).Draw(rt, "type")]
		zone := rapid.StringMatching(`zone-[0-9]{1,3}`).Draw(rt, "zone")
		env, err := NewEnvelope(et, zone, "c", "s", nil)
		require.NoError(rt, err)
		data, err := env.Encode()
		require.NoError(rt, err)
		decoded, err := DecodeEnvelope(data)
		require.NoError(rt, err)
		assert.Equal(rt, et, decoded.Type)
		assert.Equal(rt, zone, decoded.ZoneID)
		_, err = decoded.Decode()
		assert.NoError(rt, err)
	})
}

func TestEnvelope_UnknownType(t *testing.T) {
	env := &Envelope{Type: "SOMETHING_NEW"}
	_, err := env.Decode()
	assert.Error(t, err)
}

func TestDecodeEnvelope_MissingType(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestMemoryBus_ExactSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var got []*Envelope
	require.NoError(t, b.Subscribe(ctx, "zone:z1:input", func(_ string, env *Envelope) {
		got = append(got, env)
	}))

	env, _ := NewEnvelope(TypePlayerMove, "z1", "c1", "", MovePayload{Position: Position{X: 1}})
	require.NoError(t, b.Publish(ctx, "zone:z1:input", env))
	require.NoError(t, b.Publish(ctx, "zone:z2:input", env)) // different channel

	require.Len(t, got, 1)
	assert.Equal(t, TypePlayerMove, got[0].Type)
}

func TestMemoryBus_PatternSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var channels []string
	require.NoError(t, b.PSubscribe(ctx, ZoneInputPattern, func(ch string, _ *Envelope) {
		channels = append(channels, ch)
	}))

	env, _ := NewEnvelope(TypePlayerChat, "z1", "c1", "", ChatPayload{Channel: "say", Message: "x"})
	require.NoError(t, b.Publish(ctx, ZoneInputChannel("z1"), env))
	require.NoError(t, b.Publish(ctx, ZoneInputChannel("z9"), env))
	require.NoError(t, b.Publish(ctx, GatewayOutputChannel, env))

	assert.Equal(t, []string{"zone:z1:input", "zone:z9:input"}, channels)
}

func TestMemoryBus_OrderPreserved(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var order []string
	require.NoError(t, b.Subscribe(ctx, "ch", func(_ string, env *Envelope) {
		order = append(order, env.CharacterID)
	}))

	for _, id := range []string{"a", "b", "c", "d"} {
		env, _ := NewEnvelope(TypePlayerChat, "", id, "", nil)
		require.NoError(t, b.Publish(ctx, "ch", env))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestMemoryBus_KV(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "zone:assignment:z1", `{"serverId":"s1"}`))
	val, ok, err := b.Get(ctx, "zone:assignment:z1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"serverId":"s1"}`, val)

	exists, err := b.Exists(ctx, "zone:assignment:z1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, b.Del(ctx, "zone:assignment:z1"))
	_, ok, err = b.Get(ctx, "zone:assignment:z1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBus_TTLExpiry(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, b.SetEx(ctx, "server:heartbeat:s1", 20*time.Millisecond, "now"))
	exists, err := b.Exists(ctx, "server:heartbeat:s1")
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(30 * time.Millisecond)
	exists, err = b.Exists(ctx, "server:heartbeat:s1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryBus_Keys(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "zone:assignment:z1", "a"))
	require.NoError(t, b.Set(ctx, "zone:assignment:z2", "b"))
	require.NoError(t, b.Set(ctx, "player:location:c1", "c"))

	keys, err := b.Keys(ctx, "zone:assignment:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"zone:assignment:z1", "zone:assignment:z2"}, keys)
}

func TestMemoryBus_ClosedDropsPublish(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	called := false
	require.NoError(t, b.Subscribe(ctx, "ch", func(string, *Envelope) { called = true }))
	require.NoError(t, b.Close())
	assert.False(t, b.Connected())

	env, _ := NewEnvelope(TypePlayerChat, "", "", "", nil)
	require.NoError(t, b.Publish(ctx, "ch", env))
	assert.False(t, called)
}

func TestClientMessagePayload_Shape(t *testing.T) {
	data, err := json.Marshal(map[string]any{"hp": 10})
	require.NoError(t, err)
	env, err := NewEnvelope(TypeClientMessage, "", "", "", ClientMessagePayload{
		SocketID: "sock-9",
		Event:    "combat_hit",
		Data:     data,
	})
	require.NoError(t, err)

	payload, err := env.Decode()
	require.NoError(t, err)
	cm := payload.(*ClientMessagePayload)
	assert.Equal(t, "sock-9", cm.SocketID)
	assert.Equal(t, "combat_hit", cm.Event)
	assert.JSONEq(t, `{"hp":10}`, string(cm.Data))
}
