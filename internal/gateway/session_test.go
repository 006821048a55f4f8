package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/config"
	"github.com/riftwalk/server/internal/registry"
	"github.com/riftwalk/server/internal/storage"
)

// recorder captures outbound frames in place of a websocket.
type recorder struct {
	mu     sync.Mutex
	frames []serverMessage
	closed bool
}

func (r *recorder) Send(msg serverMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, msg)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) named(event string) []serverMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []serverMessage
	for _, f := range r.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) last(t *testing.T, event string) serverMessage {
	t.Helper()
	frames := r.named(event)
	require.NotEmpty(t, frames, "no %s frame", event)
	return frames[len(frames)-1]
}

type sessionFixture struct {
	srv  *Server
	sess *Session
	rec  *recorder
	bus  *bus.MemoryBus
	ms   *storage.MemoryStore
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	b := bus.NewMemoryBus()
	ms := storage.NewMemoryStore()
	ms.SeedZone(storage.ZoneRecord{ID: "zone-start", Name: "Starting Fields"})

	logger := zaptest.NewLogger(t)
	cfg := config.GatewayConfig{
		Host: "127.0.0.1", Port: 0,
		TokenSecret: "test-secret", TokenTTL: time.Hour,
	}
	srv := NewServer(cfg, b, ms.Services(), registry.New("gw-test", b, logger), nil, logger)
	srv.ctx = context.Background()

	rec := &recorder{}
	sess := &Session{id: "sock-test", srv: srv, out: rec, logger: logger}
	srv.sessions[sess.id] = sess
	return &sessionFixture{srv: srv, sess: sess, rec: rec, bus: b, ms: ms}
}

func (f *sessionFixture) dispatch(t *testing.T, msgType string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	f.sess.handle(context.Background(), clientMessage{Type: msgType, Data: raw})
}

func (f *sessionFixture) handshakeAndGuest(t *testing.T) authSuccess {
	t.Helper()
	f.dispatch(t, msgHandshake, handshakeRequest{Version: ProtocolVersion})
	f.dispatch(t, msgAuth, authRequest{Method: AuthMethodGuest})
	var success authSuccess
	decodeFrame(t, f.rec.last(t, "auth_success"), &success)
	return success
}

func decodeFrame(t *testing.T, frame serverMessage, v any) {
	t.Helper()
	raw, err := json.Marshal(frame.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

// capture records envelopes published to one zone input channel.
func capture(t *testing.T, b *bus.MemoryBus, zoneID string) func() []*bus.Envelope {
	t.Helper()
	var mu sync.Mutex
	var envs []*bus.Envelope
	err := b.Subscribe(context.Background(), bus.ZoneInputChannel(zoneID), func(_ string, env *bus.Envelope) {
		mu.Lock()
		envs = append(envs, env)
		mu.Unlock()
	})
	require.NoError(t, err)
	return func() []*bus.Envelope {
		mu.Lock()
		defer mu.Unlock()
		return append([]*bus.Envelope(nil), envs...)
	}
}

func TestHandshakeVersionMismatchCloses(t *testing.T) {
	f := newSessionFixture(t)
	f.dispatch(t, msgHandshake, handshakeRequest{Version: 99})

	var ack handshakeAck
	decodeFrame(t, f.rec.last(t, "handshake_ack"), &ack)
	assert.False(t, ack.Compatible)
	assert.Equal(t, ProtocolVersion, ack.Version)

	// Everything else is rejected until a compatible handshake.
	f.dispatch(t, msgAuth, authRequest{Method: AuthMethodGuest})
	assert.Empty(t, f.rec.named("auth_success"))
}

func TestMessagesBeforeHandshakeRejected(t *testing.T) {
	f := newSessionFixture(t)
	f.dispatch(t, msgPing, pingRequest{Timestamp: 123})
	require.NotEmpty(t, f.rec.named("error"))
	assert.Empty(t, f.rec.named("pong"))
}

func TestGuestAuthIssuesUsableToken(t *testing.T) {
	f := newSessionFixture(t)
	success := f.handshakeAndGuest(t)
	assert.NotEmpty(t, success.AccountID)
	assert.NotEmpty(t, success.Token)
	assert.True(t, success.CanCreateCharacter)

	// The issued token authenticates a fresh session.
	f2 := newSessionFixture(t)
	// Shared account store so the account resolves.
	f2.srv.store = f.srv.store
	f2.srv.auth = f.srv.auth
	f2.dispatch(t, msgHandshake, handshakeRequest{Version: ProtocolVersion})
	f2.dispatch(t, msgAuth, authRequest{Method: AuthMethodToken, Token: success.Token})

	var again authSuccess
	decodeFrame(t, f2.rec.last(t, "auth_success"), &again)
	assert.Equal(t, success.AccountID, again.AccountID)
}

func TestCredentialsAuthRejectsBadPassword(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.ms.Services().Accounts.Create(context.Background(), "yareli", "correct-horse")
	require.NoError(t, err)

	f.dispatch(t, msgHandshake, handshakeRequest{Version: ProtocolVersion})
	f.dispatch(t, msgAuth, authRequest{
		Method: AuthMethodCredentials, Username: "yareli", Password: "wrong",
	})
	var authErr authError
	decodeFrame(t, f.rec.last(t, "auth_error"), &authErr)
	assert.Equal(t, "invalid_credentials", authErr.Reason)
	assert.True(t, authErr.CanRetry)

	f.dispatch(t, msgAuth, authRequest{
		Method: AuthMethodCredentials, Username: "yareli", Password: "correct-horse",
	})
	require.NotEmpty(t, f.rec.named("auth_success"))
}

func TestCharacterCreateEntersWorld(t *testing.T) {
	f := newSessionFixture(t)
	envs := capture(t, f.bus, "zone-start")
	f.handshakeAndGuest(t)

	f.dispatch(t, msgCharacterCreate, characterCreateRequest{Name: "Nyra"})

	var entry worldEntry
	decodeFrame(t, f.rec.last(t, "world_entry"), &entry)
	assert.Equal(t, "Nyra", entry.Character.Name)
	assert.Equal(t, "zone-start", entry.Zone.ID)
	assert.Greater(t, entry.Character.Derived.MaxHealth, 0.0)

	published := envs()
	require.Len(t, published, 1)
	assert.Equal(t, bus.TypePlayerJoinZone, published[0].Type)
	assert.Equal(t, "sock-test", published[0].SocketID)
}

func TestCharacterSelectRejectsForeignCharacter(t *testing.T) {
	f := newSessionFixture(t)
	other, err := f.ms.Services().Characters.Create(context.Background(), &storage.Character{
		AccountID: "someone-else", Name: "Stolen", ZoneID: "zone-start",
	})
	require.NoError(t, err)

	f.handshakeAndGuest(t)
	f.dispatch(t, msgCharacterSelect, characterSelectRequest{CharacterID: other.ID})

	var e errorResponse
	decodeFrame(t, f.rec.last(t, "error"), &e)
	assert.Equal(t, "not_owned", e.Code)
	assert.Empty(t, f.rec.named("world_entry"))
}

func TestSlashChatBecomesCommand(t *testing.T) {
	f := newSessionFixture(t)
	envs := capture(t, f.bus, "zone-start")
	f.handshakeAndGuest(t)
	f.dispatch(t, msgCharacterCreate, characterCreateRequest{Name: "Nyra"})

	f.dispatch(t, msgChat, chatRequest{Channel: "say", Message: "/say hello"})
	f.dispatch(t, msgChat, chatRequest{Channel: "say", Message: "plain words"})

	published := envs()
	require.Len(t, published, 3) // join + command + chat
	assert.Equal(t, bus.TypePlayerCommand, published[1].Type)
	assert.Equal(t, bus.TypePlayerChat, published[2].Type)
}

func TestPingAnswersPong(t *testing.T) {
	f := newSessionFixture(t)
	f.dispatch(t, msgHandshake, handshakeRequest{Version: ProtocolVersion})
	f.dispatch(t, msgPing, pingRequest{Timestamp: 424242})

	var pong pongResponse
	decodeFrame(t, f.rec.last(t, "pong"), &pong)
	assert.Equal(t, int64(424242), pong.ClientTimestamp)
	assert.NotZero(t, pong.ServerTimestamp)
}

func TestDisconnectPublishesLeave(t *testing.T) {
	f := newSessionFixture(t)
	envs := capture(t, f.bus, "zone-start")
	f.handshakeAndGuest(t)
	f.dispatch(t, msgCharacterCreate, characterCreateRequest{Name: "Nyra"})
	charID := f.sess.characterID
	require.NotEmpty(t, charID)

	f.sess.disconnect(context.Background(), "socket_closed")

	published := envs()
	require.Len(t, published, 2)
	assert.Equal(t, bus.TypePlayerLeaveZone, published[1].Type)
	assert.Equal(t, charID, published[1].CharacterID)

	_, online, err := f.srv.registry.GetPlayerLocation(context.Background(), charID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPlayerPeekReportsLocation(t *testing.T) {
	f := newSessionFixture(t)
	f.handshakeAndGuest(t)
	f.dispatch(t, msgCharacterCreate, characterCreateRequest{Name: "Nyra"})

	f.dispatch(t, msgPlayerPeek, playerPeekRequest{TargetName: "nyra"})
	var resp playerPeekResponse
	decodeFrame(t, f.rec.last(t, "player_peek_response"), &resp)
	assert.True(t, resp.Online)
	assert.Equal(t, "zone-start", resp.ZoneID)

	f.dispatch(t, msgPlayerPeek, playerPeekRequest{TargetName: "nobody"})
	decodeFrame(t, f.rec.last(t, "player_peek_response"), &resp)
	assert.False(t, resp.Online)
}

func TestForwarderRoutesOwnedSocketsOnly(t *testing.T) {
	f := newSessionFixture(t)

	data, err := json.Marshal(map[string]string{"hello": "world"})
	require.NoError(t, err)
	for _, socketID := range []string{"sock-test", "sock-elsewhere"} {
		env, err := bus.NewEnvelope(bus.TypeClientMessage, "", "", socketID, bus.ClientMessagePayload{
			SocketID: socketID,
			Event:    "chat",
			Data:     data,
		})
		require.NoError(t, err)
		f.srv.forwardClientMessage(bus.GatewayOutputChannel, env)
	}
	require.Len(t, f.rec.named("chat"), 1)
}
