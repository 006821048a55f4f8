package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
)

func newTestRegistry(t *testing.T, serverID string) (*Registry, *bus.MemoryBus) {
	t.Helper()
	kv := bus.NewMemoryBus()
	return New(serverID, kv, zap.NewNop()), kv
}

func TestAssignZone_RoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	require.NoError(t, r.AssignZone(ctx, "z1", "10.0.0.5:7000"))

	a, ok, err := r.GetZoneAssignment(ctx, "z1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "srv-1", a.ServerID)
	assert.Equal(t, "10.0.0.5:7000", a.Host)
	assert.NotZero(t, a.AssignedAt)
}

func TestUnassignZone(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	require.NoError(t, r.AssignZone(ctx, "z1", "h"))
	require.NoError(t, r.UnassignZone(ctx, "z1"))

	_, ok, err := r.GetZoneAssignment(ctx, "z1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetAllZoneAssignments(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	require.NoError(t, r.AssignZone(ctx, "z1", "h1"))
	require.NoError(t, r.AssignZone(ctx, "z2", "h2"))

	all, err := r.GetAllZoneAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "h1", all["z1"].Host)
	assert.Equal(t, "h2", all["z2"].Host)
}

func TestAssignment_SurvivesDeadOwner(t *testing.T) {
	// An assignment key carries no TTL, so it can outlive its owner's
	// heartbeat. Consumers must check IsServerAlive.
	r, kv := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	require.NoError(t, r.AssignZone(ctx, "z1", "h"))
	require.NoError(t, kv.SetEx(ctx, "server:heartbeat:srv-1", 10*time.Millisecond, "now"))

	time.Sleep(20 * time.Millisecond)

	_, ok, err := r.GetZoneAssignment(ctx, "z1")
	require.NoError(t, err)
	assert.True(t, ok, "assignment should remain")

	alive, err := r.IsServerAlive(ctx, "srv-1")
	require.NoError(t, err)
	assert.False(t, alive, "owner should read as dead")
}

func TestHeartbeat_MarksServerAlive(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	alive, err := r.IsServerAlive(ctx, "srv-1")
	require.NoError(t, err)
	assert.False(t, alive)

	r.StartHeartbeat(ctx)
	defer r.StopHeartbeat(ctx)

	alive, err = r.IsServerAlive(ctx, "srv-1")
	require.NoError(t, err)
	assert.True(t, alive)

	servers, err := r.GetActiveServers(ctx)
	require.NoError(t, err)
	assert.Contains(t, servers, "srv-1")
}

func TestStopHeartbeat_RemovesKey(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	r.StartHeartbeat(ctx)
	r.StopHeartbeat(ctx)

	alive, err := r.IsServerAlive(ctx, "srv-1")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestStopHeartbeat_WithoutStartIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	r.StopHeartbeat(context.Background())
}

func TestPlayerLocation_RoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	ctx := context.Background()

	require.NoError(t, r.UpdatePlayerLocation(ctx, "char-1", "z1", "sock-1"))

	loc, ok, err := r.GetPlayerLocation(ctx, "char-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z1", loc.ZoneID)
	assert.Equal(t, "sock-1", loc.SocketID)
	assert.Equal(t, "srv-1", loc.ServerID)

	require.NoError(t, r.RemovePlayer(ctx, "char-1"))
	_, ok, err = r.GetPlayerLocation(ctx, "char-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPlayerLocation_Absent(t *testing.T) {
	r, _ := newTestRegistry(t, "srv-1")
	_, ok, err := r.GetPlayerLocation(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
