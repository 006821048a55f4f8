// Package registry maintains the cluster directory on the bus KV surface:
// which server owns each zone, which servers are alive, and where each
// character currently is. There is no consensus layer; consumers tolerate
// staleness up to the heartbeat TTL and verify liveness when it matters.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
)

// Timing constants for cluster membership.
const (
	// HeartbeatInterval is how often an owning server refreshes its liveness key.
	HeartbeatInterval = 5 * time.Second
	// HeartbeatTTL is how long a heartbeat key lives; absence means dead.
	HeartbeatTTL = 15 * time.Second
	// PlayerLocationTTL bounds a player-location entry so silent client
	// drops self-heal.
	PlayerLocationTTL = time.Hour
)

const (
	heartbeatPrefix  = "server:heartbeat:"
	assignmentPrefix = "zone:assignment:"
	locationPrefix   = "player:location:"
)

// ZoneAssignment records which server owns a zone.
type ZoneAssignment struct {
	ServerID   string `json:"serverId"`
	Host       string `json:"host"`
	AssignedAt int64  `json:"assignedAt"`
}

// PlayerLocation records where a character is and which socket reaches it.
type PlayerLocation struct {
	ZoneID     string `json:"zoneId"`
	SocketID   string `json:"socketId"`
	ServerID   string `json:"serverId"`
	LastUpdate int64  `json:"lastUpdate"`
}

// Registry is one process's view of the cluster directory.
type Registry struct {
	serverID string
	kv       bus.Bus
	logger   *zap.Logger

	mu        sync.Mutex
	hbCancel  context.CancelFunc
	hbStopped chan struct{}
}

// New creates a Registry for the given server identity.
//
// Precondition: serverID must be non-empty; kv and logger must be non-nil.
func New(serverID string, kv bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{serverID: serverID, kv: kv, logger: logger}
}

// ServerID returns this process's cluster identity.
func (r *Registry) ServerID() string { return r.serverID }

// StartHeartbeat begins refreshing this server's liveness key every
// HeartbeatInterval with HeartbeatTTL expiry. Heartbeats are re-issued on
// schedule regardless of prior failures.
//
// Postcondition: Heartbeats continue until StopHeartbeat or ctx cancellation.
func (r *Registry) StartHeartbeat(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hbCancel != nil {
		return
	}

	hbCtx, cancel := context.WithCancel(ctx)
	r.hbCancel = cancel
	r.hbStopped = make(chan struct{})
	stopped := r.hbStopped

	r.beat(hbCtx)
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				r.beat(hbCtx)
			}
		}
	}()
}

func (r *Registry) beat(ctx context.Context) {
	key := heartbeatPrefix + r.serverID
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := r.kv.SetEx(ctx, key, HeartbeatTTL, now); err != nil {
		r.logger.Error("heartbeat write failed", zap.Error(err))
	}
}

// StopHeartbeat halts the refresh loop and removes the liveness key.
//
// Postcondition: This server reads as dead once any in-flight TTL lapses or
// immediately after the delete succeeds.
func (r *Registry) StopHeartbeat(ctx context.Context) {
	r.mu.Lock()
	cancel := r.hbCancel
	stopped := r.hbStopped
	r.hbCancel = nil
	r.hbStopped = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
	if err := r.kv.Del(ctx, heartbeatPrefix+r.serverID); err != nil {
		r.logger.Warn("removing heartbeat key", zap.Error(err))
	}
}

// AssignZone records this server as the owner of zoneID. The assignment key
// carries no TTL; liveness is judged by the owner's heartbeat.
//
// Precondition: zoneID and host must be non-empty.
func (r *Registry) AssignZone(ctx context.Context, zoneID, host string) error {
	a := ZoneAssignment{
		ServerID:   r.serverID,
		Host:       host,
		AssignedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshalling assignment: %w", err)
	}
	if err := r.kv.Set(ctx, assignmentPrefix+zoneID, string(data)); err != nil {
		return fmt.Errorf("assigning zone %s: %w", zoneID, err)
	}
	return nil
}

// UnassignZone deletes the assignment for zoneID on clean shutdown.
func (r *Registry) UnassignZone(ctx context.Context, zoneID string) error {
	if err := r.kv.Del(ctx, assignmentPrefix+zoneID); err != nil {
		return fmt.Errorf("unassigning zone %s: %w", zoneID, err)
	}
	return nil
}

// GetZoneAssignment returns the current assignment for zoneID.
//
// A returned assignment can outlive its owner; call IsServerAlive before
// relying on freshness when reassignment matters.
//
// Postcondition: Returns (assignment, true, nil) when present.
func (r *Registry) GetZoneAssignment(ctx context.Context, zoneID string) (ZoneAssignment, bool, error) {
	val, ok, err := r.kv.Get(ctx, assignmentPrefix+zoneID)
	if err != nil || !ok {
		return ZoneAssignment{}, false, err
	}
	var a ZoneAssignment
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return ZoneAssignment{}, false, fmt.Errorf("decoding assignment for %s: %w", zoneID, err)
	}
	return a, true, nil
}

// GetAllZoneAssignments scans every assignment key.
//
// Postcondition: Returns a map from zone ID to assignment; may be empty.
func (r *Registry) GetAllZoneAssignments(ctx context.Context) (map[string]ZoneAssignment, error) {
	keys, err := r.kv.Keys(ctx, assignmentPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scanning assignments: %w", err)
	}
	out := make(map[string]ZoneAssignment, len(keys))
	for _, key := range keys {
		zoneID := strings.TrimPrefix(key, assignmentPrefix)
		a, ok, err := r.GetZoneAssignment(ctx, zoneID)
		if err != nil {
			return nil, err
		}
		if ok {
			out[zoneID] = a
		}
	}
	return out, nil
}

// GetActiveServers returns the IDs of all servers with a live heartbeat.
func (r *Registry) GetActiveServers(ctx context.Context) ([]string, error) {
	keys, err := r.kv.Keys(ctx, heartbeatPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scanning heartbeats: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, heartbeatPrefix))
	}
	return ids, nil
}

// IsServerAlive reports whether serverID's heartbeat key exists.
func (r *Registry) IsServerAlive(ctx context.Context, serverID string) (bool, error) {
	return r.kv.Exists(ctx, heartbeatPrefix+serverID)
}

// UpdatePlayerLocation writes the character's location with PlayerLocationTTL.
// Called on every position update, so a live player's entry never lapses.
//
// Precondition: characterID and zoneID must be non-empty.
func (r *Registry) UpdatePlayerLocation(ctx context.Context, characterID, zoneID, socketID string) error {
	loc := PlayerLocation{
		ZoneID:     zoneID,
		SocketID:   socketID,
		ServerID:   r.serverID,
		LastUpdate: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshalling location: %w", err)
	}
	if err := r.kv.SetEx(ctx, locationPrefix+characterID, PlayerLocationTTL, string(data)); err != nil {
		return fmt.Errorf("updating location for %s: %w", characterID, err)
	}
	return nil
}

// GetPlayerLocation returns the character's registered location.
//
// Postcondition: Returns (location, true, nil) when present and unexpired.
func (r *Registry) GetPlayerLocation(ctx context.Context, characterID string) (PlayerLocation, bool, error) {
	val, ok, err := r.kv.Get(ctx, locationPrefix+characterID)
	if err != nil || !ok {
		return PlayerLocation{}, false, err
	}
	var loc PlayerLocation
	if err := json.Unmarshal([]byte(val), &loc); err != nil {
		return PlayerLocation{}, false, fmt.Errorf("decoding location for %s: %w", characterID, err)
	}
	return loc, true, nil
}

// RemovePlayer deletes the character's location entry.
func (r *Registry) RemovePlayer(ctx context.Context, characterID string) error {
	if err := r.kv.Del(ctx, locationPrefix+characterID); err != nil {
		return fmt.Errorf("removing location for %s: %w", characterID, err)
	}
	return nil
}
