// Package zone owns the per-zone in-memory simulation state: the entity
// table, spatial queries, and the seven-band proximity roster with its
// delta encoding.
package zone

import "math"

// FeetToMetres converts the game's foot-denominated ranges to metres.
const FeetToMetres = 0.3048

// EntityKind distinguishes the three resident entity kinds.
type EntityKind string

const (
	KindPlayer    EntityKind = "player"
	KindNPC       EntityKind = "npc"
	KindCompanion EntityKind = "companion"
)

// Position is a point in zone space, metres. x = east, y = north, z = up.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the 3-D Euclidean distance to other.
func (p Position) DistanceTo(other Position) float64 {
	dx := other.X - p.X
	dy := other.Y - p.Y
	dz := other.Z - p.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// BearingTo returns the compass bearing from p to other in degrees,
// measured clockwise from north (+Y), normalized to [0, 360) and rounded
// to the nearest integer.
func (p Position) BearingTo(other Position) int {
	dx := other.X - p.X
	dy := other.Y - p.Y
	deg := math.Atan2(dx, dy) * 180 / math.Pi
	b := int(math.Round(deg))
	b %= 360
	if b < 0 {
		b += 360
	}
	return b
}

// ElevationTo returns the elevation angle from p to other in degrees,
// -90 (straight down) to +90 (straight up), rounded to the nearest integer.
func (p Position) ElevationTo(other Position) int {
	dx := other.X - p.X
	dy := other.Y - p.Y
	dz := other.Z - p.Z
	horiz := math.Sqrt(dx*dx + dy*dy)
	deg := math.Atan2(dz, horiz) * 180 / math.Pi
	return int(math.Round(deg))
}

// Entity is one resident of a zone's entity table.
type Entity struct {
	// ID uniquely identifies the entity (character or companion ID).
	ID string
	// Name is the display name, unique within a zone by convention.
	Name string
	// Kind is player, npc, or companion.
	Kind EntityKind
	// Position is the current location in metres.
	Position Position
	// SocketID is the owning gateway socket. Non-empty for players and for
	// companions currently inhabited by a remote controller.
	SocketID string
	// InCombat mirrors the combat manager's danger state for roster output.
	InCombat bool
	// IsMachine marks bot-driven players.
	IsMachine bool
}

// Info describes the immutable zone record this manager simulates.
type Info struct {
	ID            string
	Name          string
	Description   string
	ContentRating string
	// WorldX, WorldY locate the zone on the world map.
	WorldX, WorldY float64
	// Size is the zone edge length in metres.
	Size float64
}
