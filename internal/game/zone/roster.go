package zone

import "math"

// Band is one of the seven concentric proximity channels.
type Band struct {
	// Name is the channel name used on the wire.
	Name string
	// Range is the band radius in metres.
	Range float64
}

// Bands lists the seven proximity channels in canonical order. Ranges are
// the foot-denominated game ranges (5/20/150/150/150/150/250) in metres.
var Bands = []Band{
	{Name: "touch", Range: 5 * FeetToMetres},
	{Name: "say", Range: 20 * FeetToMetres},
	{Name: "shout", Range: 150 * FeetToMetres},
	{Name: "emote", Range: 150 * FeetToMetres},
	{Name: "see", Range: 150 * FeetToMetres},
	{Name: "hear", Range: 150 * FeetToMetres},
	{Name: "cfh", Range: 250 * FeetToMetres},
}

// BandRange returns the radius in metres for a channel name, or 0 when the
// name is not a band.
func BandRange(name string) float64 {
	for _, b := range Bands {
		if b.Name == name {
			return b.Range
		}
	}
	return 0
}

// RosterEntity is one observed entity within a band.
type RosterEntity struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind EntityKind `json:"kind"`
	// Bearing is degrees clockwise from north, 0-359.
	Bearing int `json:"bearing"`
	// Elevation is degrees above the horizontal, -90 to 90.
	Elevation int `json:"elevation"`
	// Range is the distance in metres, rounded to 2 decimals.
	Range float64 `json:"range"`
}

// ProximityChannel is one band's view for an observer. Sample and
// LastSpeaker are present iff Count is 1, 2, or 3.
type ProximityChannel struct {
	Entities    []RosterEntity `json:"entities"`
	Count       int            `json:"count"`
	Sample      []string       `json:"sample,omitempty"`
	LastSpeaker string         `json:"lastSpeaker,omitempty"`
}

// Roster is the full seven-band view around one observer.
type Roster struct {
	EntityID    string                      `json:"entityId"`
	Channels    map[string]ProximityChannel `json:"channels"`
	DangerState bool                        `json:"dangerState"`
}

// roundRange rounds a distance to 2 decimals for wire output.
func roundRange(d float64) float64 {
	return math.Round(d*100) / 100
}

// CalculateProximityRoster produces the full roster for the observer.
//
// An entity appears in a band iff its distance is <= the band's range;
// entities are ordered ascending by rounded range with ID tie-break, the
// same order the delta applier reconstructs.
//
// Postcondition: Returns (roster, true), or (Roster{}, false) when the
// observer is not resident.
func (m *Manager) CalculateProximityRoster(entityID string) (Roster, bool) {
	observer, ok := m.GetEntity(entityID)
	if !ok {
		return Roster{}, false
	}

	// One scan over the widest band covers every band.
	hits := m.EntitiesInRange(observer.Position, Bands[len(Bands)-1].Range, entityID)

	speaker, hasSpeaker := m.lastSpeakerFor(entityID)

	roster := Roster{
		EntityID:    entityID,
		Channels:    make(map[string]ProximityChannel, len(Bands)),
		DangerState: observer.InCombat,
	}

	for _, band := range Bands {
		ch := ProximityChannel{Entities: []RosterEntity{}}
		for _, h := range hits {
			if h.Distance > band.Range {
				continue
			}
			ch.Entities = append(ch.Entities, RosterEntity{
				ID:        h.Entity.ID,
				Name:      h.Entity.Name,
				Kind:      h.Entity.Kind,
				Bearing:   observer.Position.BearingTo(h.Entity.Position),
				Elevation: observer.Position.ElevationTo(h.Entity.Position),
				Range:     roundRange(h.Distance),
			})
		}
		sortRosterEntities(ch.Entities)
		ch.Count = len(ch.Entities)
		if ch.Count >= 1 && ch.Count <= 3 {
			ch.Sample = make([]string, 0, ch.Count)
			for _, e := range ch.Entities {
				ch.Sample = append(ch.Sample, e.Name)
			}
			if hasSpeaker && contains(ch.Sample, speaker) {
				ch.LastSpeaker = speaker
			}
		}
		roster.Channels[band.Name] = ch
	}
	return roster, true
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
