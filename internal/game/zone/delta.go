package zone

import (
	"encoding/json"
	"sort"
)

// OptString is a tri-state string for delta fields: a nil *OptString means
// the field is unchanged, Valid=false encodes cleared (JSON null), and
// Valid=true carries a value.
type OptString struct {
	Valid bool
	Value string
}

// MarshalJSON emits null when the value is cleared.
func (o OptString) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON accepts null (cleared) or a string.
func (o *OptString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.Valid = false
		o.Value = ""
		return nil
	}
	o.Valid = true
	return json.Unmarshal(data, &o.Value)
}

// EntityUpdate carries only the fields of a still-present entity that
// changed since the previous roster.
type EntityUpdate struct {
	ID        string   `json:"id"`
	Bearing   *int     `json:"bearing,omitempty"`
	Elevation *int     `json:"elevation,omitempty"`
	Range     *float64 `json:"range,omitempty"`
}

// ChannelDelta is the change set for one band. A zero ChannelDelta means no
// change and is never emitted.
type ChannelDelta struct {
	Added   []RosterEntity `json:"added,omitempty"`
	Removed []string       `json:"removed,omitempty"`
	Updated []EntityUpdate `json:"updated,omitempty"`
	// Count is present only when the band's count changed.
	Count *int `json:"count,omitempty"`
	// Sample is present only when the sample changed; a null value clears it.
	Sample *[]string `json:"sample,omitempty"`
	// LastSpeaker is present only when it changed; null clears it.
	LastSpeaker *OptString `json:"lastSpeaker,omitempty"`
}

func (d ChannelDelta) empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0 &&
		d.Count == nil && d.Sample == nil && d.LastSpeaker == nil
}

// RosterDelta is the change set between two rosters. Channels with no
// change are omitted; DangerState is present only when it flipped.
type RosterDelta struct {
	EntityID    string                  `json:"entityId"`
	Channels    map[string]ChannelDelta `json:"channels,omitempty"`
	DangerState *bool                   `json:"dangerState,omitempty"`
}

func sortRosterEntities(entities []RosterEntity) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Range != entities[j].Range {
			return entities[i].Range < entities[j].Range
		}
		return entities[i].ID < entities[j].ID
	})
}

// CalculateProximityRosterDelta computes the current roster for the observer
// and the delta against previous. A nil previous produces the first delta:
// every entity added, every count present.
//
// Postcondition: Returns (nil, roster, true) when nothing semantically
// changed, (delta, roster, true) otherwise, or (_, _, false) when the
// observer is not resident.
func (m *Manager) CalculateProximityRosterDelta(entityID string, previous *Roster) (*RosterDelta, Roster, bool) {
	roster, ok := m.CalculateProximityRoster(entityID)
	if !ok {
		return nil, Roster{}, false
	}

	delta := &RosterDelta{
		EntityID: entityID,
		Channels: make(map[string]ChannelDelta),
	}

	for _, band := range Bands {
		next := roster.Channels[band.Name]
		var prev ProximityChannel
		if previous != nil {
			prev = previous.Channels[band.Name]
		}
		cd := diffChannel(prev, next)
		if !cd.empty() {
			delta.Channels[band.Name] = cd
		}
	}

	if previous == nil || previous.DangerState != roster.DangerState {
		danger := roster.DangerState
		delta.DangerState = &danger
	}

	if len(delta.Channels) == 0 && delta.DangerState == nil {
		return nil, roster, true
	}
	return delta, roster, true
}

func diffChannel(prev, next ProximityChannel) ChannelDelta {
	var cd ChannelDelta

	prevByID := make(map[string]RosterEntity, len(prev.Entities))
	for _, e := range prev.Entities {
		prevByID[e.ID] = e
	}
	nextByID := make(map[string]RosterEntity, len(next.Entities))
	for _, e := range next.Entities {
		nextByID[e.ID] = e
	}

	for _, e := range next.Entities {
		old, present := prevByID[e.ID]
		if !present {
			cd.Added = append(cd.Added, e)
			continue
		}
		if old.Bearing != e.Bearing || old.Elevation != e.Elevation || old.Range != e.Range {
			u := EntityUpdate{ID: e.ID}
			if old.Bearing != e.Bearing {
				b := e.Bearing
				u.Bearing = &b
			}
			if old.Elevation != e.Elevation {
				el := e.Elevation
				u.Elevation = &el
			}
			if old.Range != e.Range {
				r := e.Range
				u.Range = &r
			}
			cd.Updated = append(cd.Updated, u)
		}
	}
	for _, e := range prev.Entities {
		if _, present := nextByID[e.ID]; !present {
			cd.Removed = append(cd.Removed, e.ID)
		}
	}
	sort.Strings(cd.Removed)

	if prev.Count != next.Count {
		c := next.Count
		cd.Count = &c
	}
	if !stringSlicesEqual(prev.Sample, next.Sample) {
		sample := next.Sample
		cd.Sample = &sample
	}
	if prev.LastSpeaker != next.LastSpeaker {
		cd.LastSpeaker = &OptString{Valid: next.LastSpeaker != "", Value: next.LastSpeaker}
	}
	return cd
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplyDelta reconstructs the roster that produced delta from the prior
// roster. A nil prior stands for the empty roster (all bands empty, danger
// off). Applying a delta to the roster it was diffed against reproduces the
// next roster exactly, including entity order.
func ApplyDelta(prior *Roster, delta *RosterDelta) Roster {
	out := Roster{
		EntityID: delta.EntityID,
		Channels: make(map[string]ProximityChannel, len(Bands)),
	}
	if prior != nil {
		out.DangerState = prior.DangerState
	}
	if delta.DangerState != nil {
		out.DangerState = *delta.DangerState
	}

	for _, band := range Bands {
		var prev ProximityChannel
		if prior != nil {
			prev = prior.Channels[band.Name]
		} else {
			prev = ProximityChannel{Entities: []RosterEntity{}}
		}
		cd, changed := deltaChannel(delta, band.Name)
		if !changed {
			out.Channels[band.Name] = prev
			continue
		}

		entities := make([]RosterEntity, 0, len(prev.Entities)+len(cd.Added))
		removed := make(map[string]bool, len(cd.Removed))
		for _, id := range cd.Removed {
			removed[id] = true
		}
		updates := make(map[string]EntityUpdate, len(cd.Updated))
		for _, u := range cd.Updated {
			updates[u.ID] = u
		}
		for _, e := range prev.Entities {
			if removed[e.ID] {
				continue
			}
			if u, ok := updates[e.ID]; ok {
				if u.Bearing != nil {
					e.Bearing = *u.Bearing
				}
				if u.Elevation != nil {
					e.Elevation = *u.Elevation
				}
				if u.Range != nil {
					e.Range = *u.Range
				}
			}
			entities = append(entities, e)
		}
		entities = append(entities, cd.Added...)
		sortRosterEntities(entities)

		ch := ProximityChannel{
			Entities:    entities,
			Count:       prev.Count,
			Sample:      prev.Sample,
			LastSpeaker: prev.LastSpeaker,
		}
		if cd.Count != nil {
			ch.Count = *cd.Count
		}
		if cd.Sample != nil {
			ch.Sample = *cd.Sample
		}
		if cd.LastSpeaker != nil {
			if cd.LastSpeaker.Valid {
				ch.LastSpeaker = cd.LastSpeaker.Value
			} else {
				ch.LastSpeaker = ""
			}
		}
		out.Channels[band.Name] = ch
	}
	return out
}

func deltaChannel(delta *RosterDelta, name string) (ChannelDelta, bool) {
	cd, ok := delta.Channels[name]
	return cd, ok
}
