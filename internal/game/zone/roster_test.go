package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBands_RangesInMetres(t *testing.T) {
	assert.InDelta(t, 1.524, BandRange("touch"), 1e-9)
	assert.InDelta(t, 6.096, BandRange("say"), 1e-9)
	assert.InDelta(t, 45.72, BandRange("shout"), 1e-9)
	assert.InDelta(t, 45.72, BandRange("emote"), 1e-9)
	assert.InDelta(t, 45.72, BandRange("see"), 1e-9)
	assert.InDelta(t, 45.72, BandRange("hear"), 1e-9)
	assert.InDelta(t, 76.2, BandRange("cfh"), 1e-9)
	assert.Zero(t, BandRange("whisper"))
}

func TestRoster_EmptyZone(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("a", "A", Position{}, "", false)

	roster, ok := m.CalculateProximityRoster("a")
	require.True(t, ok)
	require.Len(t, roster.Channels, 7)
	for name, ch := range roster.Channels {
		assert.Equal(t, 0, ch.Count, name)
		assert.Empty(t, ch.Entities, name)
		assert.Nil(t, ch.Sample, name)
		assert.Empty(t, ch.LastSpeaker, name)
	}
	assert.False(t, roster.DangerState)
}

func TestRoster_MissingObserver(t *testing.T) {
	m := NewManager(testInfo())
	_, ok := m.CalculateProximityRoster("ghost")
	assert.False(t, ok)
}

// A joins an empty zone with B five metres due east: B lands in say and all
// wider bands, but not touch.
func TestRoster_JoinAtFiveMetres(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("a", "A", Position{}, "", false)
	m.AddPlayer("b", "B", Position{X: 5}, "", false)

	roster, ok := m.CalculateProximityRoster("a")
	require.True(t, ok)

	say := roster.Channels["say"]
	require.Equal(t, 1, say.Count)
	require.Len(t, say.Entities, 1)
	e := say.Entities[0]
	assert.Equal(t, "b", e.ID)
	assert.Equal(t, 90, e.Bearing)
	assert.Equal(t, 0, e.Elevation)
	assert.Equal(t, 5.00, e.Range)
	assert.Equal(t, []string{"B"}, say.Sample)

	touch := roster.Channels["touch"]
	assert.Equal(t, 0, touch.Count)
	assert.Empty(t, touch.Entities)
}

func TestRoster_SamplePresentIffCount1To3(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("obs", "Obs", Position{}, "", false)

	names := []string{"B", "C", "D", "E"}
	for i, n := range names {
		m.AddPlayer(n, n, Position{X: float64(i + 1)}, "", false)

		roster, ok := m.CalculateProximityRoster("obs")
		require.True(t, ok)
		say := roster.Channels["say"]
		require.Equal(t, i+1, say.Count)
		if say.Count <= 3 {
			assert.Len(t, say.Sample, say.Count)
		} else {
			assert.Nil(t, say.Sample, "sample absent at count 4")
		}
	}
}

func TestRoster_EntityAtExactBandRange(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("a", "A", Position{}, "", false)
	m.AddPlayer("b", "B", Position{X: BandRange("touch")}, "", false)

	roster, _ := m.CalculateProximityRoster("a")
	assert.Equal(t, 1, roster.Channels["touch"].Count, "boundary: exactly at range is in range")
}

func TestRoster_RangeRoundedTwoDecimals(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("a", "A", Position{}, "", false)
	m.AddPlayer("b", "B", Position{X: 3, Y: 4.0001}, "", false)

	roster, _ := m.CalculateProximityRoster("a")
	say := roster.Channels["say"]
	require.Equal(t, 1, say.Count)
	assert.Equal(t, 5.00, say.Entities[0].Range)
}

func TestRoster_LastSpeakerOnlyWhenInSample(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("a", "A", Position{}, "", false)
	m.AddPlayer("b", "B", Position{X: 2}, "", false)

	m.RecordLastSpeaker("a", "B")
	roster, _ := m.CalculateProximityRoster("a")
	assert.Equal(t, "B", roster.Channels["say"].LastSpeaker)

	// A speaker outside the sample is not reported.
	m.RecordLastSpeaker("a", "Zed")
	roster, _ = m.CalculateProximityRoster("a")
	assert.Empty(t, roster.Channels["say"].LastSpeaker)
}

func TestRoster_DangerStateTracksCombatFlag(t *testing.T) {
	m := NewManager(testInfo())
	m.AddPlayer("a", "A", Position{}, "", false)

	roster, _ := m.CalculateProximityRoster("a")
	assert.False(t, roster.DangerState)

	m.SetEntityCombatState("a", true)
	roster, _ = m.CalculateProximityRoster("a")
	assert.True(t, roster.DangerState)
}

func TestRoster_BandMembershipMatchesDistance(t *testing.T) {
	// Invariant: an entity appears in a band iff distance <= band range.
	m := NewManager(testInfo())
	m.AddPlayer("obs", "Obs", Position{}, "", false)
	m.AddPlayer("near", "Near", Position{X: 1}, "", false)     // all bands
	m.AddPlayer("mid", "Mid", Position{X: 20}, "", false)      // shout..cfh
	m.AddPlayer("edge", "Edge", Position{X: 60}, "", false)    // cfh only
	m.AddPlayer("out", "Out", Position{X: 80}, "", false)      // none

	roster, _ := m.CalculateProximityRoster("obs")
	for _, band := range Bands {
		ch := roster.Channels[band.Name]
		ids := make(map[string]bool)
		for _, e := range ch.Entities {
			ids[e.ID] = true
		}
		for _, probe := range []struct {
			id   string
			dist float64
		}{{"near", 1}, {"mid", 20}, {"edge", 60}, {"out", 80}} {
			assert.Equal(t, probe.dist <= band.Range, ids[probe.id],
				"band %s entity %s", band.Name, probe.id)
		}
	}
}
