package combat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestManagerNewCombatantStartsFull(t *testing.T) {
	m := NewManager()
	assert.Equal(t, ATBMax, m.ATB("goblin-1"))
	assert.True(t, m.CanSpendATB("goblin-1", 100))
}

func TestManagerSpendAndRefund(t *testing.T) {
	m := NewManager()
	m.SpendATB("hero", 120)
	assert.Equal(t, 80.0, m.ATB("hero"))

	// A builder ability pays its cost and immediately refunds it, so the
	// gauge reads the same before and after.
	m.SpendATB("hero", 25)
	m.AddATB("hero", 25)
	assert.Equal(t, 80.0, m.ATB("hero"))
}

func TestManagerSpendSaturatesAtZero(t *testing.T) {
	m := NewManager()
	m.SpendATB("hero", ATBMax+500)
	assert.Equal(t, 0.0, m.ATB("hero"))
	assert.False(t, m.CanSpendATB("hero", 1))
}

func TestManagerAddSaturatesAtMax(t *testing.T) {
	m := NewManager()
	m.AddATB("hero", 1000)
	assert.Equal(t, ATBMax, m.ATB("hero"))
}

func TestManagerUpdateFillsGaugeInCombat(t *testing.T) {
	m := NewManager()
	m.SpendATB("hero", 200)

	// Out of combat the gauge does not fill.
	m.Update(1.0, nil)
	assert.Equal(t, 0.0, m.ATB("hero"))

	m.StartCombat("hero")
	m.Update(1.0, nil)
	assert.Equal(t, ATBBaseRate, m.ATB("hero"))

	m.Update(1.0, func(string) float64 { return 5 })
	assert.Equal(t, ATBBaseRate+ATBBaseRate+5, m.ATB("hero"))
}

func TestStartCombatReportsTransition(t *testing.T) {
	m := NewManager()
	assert.True(t, m.StartCombat("hero"))
	assert.False(t, m.StartCombat("hero"))
	m.EndCombat("hero")
	assert.True(t, m.StartCombat("hero"))
}

func TestManagerCombatTimeout(t *testing.T) {
	m := NewManager()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.StartCombat("hero")
	require.True(t, m.InCombat("hero"))

	now = now.Add(14 * time.Second)
	expired := m.Update(1.0, nil)
	assert.Empty(t, expired)
	assert.True(t, m.InCombat("hero"))

	now = now.Add(time.Second)
	expired = m.Update(1.0, nil)
	assert.Equal(t, []string{"hero"}, expired)
	assert.False(t, m.InCombat("hero"))
}

func TestManagerHostileActionRefreshesTimeout(t *testing.T) {
	m := NewManager()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.StartCombat("hero")
	now = now.Add(10 * time.Second)
	m.RecordHostileAction("hero")

	now = now.Add(10 * time.Second)
	expired := m.Update(1.0, nil)
	assert.Empty(t, expired)
	assert.True(t, m.InCombat("hero"))
}

func TestManagerCooldowns(t *testing.T) {
	m := NewManager()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	assert.Zero(t, m.CooldownRemaining("hero", "fireball"))

	m.SetCooldown("hero", "fireball", 8*time.Second)
	assert.Equal(t, 8*time.Second, m.CooldownRemaining("hero", "fireball"))

	now = now.Add(5 * time.Second)
	assert.Equal(t, 3*time.Second, m.CooldownRemaining("hero", "fireball"))

	now = now.Add(5 * time.Second)
	assert.Zero(t, m.CooldownRemaining("hero", "fireball"))

	m.SetCooldown("hero", "fireball", 8*time.Second)
	m.SetCooldown("hero", "fireball", 0)
	assert.Zero(t, m.CooldownRemaining("hero", "fireball"))
}

func TestManagerRemoveClearsState(t *testing.T) {
	m := NewManager()
	m.SpendATB("hero", 50)
	m.StartCombat("hero")
	m.Remove("hero")
	assert.Equal(t, ATBMax, m.ATB("hero"))
	assert.False(t, m.InCombat("hero"))
}

func TestManagerGaugeStaysBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewManager()
		m.StartCombat("e")
		ops := rapid.IntRange(1, 50).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				m.SpendATB("e", rapid.Float64Range(0, 300).Draw(t, "spend"))
			case 1:
				m.AddATB("e", rapid.Float64Range(0, 300).Draw(t, "add"))
			case 2:
				m.Update(rapid.Float64Range(0, 5).Draw(t, "dt"), nil)
			}
			got := m.ATB("e")
			if got < 0 || got > ATBMax {
				t.Fatalf("gauge out of bounds: %f", got)
			}
		}
	})
}
