package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseBasic(t *testing.T) {
	p, err := Parse("/say hello there")
	require.NoError(t, err)
	assert.Equal(t, "say", p.Name)
	assert.Equal(t, []string{"hello", "there"}, p.Args)
	assert.Empty(t, p.Named)
}

func TestParseWithoutSlash(t *testing.T) {
	p, err := Parse("stop")
	require.NoError(t, err)
	assert.Equal(t, "stop", p.Name)
	assert.Empty(t, p.Args)
}

func TestParseQuotedSpans(t *testing.T) {
	p, err := Parse(`/whisper Aria "meet me at the gate"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aria", "meet me at the gate"}, p.Args)

	p, err = Parse(`/emote 'tips their hat'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"tips their hat"}, p.Args)
}

func TestParseNamedArgs(t *testing.T) {
	p, err := Parse(`/move heading:90 speed:run distance:30`)
	require.NoError(t, err)
	assert.Empty(t, p.Args)
	assert.Equal(t, map[string]string{"heading": "90", "speed": "run", "distance": "30"}, p.Named)
}

func TestParseQuotedNamedValue(t *testing.T) {
	p, err := Parse(`/attack target:"Rotfang the Elder" ability:basic_attack`)
	require.NoError(t, err)
	assert.Equal(t, "Rotfang the Elder", p.Named["target"])
	assert.Equal(t, "basic_attack", p.Named["ability"])
}

func TestParseColonInsideNamedValue(t *testing.T) {
	p, err := Parse(`/set motd:hello:world`)
	require.NoError(t, err)
	assert.Equal(t, "hello:world", p.Named["motd"])
}

func TestParseQuotedTokenStaysPositional(t *testing.T) {
	p, err := Parse(`/say "key:value"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"key:value"}, p.Args)
	assert.Empty(t, p.Named)
}

func TestParseLowercasesName(t *testing.T) {
	p, err := Parse("/SAY hi")
	require.NoError(t, err)
	assert.Equal(t, "say", p.Name)
}

func TestParseRejectsBadNames(t *testing.T) {
	for _, raw := range []string{"", "/", "/*boom*", "/cmd!", "/héllo"} {
		_, err := Parse(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestRenderQuotesWhereNeeded(t *testing.T) {
	p := Parsed{
		Name:  "whisper",
		Args:  []string{"Aria", "meet me", "a:b"},
		Named: map[string]string{"tone": "soft voice"},
	}
	assert.Equal(t, `/whisper Aria "meet me" "a:b" tone:"soft voice"`, Render(p))
}

func TestParseRenderRoundTrip(t *testing.T) {
	argGen := rapid.StringMatching(`[A-Za-z0-9_:.,-]{1,12}( [A-Za-z0-9_.,-]{1,12}){0,2}`)
	keyGen := rapid.StringMatching(`[a-z0-9_-]{1,8}`)

	rapid.Check(t, func(t *rapid.T) {
		p := Parsed{
			Name:  rapid.StringMatching(`[a-z0-9_-]{1,10}`).Draw(t, "name"),
			Named: make(map[string]string),
		}
		for i, n := 0, rapid.IntRange(0, 3).Draw(t, "nargs"); i < n; i++ {
			p.Args = append(p.Args, argGen.Draw(t, "arg"))
		}
		for i, n := 0, rapid.IntRange(0, 3).Draw(t, "nnamed"); i < n; i++ {
			p.Named[keyGen.Draw(t, "key")] = argGen.Draw(t, "value")
		}

		back, err := Parse(Render(p))
		if err != nil {
			t.Fatalf("parse(render) failed: %v", err)
		}
		if back.Name != p.Name || len(back.Args) != len(p.Args) {
			t.Fatalf("round trip changed shape: %+v vs %+v", back, p)
		}
		for i := range p.Args {
			if back.Args[i] != p.Args[i] {
				t.Fatalf("arg %d changed: %q vs %q", i, back.Args[i], p.Args[i])
			}
		}
		if len(back.Named) != len(p.Named) {
			t.Fatalf("named args changed: %+v vs %+v", back.Named, p.Named)
		}
		for k, v := range p.Named {
			if back.Named[k] != v {
				t.Fatalf("named %q changed: %q vs %q", k, back.Named[k], v)
			}
		}
	})
}
