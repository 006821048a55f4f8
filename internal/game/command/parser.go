// Package command implements the slash-command surface: a text parser, a
// registry of named commands, and an executor that validates input, applies
// cooldowns, and invokes handlers that emit semantic events.
package command

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var namePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Parsed is the structured form of one command line.
type Parsed struct {
	Name string
	// Args are the positional arguments in order.
	Args []string
	// Named holds key:value arguments.
	Named map[string]string
}

// Parse splits a raw line of the form `/name arg "quoted arg" key:value`
// into its structured form. The leading slash is optional. Quoted spans use
// single or double quotes and preserve whitespace. An unquoted token with a
// colon after a well-formed key becomes a named argument.
//
// Postcondition: The returned name matches [a-z0-9_-]+.
func Parse(raw string) (Parsed, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return Parsed{}, fmt.Errorf("empty command")
	}

	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		return Parsed{}, fmt.Errorf("empty command")
	}

	name := strings.ToLower(tokens[0].value)
	if !namePattern.MatchString(name) {
		return Parsed{}, fmt.Errorf("invalid command name %q", tokens[0].value)
	}

	p := Parsed{Name: name, Named: make(map[string]string)}
	for _, tok := range tokens[1:] {
		if tok.key != "" {
			p.Named[tok.key] = tok.value
			continue
		}
		p.Args = append(p.Args, tok.value)
	}
	return p, nil
}

type token struct {
	value string
	key   string
}

func tokenize(s string) []token {
	var out []token
	i := 0
	for i < len(s) {
		for i < len(s) && unicode.IsSpace(rune(s[i])) {
			i++
		}
		if i >= len(s) {
			break
		}

		var b strings.Builder
		var tok token
		sawQuote := false
		for i < len(s) {
			c := s[i]
			if c == '\'' || c == '"' {
				sawQuote = true
				quote := c
				i++
				for i < len(s) && s[i] != quote {
					b.WriteByte(s[i])
					i++
				}
				if i < len(s) {
					i++ // closing quote
				}
				continue
			}
			if unicode.IsSpace(rune(c)) {
				break
			}
			if c == ':' && tok.key == "" && !sawQuote && b.Len() > 0 && namePattern.MatchString(strings.ToLower(b.String())) {
				tok.key = strings.ToLower(b.String())
				b.Reset()
				i++
				continue
			}
			b.WriteByte(c)
			i++
		}
		tok.value = b.String()
		out = append(out, tok)
	}
	return out
}

// Render produces a line that Parse maps back to the same structure. Named
// arguments render in sorted key order.
func Render(p Parsed) string {
	parts := []string{"/" + p.Name}
	for _, a := range p.Args {
		parts = append(parts, quoteArg(a, true))
	}
	keys := make([]string, 0, len(p.Named))
	for k := range p.Named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+":"+quoteArg(p.Named[k], false))
	}
	return strings.Join(parts, " ")
}

// quoteArg wraps a value in quotes when leaving it bare would change how it
// parses. Positional values additionally need quoting around colons so they
// do not read back as named arguments.
func quoteArg(v string, positional bool) string {
	needs := v == "" || strings.ContainsAny(v, " \t\n'\"")
	if positional && strings.Contains(v, ":") {
		needs = true
	}
	if !needs {
		return v
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	return "'" + v + "'"
}
