// internal/pattern/pattern_test.go
package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== Compile and execute: real trigger templates =====

func TestExecute_Templates(t *testing.T) {
	tests := []struct {
		name     string
		template string
		line     string
		output   string
		profile  string
		want     string
	}{
		{
			name:     "repeated tag with positional output",
			template: `^({s}|You) shouts?, 'GG +([\dA-Za-z]+) +CH +-- +({s}) *'$`,
			line:     "Caster shouts, 'GG 001 CH -- Player'",
			output:   "${2} : ${3} : ${1}",
			want:     "Player : 001 : Caster",
		},
		{
			name:     "repeated tag inside a quantified group",
			template: `^({s}|You) shouts?, 'GG ([\dA-Za-z]{1,4} CH -- {s}) *'$`,
			line:     "Caster shouts, 'GG 001 CH -- Player'",
			output:   "${1} > ${2}",
			want:     "Caster > Player",
		},
		{
			name:     "atomic group",
			template: `^(?:(?:[^ ]+) tells the guil)d, 'TASH(?>ED)?\s+-+\s+{s}\s*'$`,
			line:     "Caster tells the guild, 'TASHED -- Player'",
			output:   "TASH - {s}",
			want:     "TASH - Player",
		},
		{
			name:     "caret tag decoration",
			template: "^{c} says, 'CB -- ^{t}'",
			line:     "Caster says, 'CB -- Player'",
			output:   "Chloroblast ( ^{t} )",
			profile:  "Caster",
			want:     "Chloroblast ( Player )",
		},
		{
			name:     "alternation left branch",
			template: "({s} has been slain by|you have slain {s1}!)",
			line:     "King Gragnar has been slain by Bob",
			output:   "Spawn - {s}{s1}",
			want:     "Spawn - King Gragnar",
		},
		{
			name:     "alternation right branch is case-insensitive",
			template: "({s} has been slain by|you have slain {s1}!)",
			line:     "You have slain King Gragnar!",
			output:   "Spawn - {s}{s1}",
			want:     "Spawn - King Gragnar",
		},
		{
			name:     "hand-written named groups",
			template: `^(?:(?<cother>[^ ]+) tells the group), 'COTH (?<cothee>[^']+)'`,
			line:     "Caster tells the group, 'COTH Player'",
			output:   "COTH ${cothee} (${cother})",
			want:     "COTH Player (Caster)",
		},
		{
			name:     "nested atomic alternation",
			template: `^(?<caster>[^ ]+) (?:(?:tell(?>s the g(?>uild|roup)| your party)|say(?:s?(?> out of character)?| to your guild)|shouts?|auctions?)), '(?<num>(\w+)) CH - (?<target>.*?)'$`,
			line:     "Caster tells the guild, '001 CH - Player'",
			output:   "${num} CH -- ${target} (${caster})",
			want:     "001 CH -- Player (Caster)",
		},
		{
			name:     "plain positional groups",
			template: `^You (backstab) .* for (\d+) points of damage\.$`,
			line:     "You backstab Mob for 100 points of damage.",
			output:   "${2}",
			want:     "100",
		},
		{
			name:     "non-capturing group after tag",
			template: `^{s}(?: has be)en poisoned\.$`,
			line:     "Player has been poisoned.",
			output:   "{s} - Envenomed Bolt",
			want:     "Player - Envenomed Bolt",
		},
		{
			name:     "greedy tag keeps trailing text",
			template: ".*COTH -- {s}.*",
			line:     "Cother tells the guild, 'COTH -- Player'",
			output:   "COTH -- ${1}",
			want:     "COTH -- Player'",
		},
		{
			name:     "distinct digit-suffixed tags",
			template: "^{s1} tells the guild, 'R(ez|EZ) -- {s2}'$",
			line:     "Player tells the guild, 'REZ -- Dead'",
			output:   "{s1} REZZING {s2}",
			want:     "Player REZZING Dead",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.template, Options{UseRegex: true})
			require.NoError(t, err)

			m := p.Match(tt.line)
			require.NotNil(t, m, "expression %q did not match", p.String())
			assert.Equal(t, tt.want, p.Execute(tt.output, m, tt.profile))
		})
	}
}

func TestExecute_TimestampDuration(t *testing.T) {
	p, err := Compile("x{TS}-{S};", Options{})
	require.NoError(t, err)

	m := p.Match("x10:00-something; is not online at this time.")
	require.NotNil(t, m)

	assert.Equal(t, "something", p.Execute("{S}", m, ""))
	secs, ok := p.Duration()
	require.True(t, ok)
	assert.Equal(t, 600, secs)
}

func TestCompile_RepeatedTagAlias(t *testing.T) {
	p, err := Compile("{s} hits {s} for {s}", Options{})
	require.NoError(t, err)

	assert.Equal(t, "s", p.AliasChar())
	assert.Equal(t, []string{"s1", "s2", "s3"}, p.Names())

	m := p.Match("Alpha hits Beta for Gamma")
	require.NotNil(t, m)
	assert.Equal(t, "Gamma Beta Alpha", p.Execute("{3} {2} {1}", m, ""))
}

func TestCompile_WildcardUnlessRegex(t *testing.T) {
	p, err := Compile("You begin casting *.", Options{})
	require.NoError(t, err)
	assert.True(t, p.MatchString("You begin casting Complete."))
	assert.False(t, p.MatchString("You begin casting ."))

	raw, err := Compile("You begin casting .*", Options{UseRegex: true})
	require.NoError(t, err)
	assert.True(t, raw.MatchString("You begin casting Complete Heal."))
}

func TestCompile_FallsBackToLiteral(t *testing.T) {
	p, err := Compile("broken (group", Options{UseRegex: true})
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "broken (group", ce.Template)

	require.NotNil(t, p)
	assert.True(t, p.Literal())
	assert.True(t, p.MatchString("this is BROKEN (group text"))
	assert.False(t, p.MatchString("broken group"))
}

func TestCompile_PNamedGroupSyntax(t *testing.T) {
	p, err := Compile(`(?P<who>\w+) waves`, Options{UseRegex: true})
	require.NoError(t, err)

	m := p.Match("Bob waves")
	require.NotNil(t, m)
	v, ok := m.Named("who")
	assert.True(t, ok)
	assert.Equal(t, "Bob", v)
}

// ===== Execute properties =====

func TestExecute_Idempotent(t *testing.T) {
	p := MustCompile("{s} tells you, '{t}'", Options{})
	m := p.Match("Bob tells you, 'hello'")
	require.NotNil(t, m)

	first := p.Execute("{s}: {t}", m, "")
	second := p.Execute("{s}: {t}", m, "")
	assert.Equal(t, first, second)
	assert.Equal(t, "Bob: hello", first)
}

func TestExecute_NamedAndPositionalAgree(t *testing.T) {
	p := MustCompile("{a} gives {b} to {d}", Options{})
	m := p.Match("Bob gives gold to Alice")
	require.NotNil(t, m)

	assert.Equal(t, p.Execute("{a}/{b}/{d}", m, ""), p.Execute("{1}/{2}/{3}", m, ""))
}

func TestExecute_RepeatedTagRoundTrip(t *testing.T) {
	p := MustCompile("{x} and {x}", Options{})
	m := p.Match("left and right")
	require.NotNil(t, m)

	assert.Equal(t, "left|right", p.Execute("{1}|{2}", m, ""))
	assert.Equal(t, "left|right", p.Execute("{x1}|{x2}", m, ""))
}

func TestExecute_ProfileTag(t *testing.T) {
	p := MustCompile("{s} bows", Options{})
	m := p.Match("Bob bows")
	require.NotNil(t, m)

	assert.Equal(t, "Bob bows to Caster", p.Execute("{s} bows to {C}", m, "Caster"))
	assert.Equal(t, "hello Caster", p.Execute("hello {c}", nil, "Caster"))
}

func TestExecute_NonParticipatingGroupIsEmpty(t *testing.T) {
	p, err := Compile("(a)|(b)", Options{UseRegex: true})
	require.NoError(t, err)
	m := p.Match("b")
	require.NotNil(t, m)

	assert.Equal(t, "[][b]", p.Execute("[{1}][{2}]", m, ""))
}

func TestExecute_UncapturedTagsAreEmpty(t *testing.T) {
	p := MustCompile("{s} waves", Options{})
	m := p.Match("Bob waves")
	require.NotNil(t, m)

	assert.Equal(t, "Bob  ", p.Execute("{s} {t} {5}", m, ""))
	assert.Equal(t, "Bob x", p.Execute("{s} {x12}x", m, ""))
	assert.Equal(t, "Bob {COUNTER} {var:tank} Caster", p.Execute("{s} {COUNTER} {var:tank} {C}", m, "Caster"))
	assert.Equal(t, `{"content": "Bob"}`, p.Execute(`{"content": "{s}"}`, m, ""))
}

func TestExecute_EmptyTemplate(t *testing.T) {
	p := MustCompile("{s}", Options{})
	assert.Equal(t, "", p.Execute("", p.Match("x"), "Caster"))
}

func TestMatch_NoMatch(t *testing.T) {
	p := MustCompile("^hello$", Options{UseRegex: true})
	assert.Nil(t, p.Match("goodbye"))

	var m *Match
	assert.False(t, m.Matched())
	_, ok := m.Group(1)
	assert.False(t, ok)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"45", 45, true},
		{"10:00", 600, true},
		{"1:02:03", 3723, true},
		{"", 0, false},
		{"ten", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDuration(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestScanCaptures(t *testing.T) {
	caps := scanCaptures(`(a)(?:b)(?<n>c)[(]\((?<=x)(d)`)
	require.Len(t, caps, 3)
	assert.Equal(t, capture{number: 1}, caps[0])
	assert.Equal(t, capture{name: "n"}, caps[1])
	assert.Equal(t, capture{number: 2}, caps[2])
}
