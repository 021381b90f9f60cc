// internal/pattern/pattern.go
package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// TimestampGroup is the capture name produced by {ts} and {TS}.
const TimestampGroup = "timestamp"

// matchTimeout bounds a single search so a pathological user expression
// cannot stall line evaluation.
const matchTimeout = 250 * time.Millisecond

var (
	tagPattern   = regexp.MustCompile(`\{([A-Za-z][0-9]?)\}`)
	digitPattern = regexp.MustCompile(`\{([0-9]+)\}`)
	// missPattern finds capture tags left over after substitution.
	missPattern = regexp.MustCompile(`\{(?:[A-Za-z][0-9]*|[0-9]+)\}`)
)

// Options controls how a template is turned into an expression.
type Options struct {
	// UseRegex treats the template as a hand-written expression. When false,
	// every literal * matches one word.
	UseRegex bool
}

// CompileError reports a template that did not compile. The pattern returned
// alongside it matches the escaped template literally.
type CompileError struct {
	Template string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling pattern %q: %v", e.Template, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// capture is one capturing group in order of its opening parenthesis.
// Unnamed groups carry their regexp2 group number.
type capture struct {
	name   string
	number int
}

// Pattern is a compiled trigger template.
type Pattern struct {
	raw      string
	source   string
	expr     *regexp2.Regexp
	names    []string
	captures []capture
	alias    string
	literal  bool

	mu          sync.Mutex
	duration    int
	hasDuration bool
}

// Compile translates a trigger template into a case-insensitive expression.
// A template that fails to compile yields a literal matcher and a
// *CompileError; the returned pattern is always usable.
func Compile(template string, opts Options) (*Pattern, error) {
	text := template
	if !opts.UseRegex {
		text = strings.ReplaceAll(text, "*", `\w+`)
	}
	text = normalize(text)

	p := &Pattern{raw: template}

	tags := tagPattern.FindAllStringSubmatch(text, -1)
	if len(tags) > 1 && distinct(tags) == 1 {
		p.alias = tags[0][1]
		for i, m := range tags {
			text = strings.Replace(text, "{"+m[1]+"}", fmt.Sprintf("(?<%s%d>.+)", m[1], i+1), 1)
		}
	}

	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		text = strings.Replace(text, "{"+m[1]+"}", "(?<"+m[1]+">.+)", 1)
	}

	text = strings.ReplaceAll(text, "{ts}", "(?<"+TimestampGroup+">.+)")
	text = strings.ReplaceAll(text, "{TS}", "(?<"+TimestampGroup+">.+)")
	text = strings.ReplaceAll(text, "(?P<", "(?<")

	expr, err := regexp2.Compile(text, regexp2.IgnoreCase)
	if err != nil {
		lit := regexp2.Escape(normalize(template))
		expr = regexp2.MustCompile(lit, regexp2.IgnoreCase)
		p.source = lit
		p.literal = true
		p.alias = ""
		p.bind(expr)
		return p, &CompileError{Template: template, Err: err}
	}

	p.source = text
	p.bind(expr)
	return p, nil
}

// MustCompile is like Compile but panics on a compile error.
func MustCompile(template string, opts Options) *Pattern {
	p, err := Compile(template, opts)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) bind(expr *regexp2.Regexp) {
	expr.MatchTimeout = matchTimeout
	p.expr = expr
	p.captures = scanCaptures(p.source)
	for _, c := range p.captures {
		if c.name != "" && !contains(p.names, c.name) {
			p.names = append(p.names, c.name)
		}
	}
}

// Raw returns the template the pattern was compiled from.
func (p *Pattern) Raw() string { return p.raw }

// String returns the compiled expression.
func (p *Pattern) String() string { return p.source }

// Names returns capture names in order of appearance.
func (p *Pattern) Names() []string { return append([]string(nil), p.names...) }

// AliasChar returns the repeated tag letter, or "" when no tag repeated.
func (p *Pattern) AliasChar() string { return p.alias }

// Literal reports whether the pattern fell back to literal matching.
func (p *Pattern) Literal() bool { return p.literal }

// Duration returns the seconds parsed from the last executed timestamp
// capture.
func (p *Pattern) Duration() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration, p.hasDuration
}

func (p *Pattern) setDuration(v string) {
	secs, ok := ParseDuration(v)
	p.mu.Lock()
	p.duration, p.hasDuration = secs, ok
	p.mu.Unlock()
}

// Match searches line and returns the first match, or nil.
func (p *Pattern) Match(line string) *Match {
	m, err := p.expr.FindStringMatch(line)
	if err != nil || m == nil {
		return nil
	}
	return &Match{pattern: p, m: m}
}

// MatchString reports whether line contains a match.
func (p *Pattern) MatchString(line string) bool {
	ok, err := p.expr.MatchString(line)
	return err == nil && ok
}

// Execute fills tmpl from m. Named captures are substituted first, then
// positional groups, then {c}/{C} with profile. Tags without a capture,
// including groups that did not participate, become the empty string.
func (p *Pattern) Execute(tmpl string, m *Match, profile string) string {
	if tmpl == "" {
		return ""
	}
	text := normalize(tmpl)

	if p.alias != "" {
		for _, d := range digitPattern.FindAllStringSubmatch(text, -1) {
			text = strings.Replace(text, "{"+d[1]+"}", "{"+p.alias+d[1]+"}", 1)
		}
	}

	if m != nil {
		for i, name := range p.names {
			val, ok := m.Named(name)
			if name == TimestampGroup && ok {
				p.setDuration(val)
			}
			text = strings.ReplaceAll(text, "{"+name+"}", val)
			text = strings.ReplaceAll(text, "{"+strconv.Itoa(i+1)+"}", val)
		}

		for i := range p.captures {
			val, _ := m.Group(i + 1)
			n := strconv.Itoa(i + 1)
			text = strings.ReplaceAll(text, "{"+n+"}", val)
			text = strings.ReplaceAll(text, "{"+p.alias+n+"}", val)
		}
	}

	text = missPattern.ReplaceAllStringFunc(text, func(tag string) string {
		if tag == "{c}" || tag == "{C}" {
			return tag
		}
		return ""
	})

	if profile != "" {
		text = strings.ReplaceAll(text, "{C}", profile)
		text = strings.ReplaceAll(text, "{c}", profile)
	}
	return text
}

// ParseDuration converts colon-delimited integers (SS, MM:SS, HH:MM:SS)
// into seconds.
func ParseDuration(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs := 0
	for _, part := range strings.Split(v, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, false
		}
		secs = secs*60 + n
	}
	return secs, true
}

// Match is the result of one successful search.
type Match struct {
	pattern *Pattern
	m       *regexp2.Match
}

// Matched reports whether the match is non-nil.
func (m *Match) Matched() bool { return m != nil && m.m != nil }

// Text returns the whole matched substring.
func (m *Match) Text() string {
	if !m.Matched() {
		return ""
	}
	return m.m.String()
}

// Named returns the value of the named capture and whether it participated.
func (m *Match) Named(name string) (string, bool) {
	if !m.Matched() {
		return "", false
	}
	g := m.m.GroupByName(name)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}

// Group returns the i-th capture (1-based, by opening parenthesis) and
// whether it participated.
func (m *Match) Group(i int) (string, bool) {
	if !m.Matched() || i < 1 || i > len(m.pattern.captures) {
		return "", false
	}
	c := m.pattern.captures[i-1]
	var g *regexp2.Group
	if c.name != "" {
		g = m.m.GroupByName(c.name)
	} else {
		g = m.m.GroupByNumber(c.number)
	}
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "^{", "{")
	return strings.ReplaceAll(s, "${", "{")
}

func distinct(tags [][]string) int {
	seen := make(map[string]bool)
	for _, t := range tags {
		seen[t[1]] = true
	}
	return len(seen)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// scanCaptures lists capturing groups in order of their opening parenthesis.
// regexp2 numbers unnamed groups before named ones, so the left-to-right
// order has to be recovered from the source.
func scanCaptures(src string) []capture {
	var caps []capture
	unnamed := 0
	inClass := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
			// a leading ] (or ^]) is a literal member
			if i+1 < len(src) && src[i+1] == '^' {
				i++
			}
			if i+1 < len(src) && src[i+1] == ']' {
				i++
			}
		case c == '(':
			rest := src[i+1:]
			if !strings.HasPrefix(rest, "?") {
				unnamed++
				caps = append(caps, capture{number: unnamed})
				continue
			}
			if name, ok := groupName(rest); ok {
				caps = append(caps, capture{name: name})
			}
		}
	}
	return caps
}

func groupName(rest string) (string, bool) {
	var body string
	var end byte
	switch {
	case strings.HasPrefix(rest, "?P<"):
		body, end = rest[3:], '>'
	case strings.HasPrefix(rest, "?<"):
		body, end = rest[2:], '>'
	case strings.HasPrefix(rest, "?'"):
		body, end = rest[2:], '\''
	default:
		return "", false
	}
	if body == "" || body[0] == '=' || body[0] == '!' {
		return "", false
	}
	j := strings.IndexByte(body, end)
	if j <= 0 {
		return "", false
	}
	return body[:j], true
}
