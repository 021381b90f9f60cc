// internal/template/template.go
package template

import (
	"regexp"
	"strconv"
)

var placeholder = regexp.MustCompile(`\{(COUNTER|counter|var:([^{}]+))\}`)

// Expand replaces {COUNTER}/{counter} with counter and {var:name} with the
// stored variable value. An unset variable expands to the empty string.
func Expand(tmpl string, counter int, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		if sub[2] == "" {
			return strconv.Itoa(counter)
		}
		return vars[sub[2]]
	})
}
