// internal/security/scrubber.go
package security

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	// Bearer token pattern
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+\S{8,}`)
	// Credential-looking query parameters: token=, key=, secret=, ...
	queryParamPattern = regexp.MustCompile(`(?i)\b((?:api_?)?key|token|secret|password|sig)=[^&\s]+`)
	// Discord/Slack style webhook paths carry the secret as the last segment
	webhookPathPattern = regexp.MustCompile(`(/api/webhooks/\d+/)[\w-]+`)
	// Long hex strings (32+ chars) are likely API keys
	hexKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

// Scrub redacts credentials from text before it is logged or stored.
func Scrub(s string) string {
	result := bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	result = queryParamPattern.ReplaceAllString(result, "$1=[REDACTED]")
	result = webhookPathPattern.ReplaceAllString(result, "${1}[REDACTED]")
	result = hexKeyPattern.ReplaceAllString(result, "[REDACTED]")
	return result
}

// ScrubURL reduces a webhook URL to something safe to log: user info and
// query values are dropped and secret path segments redacted.
func ScrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Scrub(raw)
	}
	u.User = nil
	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k+"=[REDACTED]")
		}
		sort.Strings(keys)
		u.RawQuery = ""
		return Scrub(u.String()) + "?" + strings.Join(keys, "&")
	}
	return Scrub(u.String())
}
