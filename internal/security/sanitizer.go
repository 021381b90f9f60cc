// internal/security/sanitizer.go
package security

import "strings"

// maxTextLen bounds text handed to overlays and the speech command.
const maxTextLen = 1024

// SanitizeText cleans substituted text before it leaves the engine.
// - Strips control characters (0x00-0x1F except tab) and DEL
// - Collapses newlines to spaces, so one event stays one line
// - Truncates to 1024 bytes on a rune boundary
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteByte(' ')
		case (r < 0x20 && r != '\t') || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	result := strings.TrimSpace(b.String())

	if len(result) > maxTextLen {
		cut := maxTextLen
		for cut > 0 && !utf8Start(result[cut]) {
			cut--
		}
		result = result[:cut]
	}
	return result
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
