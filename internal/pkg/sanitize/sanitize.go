// Package sanitize cleans text before it is persisted or returned to clients.
package sanitize

import (
	"regexp"
	"strings"
)

// C0 controls except tab, LF and CR, plus DEL and the C1 range.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x{9f}]`)

// Text removes control characters and byte order marks, normalizes line
// endings to "\n" and trims surrounding whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = controlChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\ufeff", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
