// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Snippet collapses whitespace and cuts s to at most n bytes without splitting
// a rune, appending "..." when something was cut. Used for logging upstream bodies.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// ContainsAnyFold reports whether s contains any of the lowercase needles,
// ignoring case. Empty needles never match.
func ContainsAnyFold(s string, needles []string) bool {
	if s == "" || len(needles) == 0 {
		return false
	}
	lower := strings.ToLower(s)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
