// pantry/text/sanitize.go
package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// massMention matches Discord's mass-mention tokens in any letter case.
var massMention = regexp.MustCompile(`(?i)@(everyone|here)`)

// dropControl removes control characters other than newline and tab.
var dropControl = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}))

// Sanitize prepares user text for a Discord message. It applies NFKC so
// full-width or stylised look-alikes of '@', '<' and '>' are folded to
// ASCII first, drops control characters, removes angle brackets and
// mass-mention tokens, and trims surrounding space.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	if out, _, err := transform.String(transform.Chain(norm.NFKC, dropControl), s); err == nil {
		s = out
	}
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	// Removing one token can join its neighbours into another.
	for massMention.MatchString(s) {
		s = massMention.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
