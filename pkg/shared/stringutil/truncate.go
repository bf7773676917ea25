package stringutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens text to at most maxRunes runes, marking the cut with
// "…". Newlines are folded into spaces.
func Truncate(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes-1]) + "…"
}
