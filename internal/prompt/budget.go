// Package prompt builds the generation prompt and enforces its size
// budget. Everything here is pure string work with no side effects.
package prompt

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker separates the retained head and tail of an
// over-budget prompt.
const TruncationMarker = "\n\n[...TRUNCATED...]\n\n"

// Truncate enforces a maximum character budget. Text within budget is
// returned unchanged; otherwise the first 75% of the budget is kept,
// then the marker, then the last 20%. For any budget that leaves room
// for the marker between the head and tail shares, the result fits the
// budget and reapplying Truncate is a no-op. Cuts back off to rune
// boundaries so multi-byte characters are never split.
func Truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	head := s[:runeStart(s, maxChars*75/100)]
	tail := s[runeStart(s, len(s)-maxChars*20/100):]
	return head + TruncationMarker + tail
}

// Cap trims text to at most n characters, appending an ellipsis when
// anything was cut. Used to bound individual context sections before
// the overall prompt is assembled.
func Cap(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	return text[:runeStart(text, n)] + " …"
}

// runeStart backs i off to the start of the rune containing s[i], so a
// cut at i never leaves a partial UTF-8 sequence behind.
func runeStart(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
