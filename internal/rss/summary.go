package rss

import (
	"strings"
	"unicode/utf16"
)

// SummaryMaxLength is the number of UTF-16 code units kept by Summarise
// before the ellipsis is appended.
const SummaryMaxLength = 250

const ellipsis = "…"

// Summarise builds the plain-text summary of a post from an item's
// description, falling back to its title when the description is blank.
func Summarise(description, fallbackTitle string) string {
	source := strings.TrimSpace(description)
	if source == "" {
		source = strings.TrimSpace(fallbackTitle)
	}
	if source == "" {
		return ""
	}

	normalised := collapseSpace(source)
	cut, truncated := utf16Prefix(normalised, SummaryMaxLength)
	if !truncated {
		return normalised
	}
	return normalised[:cut] + ellipsis
}

// utf16Prefix returns the byte length of the longest prefix of s that fits
// in max UTF-16 code units. A surrogate pair is never split.
func utf16Prefix(s string, max int) (int, bool) {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > max {
			return i, true
		}
		units += n
	}
	return len(s), false
}
