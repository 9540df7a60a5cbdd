// Package utils provides shared text and logging utilities.
package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen runes, with "..." appended if
// truncated. If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == maxLen {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// CollapseSpace trims s and collapses every run of whitespace to a single space.
func CollapseSpace(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	wasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
