// Package utils provides shared utilities for text and logging.
package utils

import "unicode/utf8"

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// The cut never splits a UTF-8 sequence. If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
