package core

import "strings"

// CleanString strips surrounding whitespace from `s`, lowering it when asked.
// Used to normalize usernames, emails and cohort attributes before lookups.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}
