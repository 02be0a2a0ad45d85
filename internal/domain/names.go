package domain

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// LooseName trims, collapses internal whitespace and lower-cases a display name.
func LooseName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AlnumName strips everything but ASCII letters and digits and lower-cases.
// "Punched by  (Group)" and "Punched by (Group)" both become "punchedbygroup".
func AlnumName(s string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(s, ""))
}

// MatchName finds want among names using three tiers: exact, then
// case/whitespace-insensitive, then alphanumeric-normalized. It returns the
// index of the first match in the earliest tier that matches, or -1.
func MatchName(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	loose := LooseName(want)
	for i, n := range names {
		if LooseName(n) == loose {
			return i
		}
	}
	alnum := AlnumName(want)
	if alnum == "" {
		return -1
	}
	for i, n := range names {
		if AlnumName(n) == alnum {
			return i
		}
	}
	return -1
}
