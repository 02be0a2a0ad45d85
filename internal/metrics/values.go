package metrics

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate reads a spreadsheet date. Day-first layouts are tried before ISO
// ones. The zone is that of loc, matching how the dates were keyed in.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// before reports whether the date in s is strictly before now. Empty or
// unparsable dates are never overdue.
func before(s string, now time.Time) bool {
	t, ok := parseDate(s, now.Location())
	return ok && t.Before(now)
}

// Tri-state acceptance values.
type acceptance int

const (
	acceptUnset acceptance = iota
	acceptTrue
	acceptFalse
)

func parseAcceptance(s string) acceptance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return acceptUnset
	case "true", "yes", "y", "sim", "s", "1":
		return acceptTrue
	case "false", "no", "n", "não", "nao", "0":
		return acceptFalse
	}
	return acceptUnset
}

func set(s string) bool { return strings.TrimSpace(s) != "" }

func same(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) }

func inGroup(v string, groups []string) bool {
	for _, g := range groups {
		if same(v, g) {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
