// Package normalize turns locale-ambiguous dates and monetary strings into
// canonical values. Every function tags its result with whether it had to
// fall back, so callers can log or flag suspect data instead of silently
// trusting it.
package normalize

import (
	"strings"
	"time"

	"fiscal/internal/logger"
)

// CanonicalLayout is the date format every ledger row uses.
const CanonicalLayout = "02/01/2006"

// dateLayouts are tried in order. Day-first Brazilian forms take priority,
// so an ambiguous 05/03/2025 reads as 5 March; the US month-first form is
// a last resort for dates nothing day-first can parse. The unpadded "2"
// and "1" verbs accept both "5/3/2025" and "05/03/2025".
var dateLayouts = []struct {
	layout    string
	shortYear bool
}{
	{"2/1/2006", false},
	{"2/1/06", true},
	{"2-1-2006", false},
	{"2-1-06", true},
	{"2006-1-2", false},
	{"2006/1/2", false},
	{"2.1.2006", false},
	{"2.1.06", true},
	{"2 1 2006", false},
	{"1/2/2006", false},
	{"20060102", false},
}

// DateResult is a normalized date tagged with how it was obtained.
type DateResult struct {
	// Canonical is the date in CanonicalLayout.
	Canonical string

	// Time is the parsed moment (midnight, UTC).
	Time time.Time

	// Fallback is set when no layout matched and the current date was
	// substituted. Empty input means "use the current date" by contract
	// and is not a fallback.
	Fallback bool
}

// Date normalizes an arbitrary date string to CanonicalLayout.
func Date(s string) DateResult {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		now := time.Now()
		return DateResult{Canonical: now.Format(CanonicalLayout), Time: now}
	}

	for _, dl := range dateLayouts {
		t, err := time.Parse(dl.layout, trimmed)
		if err != nil {
			continue
		}
		if dl.shortYear {
			t = applyCenturyPivot(t)
		}
		return DateResult{Canonical: t.Format(CanonicalLayout), Time: t}
	}

	log := logger.WithComponent("normalize")
	log.Warn().Str("input", s).Msg("Unrecognized date format, using current date")

	now := time.Now()
	return DateResult{Canonical: now.Format(CanonicalLayout), Time: now, Fallback: true}
}

// Today returns the current date in CanonicalLayout.
func Today() string {
	return time.Now().Format(CanonicalLayout)
}

// applyCenturyPivot moves two-digit years onto the 00-30 => 2000s,
// 31-99 => 1900s split. time.Parse puts 31-68 in the 2000s.
func applyCenturyPivot(t time.Time) time.Time {
	if y := t.Year(); y >= 2031 && y <= 2068 {
		return t.AddDate(-100, 0, 0)
	}
	return t
}
