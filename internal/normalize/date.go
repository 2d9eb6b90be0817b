// Package normalize provides the date and title normalizers applied to
// every harvested item before it becomes an article.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedDate is the outcome of date normalization. Unknown dates are not
// errors: recency filtering treats them as "include".
type ParsedDate struct {
	// Time is the normalized instant; meaningful only when Known.
	Time time.Time
	// Known reports whether the raw string was parseable.
	Known bool
}

// absoluteLayouts are tried in order after ISO-8601 and relative
// expressions. Ordering puts unambiguous layouts first.
var absoluteLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02 15:04",
	"2006.01.02",
	"2006/01/02",
	"2006년 1월 2일",
	"2006년 01월 02일",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// Relative expressions in Korean and English. The quantity group is the
// first submatch.
var (
	koRelativePattern = regexp.MustCompile(`^(\d+)\s*(분|시간|일|주|개월|달|년)\s*전$`)
	enRelativePattern = regexp.MustCompile(`(?i)^(\d+)\s*(minute|min|hour|hr|day|week|month|year)s?\s+ago$`)
)

// sameDayIdioms map day idioms to their offset in days.
var sameDayIdioms = map[string]int{
	"오늘":        0,
	"방금":        0,
	"방금 전":      0,
	"어제":        -1,
	"그제":        -2,
	"그저께":       -2,
	"today":     0,
	"just now":  0,
	"yesterday": -1,
}

// ParseDate normalizes a raw date string relative to now. It tries
// ISO-8601, then localized relative expressions, then a battery of fixed
// layouts. Unparseable input yields Known=false, never an error.
func ParseDate(raw string, now time.Time) ParsedDate {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedDate{}
	}

	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ParsedDate{Time: t, Known: true}
	}

	if t, ok := parseRelative(trimmed, now); ok {
		return ParsedDate{Time: t, Known: true}
	}

	if t, ok := parseAbsolute(trimmed); ok {
		return ParsedDate{Time: t, Known: true}
	}

	return ParsedDate{}
}

// parseRelative handles "N일 전" / "N days ago" style expressions and
// same-day idioms.
func parseRelative(raw string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(raw)
	if offset, ok := sameDayIdioms[lower]; ok {
		return now.AddDate(0, 0, offset), true
	}

	if m := koRelativePattern.FindStringSubmatch(raw); m != nil {
		return applyRelative(now, m[1], koUnitToEn(m[2])), true
	}

	if m := enRelativePattern.FindStringSubmatch(raw); m != nil {
		return applyRelative(now, m[1], strings.ToLower(m[2])), true
	}

	return time.Time{}, false
}

// koUnitToEn maps Korean relative units onto the English unit names used
// by applyRelative.
func koUnitToEn(unit string) string {
	switch unit {
	case "분":
		return "minute"
	case "시간":
		return "hour"
	case "일":
		return "day"
	case "주":
		return "week"
	case "개월", "달":
		return "month"
	case "년":
		return "year"
	default:
		return ""
	}
}

// applyRelative subtracts quantity units from now.
func applyRelative(now time.Time, quantity, unit string) time.Time {
	n, err := strconv.Atoi(quantity)
	if err != nil {
		return now
	}

	switch unit {
	case "minute", "min":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour", "hr":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	case "year":
		return now.AddDate(-n, 0, 0)
	default:
		return now
	}
}

// parseAbsolute tries the fixed layout battery.
func parseAbsolute(raw string) (time.Time, bool) {
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// WithinDays reports whether the date is within days of now. Unknown
// dates are always within: exclusion requires positive evidence of age.
// A date exactly days old is included.
func (d ParsedDate) WithinDays(days int, now time.Time) bool {
	if !d.Known || days <= 0 {
		return true
	}

	cutoff := now.AddDate(0, 0, -days)

	return !d.Time.Before(cutoff)
}

// ISO returns the RFC3339 rendering of a known date, or "" for unknown.
func (d ParsedDate) ISO() string {
	if !d.Known {
		return ""
	}

	return d.Time.Format(time.RFC3339)
}
