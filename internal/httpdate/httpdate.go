// Package httpdate parses the three date grammars HTTP has historically
// allowed in a Last-Modified (or Date) header: RFC 1123, RFC 850, and
// the ASCII asctime format. It is the collaborator spec §4.9 names;
// the only caller in this module is httpstore, which uses it to turn a
// remote tile's Last-Modified header into a comparable timestamp.
package httpdate

import (
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// Parse attempts each of the three recognized grammars in turn and
// returns the first successful result in UTC. The second return value
// reports whether any form matched; a caller whose fallback is "now" or
// "zero value" decides that for itself.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, ok := parseRFC1123(s); ok {
		return t, true
	}
	if t, ok := parseRFC850(s); ok {
		return t, true
	}
	if t, ok := parseASCTime(s); ok {
		return t, true
	}
	return time.Time{}, false
}

// parseRFC1123 parses "Sun, 06 Nov 1994 08:49:37 GMT". The weekday name
// is not validated against the actual date; the grammar only requires
// it to be present as a 3-letter token followed by a comma.
func parseRFC1123(s string) (time.Time, bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	fields := strings.Fields(parts[1])
	if len(fields) != 5 {
		return time.Time{}, false
	}
	day, ok := atoi(fields[0])
	if !ok {
		return time.Time{}, false
	}
	month, ok := months[fields[1]]
	if !ok {
		return time.Time{}, false
	}
	year, ok := atoi(fields[2])
	if !ok {
		return time.Time{}, false
	}
	hh, mm, ss, ok := parseClock(fields[3])
	if !ok {
		return time.Time{}, false
	}
	if !strings.EqualFold(fields[4], "GMT") {
		return time.Time{}, false
	}
	return time.Date(year, month, day, hh, mm, ss, 0, time.UTC), true
}

// parseRFC850 parses "Sunday, 06-Nov-94 08:49:37 GMT", including the
// two-digit-year pivot: years below 70 are 2000-era, at or above 70 are
// 1900-era. This mirrors the original grammar's hard-coded rule (spec
// §4.9, open question 4) rather than pivoting on the current year, so
// that the same string always parses to the same instant regardless of
// when it is parsed.
func parseRFC850(s string) (time.Time, bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	fields := strings.Fields(parts[1])
	if len(fields) != 3 {
		return time.Time{}, false
	}
	dateParts := strings.Split(fields[0], "-")
	if len(dateParts) != 3 {
		return time.Time{}, false
	}
	day, ok := atoi(dateParts[0])
	if !ok {
		return time.Time{}, false
	}
	month, ok := months[dateParts[1]]
	if !ok {
		return time.Time{}, false
	}
	yy, ok := atoi(dateParts[2])
	if !ok {
		return time.Time{}, false
	}
	year := yy + 1900
	if yy < 70 {
		year = yy + 2000
	}
	hh, mm, ss, ok := parseClock(fields[1])
	if !ok {
		return time.Time{}, false
	}
	if !strings.EqualFold(fields[2], "GMT") {
		return time.Time{}, false
	}
	return time.Date(year, month, day, hh, mm, ss, 0, time.UTC), true
}

// parseASCTime parses "Sun Nov  6 08:49:37 1994". The day field may be
// space-padded instead of zero-padded, so fields are split on
// whitespace with repeats collapsed rather than by fixed column.
func parseASCTime(s string) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return time.Time{}, false
	}
	month, ok := months[fields[1]]
	if !ok {
		return time.Time{}, false
	}
	day, ok := atoi(fields[2])
	if !ok {
		return time.Time{}, false
	}
	hh, mm, ss, ok := parseClock(fields[3])
	if !ok {
		return time.Time{}, false
	}
	year, ok := atoi(fields[4])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(year, month, day, hh, mm, ss, 0, time.UTC), true
}

// parseClock parses "08:49:37".
func parseClock(s string) (hh, mm, ss int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	hh, ok1 := atoi(parts[0])
	mm, ok2 := atoi(parts[1])
	ss, ok3 := atoi(parts[2])
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, false
	}
	return hh, mm, ss, true
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Format renders t in RFC 1123 form, the canonical form the core emits
// when it needs to produce an HTTP date (spec §6).
func Format(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}
