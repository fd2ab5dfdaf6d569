// ABOUTME: Date-safe parsing for inconsistently formatted server timestamps
// ABOUTME: Falls back through known layouts and never yields an invalid date
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Server records carry timestamps in several shapes depending on the
// ingestion path that produced them.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// safeDefault is what an unparseable timestamp becomes. The epoch sorts
// last and is visibly wrong, instead of corrupting downstream ordering.
var safeDefault = time.Unix(0, 0).UTC()

// ParseTimestamp converts a raw timestamp value into a valid time.
// Strings fall through the layout list; numbers are treated as unix
// seconds (or milliseconds when implausibly large). Anything else, or
// an unparseable string, returns the safe default and ok=false.
func ParseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		return parseTimestampString(v)
	case float64:
		return parseTimestampNumber(v)
	case int64:
		return parseTimestampNumber(float64(v))
	case int:
		return parseTimestampNumber(float64(v))
	case time.Time:
		if v.IsZero() {
			return safeDefault, false
		}
		return v.UTC(), true
	default:
		return safeDefault, false
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return safeDefault, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	// Some paths serialize epoch values as strings.
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return parseTimestampNumber(n)
	}

	return safeDefault, false
}

func parseTimestampNumber(n float64) (time.Time, bool) {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return safeDefault, false
	}
	// Values past the year 2900 in seconds are almost certainly milliseconds.
	if n > 3e10 {
		n = n / 1000
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), true
}
