// ABOUTME: Raw-record field accessors used by the normalization pipeline
// ABOUTME: Tolerant readers for string, bool, float, and slice values
package normalize

import (
	"strconv"
	"strings"
)

// stringValue returns the first non-empty string found under the given
// keys, or "".
func stringValue(record map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := record[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// stringValueOr is stringValue with a fallback default.
func stringValueOr(record map[string]any, fallback string, keys ...string) string {
	if v := stringValue(record, keys...); v != "" {
		return v
	}
	return fallback
}

// firstValue returns the first present, non-nil value under the given keys.
func firstValue(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// boolValue tolerates booleans, numeric 0/1, and "true"/"false" strings.
func boolValue(record map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := record[key].(type) {
		case bool:
			return v
		case float64:
			return v != 0
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return false
}

// floatValue tolerates numbers and numeric strings.
func floatValue(record map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := record[key].(type) {
		case float64:
			return v
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}

// stringSlice converts a raw JSON array into a []string, skipping
// non-string elements.
func stringSlice(raw any) []string {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		if s, ok := entry.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
