package normalize

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  time.Time
		ok    bool
	}{
		{"rfc3339", "2025-03-01T10:30:00Z", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), true},
		{"rfc3339 with offset", "2025-03-01T10:30:00-05:00", time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC), true},
		{"sql datetime", "2025-03-01 10:30:00", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), true},
		{"bare date", "2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"unix seconds number", float64(1740000000), time.Unix(1740000000, 0).UTC(), true},
		{"unix millis number", float64(1740000000000), time.Unix(1740000000, 0).UTC(), true},
		{"unix seconds string", "1740000000", time.Unix(1740000000, 0).UTC(), true},
		{"garbage string", "not a date", safeDefault, false},
		{"empty string", "", safeDefault, false},
		{"nil", nil, safeDefault, false},
		{"negative number", float64(-5), safeDefault, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestampNeverInvalid(t *testing.T) {
	// Whatever comes in, the result is a usable time value.
	inputs := []any{"", "NaN", "∞", map[string]any{}, []any{}, true, float64(0)}
	for _, input := range inputs {
		got, _ := ParseTimestamp(input)
		if got.IsZero() {
			t.Errorf("ParseTimestamp(%v) produced a zero time", input)
		}
	}
}
