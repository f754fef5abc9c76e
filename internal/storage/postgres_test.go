package storage

import (
	"database/sql"
	"testing"

	"github.com/reeflab/aquapanel-worker/internal/processor"
)

func TestNullReading(t *testing.T) {
	tests := []struct {
		in   string
		want sql.NullString
	}{
		{"7.40", sql.NullString{String: "7.40", Valid: true}},
		{"0.00", sql.NullString{String: "0.00", Valid: true}},
		{"-3.00", sql.NullString{String: "-3.00", Valid: true}},
		{processor.NoReading, sql.NullString{}},
		{"", sql.NullString{}},
	}
	for _, tt := range tests {
		if got := nullReading(tt.in); got != tt.want {
			t.Errorf("nullReading(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestReadingOrSentinel(t *testing.T) {
	if got := readingOrSentinel(sql.NullString{}); got != processor.NoReading {
		t.Errorf("NULL column = %q, want sentinel", got)
	}
	if got := readingOrSentinel(sql.NullString{String: "24.50", Valid: true}); got != "24.50" {
		t.Errorf("column = %q, want 24.50", got)
	}
}

func TestReadingRoundTrip(t *testing.T) {
	// A stored sentinel must come back as the sentinel, never as a number.
	for _, v := range []string{"7.40", "0.00", processor.NoReading} {
		if got := readingOrSentinel(nullReading(v)); got != v {
			t.Errorf("round trip of %q = %q", v, got)
		}
	}
}
