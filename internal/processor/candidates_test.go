package processor

import "testing"

func TestCandidateFromObservation(t *testing.T) {
	tests := []struct {
		name      string
		param     Parameter
		text      string
		wantOK    bool
		wantValue float64
		wantRange bool
	}{
		{
			name:   "no digits at all",
			param:  ParamPH,
			text:   "~~ !!",
			wantOK: false,
		},
		{
			name:   "empty text",
			param:  ParamPH,
			text:   "",
			wantOK: false,
		},
		{
			name:      "value with label noise",
			param:     ParamPH,
			text:      "pH 7.4",
			wantOK:    true,
			wantValue: 7.4,
			wantRange: true,
		},
		{
			name:      "out of range kept as fallback",
			param:     ParamPH,
			text:      "143",
			wantOK:    true,
			wantValue: 143,
			wantRange: false,
		},
		{
			name:      "in-range token preferred over earlier out-of-range",
			param:     ParamPH,
			text:      "88 7.2",
			wantOK:    true,
			wantValue: 7.2,
			wantRange: true,
		},
		{
			name:      "negative temperature",
			param:     ParamTemperature,
			text:      "-3.0",
			wantOK:    true,
			wantValue: -3.0,
			wantRange: true,
		},
		{
			name:      "zero is a real reading",
			param:     ParamSalinity,
			text:      "0",
			wantOK:    true,
			wantValue: 0,
			wantRange: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CandidateFromObservation(tt.param, &Observation{Text: tt.text, Confidence: 80})
			if got.OK != tt.wantOK {
				t.Fatalf("OK = %v, want %v", got.OK, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if got.Value != tt.wantValue {
				t.Errorf("Value = %v, want %v", got.Value, tt.wantValue)
			}
			if got.InRange != tt.wantRange {
				t.Errorf("InRange = %v, want %v", got.InRange, tt.wantRange)
			}
			if got.Confidence != 80 {
				t.Errorf("Confidence = %v, want 80", got.Confidence)
			}
		})
	}
}

func TestCandidateFromNilObservation(t *testing.T) {
	got := CandidateFromObservation(ParamPH, nil)
	if got.OK {
		t.Error("nil observation must not yield a candidate")
	}
}

func TestSelectCandidateHighestConfidence(t *testing.T) {
	// An in-range low-confidence value loses to a higher-confidence one,
	// even when the winner is out of range.
	got := SelectCandidate([]Candidate{
		{Parameter: ParamTemperature, Value: 22.5, Confidence: 60, InRange: true, OK: true},
		{Parameter: ParamTemperature, Value: -3.0, Confidence: 85, InRange: true, OK: true},
	})
	if got.Value != -3.0 {
		t.Errorf("selected %v, want -3.0", got.Value)
	}
	if FormatReading(got) != "-3.00" {
		t.Errorf("formatted %q, want %q", FormatReading(got), "-3.00")
	}
}

func TestSelectCandidateIgnoresEmptyVariants(t *testing.T) {
	got := SelectCandidate([]Candidate{
		{Parameter: ParamPH},
		{Parameter: ParamPH, Value: 6.8, Confidence: 45, InRange: true, OK: true},
		{Parameter: ParamPH},
	})
	if !got.OK || got.Value != 6.8 {
		t.Errorf("selected %+v, want the single real candidate 6.8", got)
	}
}

func TestSelectCandidateTieBreak(t *testing.T) {
	// Equal confidence: the earlier variant wins, deterministically.
	candidates := []Candidate{
		{Parameter: ParamPH, Value: 7.1, Confidence: 70, InRange: true, OK: true},
		{Parameter: ParamPH, Value: 7.9, Confidence: 70, InRange: true, OK: true},
	}
	for i := 0; i < 10; i++ {
		if got := SelectCandidate(candidates); got.Value != 7.1 {
			t.Fatalf("run %d selected %v, want first variant 7.1", i, got.Value)
		}
	}
}

func TestSelectCandidateAllEmpty(t *testing.T) {
	got := SelectCandidate([]Candidate{{}, {}, {}})
	if got.OK {
		t.Error("all-empty variants must yield no candidate")
	}
	if FormatReading(got) != NoReading {
		t.Errorf("formatted %q, want sentinel %q", FormatReading(got), NoReading)
	}
}

func TestFormatReading(t *testing.T) {
	tests := []struct {
		cand Candidate
		want string
	}{
		{Candidate{}, NoReading},
		{Candidate{Value: 7.4, OK: true}, "7.40"},
		{Candidate{Value: 0, OK: true}, "0.00"},
		{Candidate{Value: -3, OK: true}, "-3.00"},
		{Candidate{Value: 143, OK: true}, "143.00"},
		{Candidate{Value: 7.456, OK: true}, "7.46"},
	}
	for _, tt := range tests {
		if got := FormatReading(tt.cand); got != tt.want {
			t.Errorf("FormatReading(%+v) = %q, want %q", tt.cand, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pH 7.4", " 7.4"},
		{"temp: -3.0°C", " -3.0"},
		{"O₂ 8.15 mg/L", " 8.15 "},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
