/**
 * Candidate extraction and selection.
 *
 * Turns raw OCR text into one numeric reading per parameter. Range-based
 * preference runs before cross-variant confidence comparison: Tesseract
 * happily reports high confidence for garbage on clean-looking glyphs, so
 * the domain range acts as a prior on which token to trust.
 */

package processor

import (
	"regexp"
	"strconv"
	"strings"
)

// NoReading marks a parameter for which no plausible numeric value could be
// extracted. It is distinct from any formatted number: a reading of exactly
// zero renders as "0.00", never as the sentinel.
const NoReading = "--"

// tokenPattern matches an optionally-signed decimal number.
var tokenPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Candidate is a numeric value parsed from one observation, tagged with the
// parameter it was parsed for and the confidence of its source.
type Candidate struct {
	Parameter  Parameter
	Value      float64
	Confidence float64
	InRange    bool
	OK         bool // false when the observation yielded no parsable number
}

// cleanText strips every character that cannot be part of a reading, keeping
// digits, the decimal point, the minus sign and whitespace.
func cleanText(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == ' ', r == '\t', r == '\n', r == '\r':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CandidateFromObservation parses an OCR observation into a candidate for
// the given parameter. Among all parsable tokens the first in-range one wins
// (scan order); with no in-range token the first parsable value is kept as a
// best guess rather than discarded.
func CandidateFromObservation(param Parameter, obs *Observation) Candidate {
	none := Candidate{Parameter: param}
	if obs == nil {
		return none
	}

	tokens := tokenPattern.FindAllString(cleanText(obs.Text), -1)
	if len(tokens) == 0 {
		return none
	}

	validRange := param.ValidRange()
	first := none
	for _, tok := range tokens {
		value, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		cand := Candidate{
			Parameter:  param,
			Value:      value,
			Confidence: obs.Confidence,
			InRange:    validRange.Contains(value),
			OK:         true,
		}
		if cand.InRange {
			return cand
		}
		if !first.OK {
			first = cand
		}
	}
	return first
}

// SelectCandidate picks the winning candidate across variants: highest
// source confidence among real candidates, first variant on ties. If no
// variant produced a candidate the result is the no-reading candidate.
func SelectCandidate(candidates []Candidate) Candidate {
	var best Candidate
	for _, cand := range candidates {
		if !cand.OK {
			continue
		}
		if !best.OK || cand.Confidence > best.Confidence {
			best = cand
		}
	}
	return best
}

// FormatReading renders the selected value with exactly two fractional
// digits, or the explicit sentinel when there is no reading.
func FormatReading(cand Candidate) string {
	if !cand.OK {
		return NoReading
	}
	return strconv.FormatFloat(cand.Value, 'f', 2, 64)
}
