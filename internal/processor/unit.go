package processor

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	digitsPattern = regexp.MustCompile(`^\d+$`)
	unitPattern   = regexp.MustCompile(`(?i)unit(\d+)`)
)

// DefaultUnitID is used when nothing in the filename identifies a unit.
const DefaultUnitID = "unit_1"

// ResolveUnitID derives the logical unit identifier from a capture filename.
// A name shaped like "<prefix>_<n>[_<extra>].<ext>" resolves to
// "<prefix>_<n>"; otherwise any "unit<digits>" substring is used; otherwise
// the default unit.
func ResolveUnitID(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(base, "_")
	if len(parts) >= 2 && parts[0] != "" && digitsPattern.MatchString(parts[1]) {
		return parts[0] + "_" + parts[1]
	}

	if m := unitPattern.FindStringSubmatch(base); m != nil {
		return "unit_" + m[1]
	}

	return DefaultUnitID
}
