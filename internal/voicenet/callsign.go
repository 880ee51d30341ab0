package voicenet

import (
	"regexp"
	"strings"
)

var (
	separatorRuns = regexp.MustCompile(`[\s_-]+`)
	trailingPunct = regexp.MustCompile(`[.,:;!?]+$`)
)

// Normalize canonicalises a callsign for matching: uppercase, runs of
// spaces/underscores/hyphens collapsed to a single hyphen, trailing
// punctuation stripped. "Alpha One," and "ALPHA_ONE" both normalise to
// "ALPHA-ONE".
func Normalize(callsign string) string {
	s := strings.TrimSpace(callsign)
	s = trailingPunct.ReplaceAllString(s, "")
	s = separatorRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return strings.ToUpper(s)
}

// Match reports whether two callsigns refer to the same station, comparing
// their normalised forms.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return Normalize(a) == Normalize(b)
}
