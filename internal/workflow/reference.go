package workflow

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// referencePatterns are tried in order against the upper-cased text. The
// first capture wins: an explicit "PI" marker, an explicit "PROCESSO"
// marker, then a bare 4-letter 7-digit token.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`PI[:\s]*([A-Z0-9]+)`),
	regexp.MustCompile(`PROCESSO[:\s]*([A-Z0-9]+)`),
	regexp.MustCompile(`([A-Z]{4}\d{7})`),
}

// ExtractReference scans free text for an import process reference token.
// Returns the empty string when no pattern matches.
func ExtractReference(text string) string {
	upper := strings.ToUpper(text)
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(upper); m != nil {
			return m[1]
		}
	}
	return ""
}

// ParseValue parses a user-typed monetary value. A single decimal comma is
// accepted in place of a dot; thousands separators are not.
func ParseValue(raw string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	return decimal.NewFromString(normalized)
}
