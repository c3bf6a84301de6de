package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"fiscal/internal/logger"
)

// AmountResult is a normalized monetary value tagged with how it was obtained.
type AmountResult struct {
	Value decimal.Decimal

	// Fallback is set when the input was empty or unparseable and zero
	// was substituted.
	Fallback bool
}

// Amount normalizes a locale-ambiguous monetary string. Both Brazilian
// (1.234,56) and US (1,234.56) groupings are accepted; when both separators
// appear, whichever occurs last is the decimal separator. A lone comma is
// decimal only in the 123,45 shape (one comma, two trailing digits),
// otherwise commas are thousands separators.
func Amount(s string) AmountResult {
	cleaned := strings.ReplaceAll(s, "R$", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		warnAmount(s)
		return AmountResult{Value: decimal.Zero, Fallback: true}
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// Brazilian: dots group thousands, comma is decimal
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			// US: commas group thousands
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) == 2 {
			cleaned = parts[0] + "." + parts[1]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		warnAmount(s)
		return AmountResult{Value: decimal.Zero, Fallback: true}
	}

	return AmountResult{Value: value}
}

func warnAmount(input string) {
	log := logger.WithComponent("normalize")
	log.Warn().Str("input", input).Msg("Unparseable monetary value, using zero")
}
