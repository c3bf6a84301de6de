// Package receipt extracts payment facts from OCR'd receipt text: candidate
// monetary values, a date, and an expense category guess. Everything is
// driven by declarative pattern tables so new receipt layouts mean new
// table entries, not new branches.
package receipt

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fiscal/internal/logger"
	"fiscal/internal/normalize"
	"fiscal/pkg/models"
)

// DefaultCategory is used when no keyword group matches.
const DefaultCategory = "Despesa"

// valuePatterns catch monetary amounts in the shapes payment receipts
// actually use. Matches from every pattern are collected. The bare number
// patterns are word-bounded so a grouped amount in one locale is not
// partially re-read by the other locale's pattern.
var valuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:TOTAL|VALUE|VALOR|BRL)[:\s]+(?:BRL\s+)?(\d{1,3}(?:[.,]\d{3})*[.,]\d{2})`),
	regexp.MustCompile(`R\$\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)(?:BRL|USD)\s+(\d{1,3}(?:[.,]\d{3})*[.,]\d{2})`),
	regexp.MustCompile(`\b(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
	regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})*\.\d{2})\b`),
}

// datePatterns are tried in order; the first match anywhere in the text wins.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{2}[/.-]\d{2}[/.-]\d{4})`),
	regexp.MustCompile(`(\d{2}[/.-]\d{2}[/.-]\d{2})`),
	regexp.MustCompile(`(\d{4}[/.-]\d{2}[/.-]\d{2})`),
}

// categoryRules map keyword groups to expense categories, first group wins.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{"Frete", []string{"FRETE", "FREIGHT", "SHIPPING", "OCEAN"}},
	{"Armazenagem", []string{"ARMAZEN", "STORAGE"}},
	{"Despachante", []string{"DESPACH", "CUSTOMS"}},
	{"AFRMM", []string{"AFRMM"}},
	{"SISCOMEX", []string{"SISCOMEX"}},
}

// Extract pulls all receipt facts out of OCR'd text in one pass.
func Extract(text string) *models.ReceiptFacts {
	log := logger.WithComponent("receipt")

	facts := &models.ReceiptFacts{
		Values:   Values(text),
		Date:     Date(text),
		Category: Category(text),
		RawText:  truncate(text, models.RawTextLimit),
	}

	log.Debug().
		Int("values_found", len(facts.Values)).
		Str("date", facts.Date).
		Str("category", facts.Category).
		Msg("Extracted receipt facts")

	return facts
}

// Values returns the candidate monetary amounts found in the text,
// deduplicated and sorted largest first. The first entry is the presumed
// receipt total.
func Values(text string) []decimal.Decimal {
	seen := make(map[string]struct{})
	var values []decimal.Decimal

	for _, re := range valuePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			got := normalize.Amount(m[1])
			if got.Fallback || !got.Value.IsPositive() {
				continue
			}
			key := got.Value.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			values = append(values, got.Value)
		}
	}

	sort.Slice(values, func(i, j int) bool {
		return values[i].GreaterThan(values[j])
	})

	return values
}

// Date returns the first date found in the text in canonical form.
// Receipts without a readable date fall back to the current date.
func Date(text string) string {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return normalize.Date(m[1]).Canonical
		}
	}
	return normalize.Today()
}

// Category guesses the expense category from keywords in the text.
func Category(text string) string {
	upper := strings.ToUpper(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(upper, kw) {
				return rule.category
			}
		}
	}
	return DefaultCategory
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
