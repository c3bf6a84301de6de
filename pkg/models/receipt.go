package models

import "github.com/shopspring/decimal"

// RawTextLimit caps how much recognized text a staged receipt keeps.
const RawTextLimit = 500

// ReceiptFacts holds what could be read out of an OCR'd payment receipt.
type ReceiptFacts struct {
	// Values are the candidate monetary amounts found in the text,
	// deduplicated and sorted largest first. The first entry is the
	// presumed receipt total.
	Values []decimal.Decimal

	// Date is the first date found in the text, canonical DD/MM/YYYY.
	// Falls back to the current date when the text carries none.
	Date string

	// Category is the expense category guessed from keywords.
	Category string

	// RawText is a preview of the recognized text, truncated to
	// RawTextLimit runes.
	RawText string
}
