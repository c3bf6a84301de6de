// Package dedup checks staged postings against ledger contents before they
// are written, so the same invoice or expense is not booked twice.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fiscal/internal/ledger"
	"fiscal/internal/logger"
	"fiscal/internal/normalize"
)

// DaysTolerance is the date window, in days either side, within which two
// expenses for the same reference can be considered the same expense.
const DaysTolerance = 100

// MaxDiffPercent is the largest value difference, as a percentage of the
// submitted value, still treated as the same expense.
var MaxDiffPercent = decimal.NewFromInt(1)

// InvoiceMatch describes a ledger row already holding an invoice number.
type InvoiceMatch struct {
	Section       string
	Row           int
	InvoiceNumber string
	Date          string
}

// ExpenseMatch describes a ledger expense row close enough to a submitted
// expense to be its duplicate. Total counts every qualifying row; the
// fields describe the first.
type ExpenseMatch struct {
	Row         int
	Date        string
	Category    string
	Value       decimal.Decimal
	DiffPercent decimal.Decimal
	Total       int
}

// Detector looks up potential duplicates in a ledger store.
type Detector struct {
	store ledger.Store
	log   zerolog.Logger
}

// NewDetector creates a Detector backed by the given store.
func NewDetector(store ledger.Store) *Detector {
	return &Detector{
		store: store,
		log:   logger.WithComponent("dedup"),
	}
}

// CheckInvoice scans the invoice sections in priority order for a row
// whose invoice number equals the given one. Exact trimmed comparison, so
// numbers that differ only in leading zeros are distinct. Returns nil when
// no row matches.
func (d *Detector) CheckInvoice(ctx context.Context, invoiceNumber string) (*InvoiceMatch, error) {
	const op = "CheckInvoice"

	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, nil
	}

	for _, section := range ledger.InvoiceSections {
		rows, err := d.store.ReadAllRows(ctx, section)
		if err != nil {
			if errors.Is(err, ledger.ErrSectionNotFound) {
				continue
			}
			return nil, fmt.Errorf("%s: reading %s: %w", op, section, err)
		}

		for i, row := range rows {
			if i == 0 || len(row) < 2 {
				continue
			}
			if strings.TrimSpace(row[1]) != invoiceNumber {
				continue
			}

			date := "N/A"
			if len(row) >= 3 && row[2] != "" {
				date = row[2]
			}

			match := &InvoiceMatch{
				Section:       section,
				Row:           i + 1,
				InvoiceNumber: invoiceNumber,
				Date:          date,
			}

			d.log.Warn().
				Str("invoice_number", invoiceNumber).
				Str("section", section).
				Int("row", match.Row).
				Msg("Invoice already present in ledger")

			return match, nil
		}
	}

	return nil, nil
}

// CheckExpense scans the expense section for a row with the same reference
// whose date falls within DaysTolerance of the submitted date and whose
// value differs by at most MaxDiffPercent of the submitted value.
// Non-positive submitted values never match. Returns nil when no row
// qualifies.
func (d *Detector) CheckExpense(ctx context.Context, reference string, value decimal.Decimal, date string) (*ExpenseMatch, error) {
	const op = "CheckExpense"

	reference = strings.TrimSpace(reference)
	if reference == "" || !value.IsPositive() {
		return nil, nil
	}

	submitted := normalize.Date(date)
	submittedDay := dayOf(submitted.Time)

	rows, err := d.store.ReadAllRows(ctx, ledger.SectionExpenses)
	if err != nil {
		if errors.Is(err, ledger.ErrSectionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: reading %s: %w", op, ledger.SectionExpenses, err)
	}

	var match *ExpenseMatch
	total := 0

	for i, row := range rows {
		if i == 0 || len(row) < 4 {
			continue
		}
		if strings.TrimSpace(row[0]) != reference {
			continue
		}

		stored := normalize.Date(row[1])
		if stored.Fallback {
			d.log.Warn().
				Str("reference", reference).
				Int("row", i+1).
				Str("raw_date", row[1]).
				Msg("Skipping expense row with unreadable date")
			continue
		}

		days := daysBetween(submittedDay, dayOf(stored.Time))
		if days > DaysTolerance {
			continue
		}

		storedValue := normalize.Amount(row[3]).Value
		diffPercent := value.Sub(storedValue).Abs().Div(value).Mul(decimal.NewFromInt(100))
		if diffPercent.GreaterThan(MaxDiffPercent) {
			continue
		}

		total++
		if match == nil {
			match = &ExpenseMatch{
				Row:         i + 1,
				Date:        stored.Canonical,
				Category:    row[2],
				Value:       storedValue,
				DiffPercent: diffPercent,
			}
		}
	}

	if match != nil {
		match.Total = total
		d.log.Warn().
			Str("reference", reference).
			Str("value", value.String()).
			Int("matches", total).
			Msg("Similar expense already present in ledger")
	}

	return match, nil
}

// dayOf truncates a time to its calendar day in UTC.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the absolute number of calendar days between two
// day-truncated times.
func daysBetween(a, b time.Time) int {
	days := int(a.Sub(b).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
