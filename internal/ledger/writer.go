package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fiscal/internal/logger"
	"fiscal/pkg/models"
)

// TransferFeeRate is the handling fee applied to internal transfers,
// written alongside the transfer value.
var TransferFeeRate = decimal.RequireFromString("0.004")

// Expense is one expense posting for the expense section.
type Expense struct {
	Reference   string
	Date        string
	Category    string
	Value       decimal.Decimal
	Description string
	Note        string
}

// Writer posts domain records to ledger sections using the row schema each
// section expects.
type Writer struct {
	store Store
	log   zerolog.Logger
}

// NewWriter creates a Writer backed by the given store.
func NewWriter(store Store) *Writer {
	return &Writer{
		store: store,
		log:   logger.WithComponent("ledger"),
	}
}

// PostInvoice appends the invoice to the section its transaction type maps
// to and returns that section. Return shipments and unknown types are
// rejected with ErrNotPostable.
func (w *Writer) PostInvoice(ctx context.Context, rec *models.InvoiceRecord, typ models.TransactionType) (string, error) {
	const op = "PostInvoice"

	section, row, err := invoiceRow(rec, typ)
	if err != nil {
		return "", fmt.Errorf("%s: invoice %s: %w", op, rec.InvoiceNumber, err)
	}

	if err := w.store.AppendRow(ctx, section, row); err != nil {
		return "", fmt.Errorf("%s: appending invoice %s to %s: %w", op, rec.InvoiceNumber, section, err)
	}

	w.log.Info().
		Str("invoice_number", rec.InvoiceNumber).
		Str("section", section).
		Str("type", string(typ)).
		Str("value", rec.InvoiceValue.String()).
		Msg("Invoice posted to ledger")

	return section, nil
}

// PostBundle appends one consolidated row for the whole bundle. Only
// customer sale bundles are posted; the row carries the bundle total and
// identifying fields taken from the first invoice.
func (w *Writer) PostBundle(ctx context.Context, reference string, res *models.BundleResult, typ models.TransactionType) (string, error) {
	const op = "PostBundle"

	if res.Count() == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyBundle)
	}
	if typ != models.TypeCustomerSale {
		return "", fmt.Errorf("%s: bundle type %s: %w", op, typ, ErrNotPostable)
	}

	first := res.Invoices[0]
	row := []interface{}{
		reference,
		fmt.Sprintf("ZIP com %d NFs", res.Count()),
		first.IssueDate,
		first.RecipientName,
		first.RecipientTaxID,
		decimalCell(res.TotalValue),
		first.OperationNature,
	}

	if err := w.store.AppendRow(ctx, SectionSales, row); err != nil {
		return "", fmt.Errorf("%s: appending bundle %s: %w", op, reference, err)
	}

	w.log.Info().
		Str("reference", reference).
		Int("invoices", res.Count()).
		Str("total", res.TotalValue.String()).
		Msg("Bundle posted to ledger")

	return SectionSales, nil
}

// PostExpense appends the expense to the expense section, creating that
// section with its header when it does not exist yet.
func (w *Writer) PostExpense(ctx context.Context, exp Expense) (string, error) {
	const op = "PostExpense"

	if err := w.store.EnsureSection(ctx, SectionExpenses, ExpenseHeader); err != nil {
		return "", fmt.Errorf("%s: ensuring expense section: %w", op, err)
	}

	row := []interface{}{
		exp.Reference,
		exp.Date,
		exp.Category,
		decimalCell(exp.Value),
		exp.Description,
		exp.Note,
	}

	if err := w.store.AppendRow(ctx, SectionExpenses, row); err != nil {
		return "", fmt.Errorf("%s: appending expense %s: %w", op, exp.Reference, err)
	}

	w.log.Info().
		Str("reference", exp.Reference).
		Str("category", exp.Category).
		Str("value", exp.Value.String()).
		Msg("Expense posted to ledger")

	return SectionExpenses, nil
}

// invoiceRow builds the row for an invoice according to the section schema
// its transaction type selects.
func invoiceRow(rec *models.InvoiceRecord, typ models.TransactionType) (string, []interface{}, error) {
	switch typ {
	case models.TypeImport:
		return SectionImports, []interface{}{
			rec.Reference,
			rec.InvoiceNumber,
			rec.IssueDate,
			rec.EmitterName,
			rec.EmitterTaxID,
			decimalCell(rec.ProductsValue),
			decimalCell(rec.InvoiceValue),
			decimalCell(rec.ImportDuty),
			decimalCell(rec.IPI),
			decimalCell(rec.PIS),
			decimalCell(rec.COFINS),
			decimalCell(rec.ICMS),
			decimalCell(rec.AFRMM),
			decimalCell(rec.SISCOMEX),
		}, nil
	case models.TypeInternalTransfer:
		return SectionTransfers, []interface{}{
			rec.Reference,
			rec.InvoiceNumber,
			rec.IssueDate,
			decimalCell(rec.InvoiceValue),
			decimalCell(rec.InvoiceValue.Mul(TransferFeeRate)),
		}, nil
	case models.TypeCustomerSale:
		return SectionSales, []interface{}{
			rec.Reference,
			rec.InvoiceNumber,
			rec.IssueDate,
			rec.RecipientName,
			rec.RecipientTaxID,
			decimalCell(rec.InvoiceValue),
			rec.OperationNature,
		}, nil
	default:
		return "", nil, ErrNotPostable
	}
}

// decimalCell converts a decimal to the numeric cell representation the
// store expects.
func decimalCell(d decimal.Decimal) interface{} {
	f, _ := d.Float64()
	return f
}
