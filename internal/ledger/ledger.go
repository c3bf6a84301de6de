// Package ledger defines the sectioned tabular store the engine posts to,
// the row schema of every section, and the posting rules that map domain
// records onto rows.
package ledger

import (
	"context"
	"errors"
)

// Ledger sections. The three invoice sections are expected to exist in the
// spreadsheet already; the expense section is created on first use.
const (
	SectionImports   = "Importacao"
	SectionTransfers = "Saida_1"
	SectionSales     = "Saida_2"
	SectionExpenses  = "outras_despesas"
)

// InvoiceSections lists the sections holding invoice rows, in duplicate
// lookup priority order.
var InvoiceSections = []string{SectionImports, SectionTransfers, SectionSales}

// ExpenseHeader is written when the expense section is created.
var ExpenseHeader = []string{"PI", "Data", "Categoria", "Valor", "Descrição", "Observação"}

// CategoryOther is the catch-all expense category. It requires a free-text
// description instead of carrying one of its own.
const CategoryOther = "Outros"

// ExpenseCategories are the standard expense categories in display order,
// CategoryOther last.
var ExpenseCategories = []string{
	"Frete Internacional",
	"Frete Nacional",
	"Armazenagem",
	"Despachante",
	"AFRMM",
	"SISCOMEX",
	"ICMS",
	"Seguro",
	"Inspeção",
	"Certificação",
	CategoryOther,
}

var (
	// ErrSectionNotFound is returned when a read targets a section the
	// ledger does not have.
	ErrSectionNotFound = errors.New("ledger section not found")

	// ErrNotPostable is returned when a posting is attempted for a
	// transaction type that never reaches the ledger.
	ErrNotPostable = errors.New("transaction type cannot be posted")

	// ErrEmptyBundle is returned when a consolidated posting is attempted
	// for a bundle with no accepted invoices.
	ErrEmptyBundle = errors.New("bundle has no invoices to post")
)

// Store is a sectioned append-only tabular store.
type Store interface {
	// AppendRow appends one row to a section.
	AppendRow(ctx context.Context, section string, values []interface{}) error

	// ReadAllRows returns every row of a section, header row included,
	// with cells converted to trimmed strings.
	ReadAllRows(ctx context.Context, section string) ([][]string, error)

	// EnsureSection creates the section with a header row when it is
	// absent. Existing sections are left untouched.
	EnsureSection(ctx context.Context, section string, header []string) error
}
