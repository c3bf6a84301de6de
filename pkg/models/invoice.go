package models

import "github.com/shopspring/decimal"

// UnknownReference is recorded when a submission carries no import process token.
const UnknownReference = "N/A"

// InvoiceRecord holds the fields extracted from a single NF-e document.
// Monetary fields use decimal values; missing optional fields stay zero.
type InvoiceRecord struct {
	// Core identifiers
	InvoiceNumber string // nNF, human-readable invoice number
	Reference     string // import process (PI) token, UnknownReference when not supplied

	// Operation
	IssueDate       string // emission date, canonical DD/MM/YYYY
	OperationNature string // natOp free text, drives classification

	// Parties
	EmitterTaxID    string // emitter CNPJ
	EmitterName     string
	RecipientTaxID  string // recipient CNPJ
	RecipientName   string

	// Totals (ICMSTot group)
	ProductsValue decimal.Decimal // vProd
	InvoiceValue  decimal.Decimal // vNF
	ICMS          decimal.Decimal
	IPI           decimal.Decimal
	PIS           decimal.Decimal
	COFINS        decimal.Decimal

	// Import-specific charges
	ImportDuty decimal.Decimal // II
	AFRMM      decimal.Decimal // merchant marine surcharge, summed over DI groups
	SISCOMEX   decimal.Decimal // customs system fee, scanned from infCpl free text
}

// TransactionType classifies an invoice by its role in the import/distribution
// flow. The values are the ones the ledger and its operators use.
type TransactionType string

const (
	TypeImport           TransactionType = "IMPORTACAO"
	TypeInternalTransfer TransactionType = "LDL_PARA_POP"
	TypeCustomerSale     TransactionType = "POP_PARA_CLIENTE"
	TypeReturnShipment   TransactionType = "REMESSA"
	TypeUnknown          TransactionType = "DESCONHECIDO"
)

// Postable reports whether invoices of this type are ever written to the
// ledger. Return shipments are fiscal round-trips, not business operations,
// and unclassifiable invoices need human review first.
func (t TransactionType) Postable() bool {
	return t != TypeReturnShipment && t != TypeUnknown
}
