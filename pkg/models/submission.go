package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionKind tells which document shape a pending submission holds.
type SubmissionKind string

const (
	KindInvoice SubmissionKind = "invoice"
	KindBundle  SubmissionKind = "bundle"
	KindReceipt SubmissionKind = "receipt"
)

// PendingSubmission is a staged document waiting for the submitter's
// confirmation. Each submitter holds at most one; staging a new document
// replaces the previous one.
type PendingSubmission struct {
	ID        string // unique submission identifier
	Submitter string
	Kind      SubmissionKind
	StagedAt  time.Time

	// Invoice staging
	Invoice *InvoiceRecord
	Type    TransactionType

	// Bundle staging
	Bundle *BundleResult

	// Receipt and expense staging
	Receipt           *ReceiptFacts
	Reference         string // import process token
	Category          string
	CustomDescription string // free text required when Category is "Outros"
	Note              string
	Value             decimal.Decimal
	ValueChosen       bool // a value was selected or entered manually

	// Conversation flags
	AwaitingManualValue bool
	AwaitingDescription bool
}
