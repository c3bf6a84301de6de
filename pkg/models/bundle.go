package models

import "github.com/shopspring/decimal"

// BundleResult aggregates the invoices accepted from a ZIP bundle.
type BundleResult struct {
	// Invoices are the extracted records, in archive order.
	// Return shipments are excluded.
	Invoices []*InvoiceRecord

	// TotalValue is the sum of InvoiceValue over the accepted invoices.
	TotalValue decimal.Decimal

	// ReturnShipmentsSkipped counts entries excluded because they were
	// classified as return shipments.
	ReturnShipmentsSkipped int
}

// Count returns the number of accepted invoices.
func (r *BundleResult) Count() int {
	return len(r.Invoices)
}
