package nfe

import (
	"strings"

	"fiscal/pkg/models"
)

// Entities identifies the two internal companies an invoice may involve:
// the importer of record (origin) and the distributor (dest).
type Entities struct {
	InternalOriginTaxID string
	InternalDestTaxID   string
}

// Classify determines the transaction type of an extracted invoice. Rules
// run in order and the first match wins; the operation nature text outranks
// party identities, so a return shipment between the internal companies is
// still a return shipment.
func Classify(rec *models.InvoiceRecord, ent Entities) models.TransactionType {
	nature := strings.ToUpper(rec.OperationNature)

	switch {
	case strings.Contains(nature, "REMESSA"):
		return models.TypeReturnShipment
	case strings.Contains(nature, "IMPORT"), strings.Contains(nature, "ENTRADA"):
		return models.TypeImport
	case rec.EmitterTaxID == ent.InternalOriginTaxID && rec.RecipientTaxID == ent.InternalDestTaxID:
		return models.TypeInternalTransfer
	case rec.EmitterTaxID == ent.InternalDestTaxID:
		return models.TypeCustomerSale
	default:
		return models.TypeUnknown
	}
}
