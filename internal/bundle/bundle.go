// Package bundle processes ZIP archives of NF-e documents into an
// aggregate result ready for consolidated posting.
package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"fiscal/internal/logger"
	"fiscal/internal/nfe"
	"fiscal/pkg/models"
)

// ErrUnreadableArchive is returned when the ZIP container itself cannot be
// opened. A readable archive that yields no postable invoices is a valid
// empty result, not an error.
var ErrUnreadableArchive = errors.New("unreadable ZIP archive")

// Process extracts and classifies every NF-e XML inside a ZIP archive.
// Entries are visited in archive order; return shipments are counted and
// excluded, and entries that fail extraction are logged and skipped without
// failing the bundle.
func Process(data []byte, ent nfe.Entities) (*models.BundleResult, error) {
	const op = "Process"

	log := logger.WithComponent("bundle")

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to open ZIP archive")
		return nil, fmt.Errorf("%s: %w", op, ErrUnreadableArchive)
	}

	result := &models.BundleResult{TotalValue: decimal.Zero}

	for _, entry := range reader.File {
		if !strings.HasSuffix(strings.ToLower(entry.Name), ".xml") {
			continue
		}

		content, err := readEntry(entry)
		if err != nil {
			log.Warn().Err(err).Str("entry", entry.Name).Msg("Unreadable bundle entry, skipping")
			continue
		}

		rec, err := nfe.Extract(content, "")
		if err != nil {
			log.Warn().Err(err).Str("entry", entry.Name).Msg("Entry is not a valid NFe document, skipping")
			continue
		}

		if nfe.Classify(rec, ent) == models.TypeReturnShipment {
			log.Info().
				Str("entry", entry.Name).
				Str("invoice_number", rec.InvoiceNumber).
				Msg("Return shipment excluded from bundle")
			result.ReturnShipmentsSkipped++
			continue
		}

		result.Invoices = append(result.Invoices, rec)
		result.TotalValue = result.TotalValue.Add(rec.InvoiceValue)
	}

	log.Info().
		Int("accepted", result.Count()).
		Int("return_shipments_skipped", result.ReturnShipmentsSkipped).
		Str("total_value", result.TotalValue.String()).
		Msg("Processed NFe bundle")

	return result, nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
