// Package nfe extracts ledger-relevant fields from Brazilian NF-e invoice
// XML and classifies the underlying transaction.
//
// Extraction is schema-driven: the four structural groups (ide, emit, dest,
// total/ICMSTot) must exist, while individual leaf fields may be absent and
// default to zero values. Import-specific charges (II, AFRMM, SISCOMEX) are
// best-effort sub-extractions that never fail the document.
package nfe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fiscal/internal/logger"
	"fiscal/internal/normalize"
	"fiscal/pkg/models"
)

// Namespace is the NF-e XML namespace. Element lookup uses bare local
// names, which etree matches in any namespace, so both default-namespace
// and prefix-qualified documents work.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// siscomexPatterns locate the SISCOMEX fee inside the free-text additional
// information block. Tried in order against the upper-cased text; the first
// match wins.
var siscomexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`SISCOMEX\s+(?:FOI\s+DE\s+)?R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`TAXA\s+SISCOMEX\s+(?:FOI\s+DE\s+)?R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
}

// Extract parses a single NF-e XML document into an InvoiceRecord.
// reference is the import process token supplied by the submitter; empty
// means none was given.
func Extract(data []byte, reference string) (*models.InvoiceRecord, error) {
	const op = "Extract"

	log := logger.WithComponent("nfe")

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, NewExtractionError(op, ErrMalformedDocument, fmt.Sprintf("XML parse: %v", err))
	}
	if doc.Root() == nil {
		return nil, NewExtractionError(op, ErrMalformedDocument, "document has no root element")
	}

	ide := doc.FindElement("//ide")
	if ide == nil {
		return nil, NewExtractionError(op, ErrMalformedDocument, "missing ide group")
	}
	emit := doc.FindElement("//emit")
	if emit == nil {
		return nil, NewExtractionError(op, ErrMalformedDocument, "missing emit group")
	}
	dest := doc.FindElement("//dest")
	if dest == nil {
		return nil, NewExtractionError(op, ErrMalformedDocument, "missing dest group")
	}
	totals := doc.FindElement("//total/ICMSTot")
	if totals == nil {
		return nil, NewExtractionError(op, ErrMalformedDocument, "missing total/ICMSTot group")
	}

	if reference == "" {
		reference = models.UnknownReference
	}

	rec := &models.InvoiceRecord{
		InvoiceNumber:   childText(ide, "nNF"),
		Reference:       reference,
		IssueDate:       issueDate(ide),
		OperationNature: childText(ide, "natOp"),
		EmitterTaxID:    childText(emit, "CNPJ"),
		EmitterName:     childText(emit, "xNome"),
		RecipientTaxID:  childText(dest, "CNPJ"),
		RecipientName:   childText(dest, "xNome"),
	}

	totalFields := []struct {
		tag string
		dst *decimal.Decimal
	}{
		{"vProd", &rec.ProductsValue},
		{"vNF", &rec.InvoiceValue},
		{"vICMS", &rec.ICMS},
		{"vIPI", &rec.IPI},
		{"vPIS", &rec.PIS},
		{"vCOFINS", &rec.COFINS},
	}
	for _, f := range totalFields {
		v, err := decimalField(totals, f.tag)
		if err != nil {
			return nil, NewExtractionError(op, ErrMalformedDocument, err.Error())
		}
		*f.dst = v
	}

	rec.ImportDuty = importDuty(doc, log)
	rec.AFRMM = afrmmTotal(doc, log)
	rec.SISCOMEX = siscomexFee(doc, log)

	log.Debug().
		Str("invoice_number", rec.InvoiceNumber).
		Str("issue_date", rec.IssueDate).
		Str("emitter", rec.EmitterTaxID).
		Str("recipient", rec.RecipientTaxID).
		Str("invoice_value", rec.InvoiceValue.String()).
		Msg("Extracted NFe document")

	return rec, nil
}

// childText returns the trimmed text of a direct child element, or "" when
// the child is absent.
func childText(parent *etree.Element, tag string) string {
	if el := parent.SelectElement(tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// issueDate normalizes ide/dhEmi. NF-e 4.0 carries a full RFC 3339
// timestamp; only the date part feeds the ledger.
func issueDate(ide *etree.Element) string {
	raw := childText(ide, "dhEmi")
	if raw == "" {
		return normalize.Today()
	}
	datePart, _, _ := strings.Cut(raw, "T")
	return normalize.Date(datePart).Canonical
}

// decimalField reads a monetary leaf under parent. A missing leaf defaults
// to zero; a present but unparseable value is an error, since ledger totals
// must be trustworthy.
func decimalField(parent *etree.Element, tag string) (decimal.Decimal, error) {
	el := parent.SelectElement(tag)
	if el == nil {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(el.Text()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s value %q", tag, el.Text())
	}
	return v, nil
}

// importDuty reads the first II/vII occurrence in the document.
func importDuty(doc *etree.Document, log zerolog.Logger) decimal.Decimal {
	el := doc.FindElement("//II/vII")
	if el == nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(strings.TrimSpace(el.Text()))
	if err != nil {
		log.Warn().Str("vII", el.Text()).Msg("Unparseable import duty, using zero")
		return decimal.Zero
	}
	return v
}

// afrmmTotal sums vAFRMM over every import declaration (DI) group.
func afrmmTotal(doc *etree.Document, log zerolog.Logger) decimal.Decimal {
	total := decimal.Zero
	for _, di := range doc.FindElements("//DI") {
		el := di.SelectElement("vAFRMM")
		if el == nil {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(el.Text()))
		if err != nil {
			log.Warn().Str("vAFRMM", el.Text()).Msg("Unparseable AFRMM value, skipping")
			continue
		}
		total = total.Add(v)
	}
	return total
}

// siscomexFee scans the additional information free text for a SISCOMEX
// fee declaration.
func siscomexFee(doc *etree.Document, log zerolog.Logger) decimal.Decimal {
	el := doc.FindElement("//infCpl")
	if el == nil {
		return decimal.Zero
	}
	text := strings.ToUpper(el.Text())
	for _, re := range siscomexPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		got := normalize.Amount(m[1])
		if got.Fallback {
			log.Warn().Str("match", m[1]).Msg("Unparseable SISCOMEX value in additional info")
			return decimal.Zero
		}
		return got.Value
	}
	return decimal.Zero
}
