package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal/internal/nfe"
)

var testEntities = nfe.Entities{
	InternalOriginTaxID: "11111111000111",
	InternalDestTaxID:   "22222222000122",
}

func invoiceXML(number, nature, emitter, value string) string {
	return fmt.Sprintf(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe>`+
		`<ide><nNF>%s</nNF><natOp>%s</natOp><dhEmi>2025-02-01T10:00:00-03:00</dhEmi></ide>`+
		`<emit><CNPJ>%s</CNPJ><xNome>Emitente</xNome></emit>`+
		`<dest><CNPJ>33333333000133</CNPJ><xNome>Cliente Final</xNome></dest>`+
		`<total><ICMSTot><vNF>%s</vNF></ICMSTot></total>`+
		`</infNFe></NFe>`, number, nature, emitter, value)
}

type zipEntry struct {
	name string
	data []byte
}

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestProcessBundle(t *testing.T) {
	data := buildZip(t, []zipEntry{
		{"nota1.xml", []byte(invoiceXML("100", "VENDA DE MERCADORIA", testEntities.InternalDestTaxID, "1000.00"))},
		{"nota2.xml", []byte(invoiceXML("101", "REMESSA PARA CONSERTO", testEntities.InternalDestTaxID, "50.00"))},
		{"nota3.xml", []byte(invoiceXML("102", "VENDA DE MERCADORIA", testEntities.InternalDestTaxID, "234.56"))},
		{"leia-me.txt", []byte("nao sou uma nota")},
		{"quebrada.xml", []byte("<NFe><ide>")},
	})

	result, err := Process(data, testEntities)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count())
	assert.Equal(t, 1, result.ReturnShipmentsSkipped)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(result.TotalValue),
		"want 1234.56, got %s", result.TotalValue)

	// Archive order is preserved; the first invoice drives consolidated posting.
	assert.Equal(t, "100", result.Invoices[0].InvoiceNumber)
	assert.Equal(t, "102", result.Invoices[1].InvoiceNumber)
}

func TestProcessBundleUppercaseExtension(t *testing.T) {
	data := buildZip(t, []zipEntry{
		{"NOTA.XML", []byte(invoiceXML("200", "VENDA", testEntities.InternalDestTaxID, "10.00"))},
	})

	result, err := Process(data, testEntities)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count())
}

func TestProcessBundleNestedEntries(t *testing.T) {
	data := buildZip(t, []zipEntry{
		{"lote/fevereiro/nota.xml", []byte(invoiceXML("300", "VENDA", testEntities.InternalDestTaxID, "77.00"))},
	})

	result, err := Process(data, testEntities)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count())
}

func TestProcessBundleNothingPostable(t *testing.T) {
	// A readable archive with no usable invoices is an empty result, not
	// an unreadable one.
	data := buildZip(t, []zipEntry{
		{"leia-me.txt", []byte("sem notas aqui")},
	})

	result, err := Process(data, testEntities)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count())
	assert.Equal(t, 0, result.ReturnShipmentsSkipped)
	assert.True(t, result.TotalValue.IsZero())
}

func TestProcessBundleCorruptArchive(t *testing.T) {
	result, err := Process([]byte("definitely not a zip"), testEntities)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnreadableArchive)
}
