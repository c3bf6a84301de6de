package nfe

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal/internal/normalize"
	"fiscal/pkg/models"
)

const sampleImportNFe = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35250399888777000166550010000123451000123456" versao="4.00">
      <ide>
        <cUF>35</cUF>
        <natOp>IMPORTACAO DO EXTERIOR</natOp>
        <nNF>12345</nNF>
        <dhEmi>2025-03-10T14:30:00-03:00</dhEmi>
      </ide>
      <emit>
        <CNPJ>99888777000166</CNPJ>
        <xNome>Global Trade Supplies Inc</xNome>
      </emit>
      <dest>
        <CNPJ>11111111000111</CNPJ>
        <xNome>Importadora Alfa Ltda</xNome>
      </dest>
      <det nItem="1">
        <prod>
          <xProd>Equipamento industrial</xProd>
          <DI>
            <nDI>25/1234567-8</nDI>
            <vAFRMM>500.00</vAFRMM>
          </DI>
        </prod>
        <imposto>
          <II>
            <vII>1500.00</vII>
          </II>
        </imposto>
      </det>
      <det nItem="2">
        <prod>
          <xProd>Pecas de reposicao</xProd>
          <DI>
            <nDI>25/7654321-0</nDI>
            <vAFRMM>250.50</vAFRMM>
          </DI>
        </prod>
        <imposto>
          <II>
            <vII>320.00</vII>
          </II>
        </imposto>
      </det>
      <total>
        <ICMSTot>
          <vICMS>1200.50</vICMS>
          <vIPI>800.00</vIPI>
          <vPIS>231.00</vPIS>
          <vCOFINS>1064.00</vCOFINS>
          <vProd>28000.00</vProd>
          <vNF>29091.89</vNF>
        </ICMSTot>
      </total>
      <infAdic>
        <infCpl>Mercadoria importada conforme DI 25/1234567-8. Taxa Siscomex foi de R$ 154,23. AFRMM recolhido.</infCpl>
      </infAdic>
    </infNFe>
  </NFe>
</nfeProc>`

func buildNFe(ide, emit, dest, total string) string {
	return `<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe>` +
		ide + emit + dest + total + `</infNFe></NFe>`
}

const (
	ideOK   = `<ide><nNF>1</nNF><natOp>VENDA</natOp><dhEmi>2025-01-05T09:00:00-03:00</dhEmi></ide>`
	emitOK  = `<emit><CNPJ>11111111000111</CNPJ><xNome>Alfa</xNome></emit>`
	destOK  = `<dest><CNPJ>22222222000122</CNPJ><xNome>Beta</xNome></dest>`
	totalOK = `<total><ICMSTot><vProd>90.00</vProd><vNF>100.00</vNF></ICMSTot></total>`
)

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestExtractFullImportInvoice(t *testing.T) {
	rec, err := Extract([]byte(sampleImportNFe), "PI2025001")
	require.NoError(t, err)

	assert.Equal(t, "12345", rec.InvoiceNumber)
	assert.Equal(t, "PI2025001", rec.Reference)
	assert.Equal(t, "10/03/2025", rec.IssueDate)
	assert.Equal(t, "IMPORTACAO DO EXTERIOR", rec.OperationNature)
	assert.Equal(t, "99888777000166", rec.EmitterTaxID)
	assert.Equal(t, "Global Trade Supplies Inc", rec.EmitterName)
	assert.Equal(t, "11111111000111", rec.RecipientTaxID)
	assert.Equal(t, "Importadora Alfa Ltda", rec.RecipientName)

	requireDecimal(t, "28000.00", rec.ProductsValue)
	requireDecimal(t, "29091.89", rec.InvoiceValue)
	requireDecimal(t, "1200.50", rec.ICMS)
	requireDecimal(t, "800.00", rec.IPI)
	requireDecimal(t, "231.00", rec.PIS)
	requireDecimal(t, "1064.00", rec.COFINS)
}

func TestExtractImportDutyFirstOccurrence(t *testing.T) {
	rec, err := Extract([]byte(sampleImportNFe), "")
	require.NoError(t, err)

	// Two II groups exist (1500.00 and 320.00); only the first is read.
	requireDecimal(t, "1500.00", rec.ImportDuty)
}

func TestExtractAFRMMSummedOverDeclarations(t *testing.T) {
	rec, err := Extract([]byte(sampleImportNFe), "")
	require.NoError(t, err)

	requireDecimal(t, "750.50", rec.AFRMM)
}

func TestExtractSiscomexFromAdditionalInfo(t *testing.T) {
	withInfo := func(info string) string {
		return buildNFe(ideOK, emitOK, destOK, totalOK+
			fmt.Sprintf(`<infAdic><infCpl>%s</infCpl></infAdic>`, info))
	}

	tests := []struct {
		name string
		info string
		want string
	}{
		{"plain declaration", "Siscomex 1.234,56 recolhido", "1234.56"},
		{"with currency marker", "TAXA SISCOMEX FOI DE R$ 154,23", "154.23"},
		{"lowercase text", "taxa siscomex foi de r$ 99,10", "99.10"},
		{"colon breaks the pattern", "TAXA SISCOMEX: R$ 100,00", "0"},
		{"no mention", "Mercadoria conforme DI 25/1234567-8", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Extract([]byte(withInfo(tt.info)), "")
			require.NoError(t, err)
			requireDecimal(t, tt.want, rec.SISCOMEX)
		})
	}
}

func TestExtractDefaultsForMissingLeaves(t *testing.T) {
	minimal := buildNFe("<ide></ide>", "<emit></emit>", "<dest></dest>",
		"<total><ICMSTot></ICMSTot></total>")

	rec, err := Extract([]byte(minimal), "")
	require.NoError(t, err)

	assert.Equal(t, "", rec.InvoiceNumber)
	assert.Equal(t, models.UnknownReference, rec.Reference)
	assert.Equal(t, time.Now().Format(normalize.CanonicalLayout), rec.IssueDate)
	assert.Equal(t, "", rec.OperationNature)
	assert.Equal(t, "", rec.EmitterTaxID)

	requireDecimal(t, "0", rec.ProductsValue)
	requireDecimal(t, "0", rec.InvoiceValue)
	requireDecimal(t, "0", rec.ImportDuty)
	requireDecimal(t, "0", rec.AFRMM)
	requireDecimal(t, "0", rec.SISCOMEX)
}

func TestExtractMissingGroups(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"missing ide", buildNFe("", emitOK, destOK, totalOK)},
		{"missing emit", buildNFe(ideOK, "", destOK, totalOK)},
		{"missing dest", buildNFe(ideOK, emitOK, "", totalOK)},
		{"missing total", buildNFe(ideOK, emitOK, destOK, "")},
		{"missing ICMSTot", buildNFe(ideOK, emitOK, destOK, "<total></total>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Extract([]byte(tt.xml), "")
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestExtractRejectsBrokenXML(t *testing.T) {
	for _, data := range []string{"", "this is not xml", "<NFe><ide>"} {
		rec, err := Extract([]byte(data), "")
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, ErrMalformedDocument, "input %q", data)
	}
}

func TestExtractRejectsUnparseableTotals(t *testing.T) {
	broken := buildNFe(ideOK, emitOK, destOK,
		"<total><ICMSTot><vNF>abc</vNF></ICMSTot></total>")

	rec, err := Extract([]byte(broken), "")
	assert.Nil(t, rec)
	require.ErrorIs(t, err, ErrMalformedDocument)
	assert.Contains(t, err.Error(), "vNF")
}

func TestExtractPrefixedNamespace(t *testing.T) {
	prefixed := `<?xml version="1.0"?>
<nfe:NFe xmlns:nfe="http://www.portalfiscal.inf.br/nfe">
  <nfe:infNFe>
    <nfe:ide><nfe:nNF>777</nfe:nNF><nfe:natOp>VENDA</nfe:natOp><nfe:dhEmi>2025-01-05T09:00:00-03:00</nfe:dhEmi></nfe:ide>
    <nfe:emit><nfe:CNPJ>11111111000111</nfe:CNPJ><nfe:xNome>Alfa</nfe:xNome></nfe:emit>
    <nfe:dest><nfe:CNPJ>22222222000122</nfe:CNPJ><nfe:xNome>Beta</nfe:xNome></nfe:dest>
    <nfe:total><nfe:ICMSTot><nfe:vNF>100.00</nfe:vNF></nfe:ICMSTot></nfe:total>
  </nfe:infNFe>
</nfe:NFe>`

	rec, err := Extract([]byte(prefixed), "")
	require.NoError(t, err)
	assert.Equal(t, "777", rec.InvoiceNumber)
	assert.Equal(t, "05/01/2025", rec.IssueDate)
	requireDecimal(t, "100.00", rec.InvoiceValue)
}

func TestExtractDateOnlyEmission(t *testing.T) {
	// Older documents carry a bare date in dhEmi.
	ide := `<ide><nNF>9</nNF><dhEmi>2024-12-31</dhEmi></ide>`
	rec, err := Extract([]byte(buildNFe(ide, emitOK, destOK, totalOK)), "")
	require.NoError(t, err)
	assert.Equal(t, "31/12/2024", rec.IssueDate)
}
