package workflow_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal/internal/dedup"
	"fiscal/internal/ledger"
	"fiscal/internal/ledger/memory"
	"fiscal/internal/nfe"
	"fiscal/internal/normalize"
	"fiscal/internal/session"
	"fiscal/internal/workflow"
	"fiscal/pkg/models"
)

const (
	originTaxID = "11111111000111"
	destTaxID   = "22222222000122"
)

func newService() (*workflow.Service, *memory.Store) {
	store := memory.NewStore()
	svc := workflow.NewService(
		session.NewMemoryStore(0),
		ledger.NewWriter(store),
		dedup.NewDetector(store),
		nfe.Entities{InternalOriginTaxID: originTaxID, InternalDestTaxID: destTaxID},
	)
	return svc, store
}

func importInvoice() *models.InvoiceRecord {
	return &models.InvoiceRecord{
		InvoiceNumber:   "12345",
		Reference:       "YWXS2025115",
		IssueDate:       "15/03/2025",
		OperationNature: "IMPORTACAO POR CONTA PROPRIA",
		EmitterTaxID:    originTaxID,
		EmitterName:     "LDL IMPORTACOES LTDA",
		RecipientTaxID:  destTaxID,
		RecipientName:   "POP COMERCIO LTDA",
		InvoiceValue:    decimal.RequireFromString("29091.89"),
	}
}

func saleInvoice(number string) *models.InvoiceRecord {
	return &models.InvoiceRecord{
		InvoiceNumber:   number,
		IssueDate:       "20/03/2025",
		OperationNature: "VENDA DE MERCADORIA",
		EmitterTaxID:    destTaxID,
		EmitterName:     "POP COMERCIO LTDA",
		RecipientTaxID:  "33333333000133",
		RecipientName:   "CLIENTE FINAL SA",
		InvoiceValue:    decimal.RequireFromString("5000.00"),
	}
}

func receiptFacts(values ...string) *models.ReceiptFacts {
	facts := &models.ReceiptFacts{
		Date:     "12/03/2025",
		Category: "AFRMM",
		RawText:  "comprovante",
	}
	for _, v := range values {
		facts.Values = append(facts.Values, decimal.RequireFromString(v))
	}
	return facts
}

func TestStageAndConfirmInvoice(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	match, err := svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeImport)
	require.NoError(t, err)
	assert.Nil(t, match)

	out, err := svc.ConfirmInvoice(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)
	assert.Equal(t, ledger.SectionImports, out.Section)

	rows, err := store.ReadAllRows(ctx, ledger.SectionImports)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "YWXS2025115", rows[0][0])
	assert.Equal(t, "12345", rows[0][1])

	_, err = svc.ConfirmInvoice(ctx, "maria", false)
	assert.ErrorIs(t, err, workflow.ErrNoPending, "confirmation consumes the staging")
}

func TestStageInvoiceRejectsUnpostableTypes(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeReturnShipment)
	assert.ErrorIs(t, err, workflow.ErrReturnShipment)

	_, err = svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeUnknown)
	assert.ErrorIs(t, err, workflow.ErrUnknownType)
}

func TestStageInvoiceReportsExistingDuplicate(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	store.Seed(ledger.SectionImports, [][]string{
		{"PI", "NF", "Data"},
		{"YWXS2025001", "12345", "01/02/2025"},
	})

	match, err := svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeImport)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, ledger.SectionImports, match.Section)
	assert.Equal(t, "01/02/2025", match.Date)

	out, err := svc.ConfirmInvoice(ctx, "maria", true)
	require.NoError(t, err, "a forced confirmation posts anyway")
	assert.True(t, out.Posted)
}

func TestConfirmInvoiceNeedsReference(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	rec := importInvoice()
	rec.Reference = models.UnknownReference
	_, err := svc.StageInvoice(ctx, "maria", rec, models.TypeImport)
	require.NoError(t, err)

	_, err = svc.ConfirmInvoice(ctx, "maria", false)
	assert.ErrorIs(t, err, workflow.ErrNoReference)

	token, err := svc.SetReference(ctx, "maria", "PI: YWXS2025115")
	require.NoError(t, err)
	assert.Equal(t, "YWXS2025115", token)

	out, err := svc.ConfirmInvoice(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)

	rows, err := store.ReadAllRows(ctx, ledger.SectionImports)
	require.NoError(t, err)
	assert.Equal(t, "YWXS2025115", rows[0][0])
}

func TestConfirmInvoiceStopsOnDuplicateUntilForced(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	_, err := svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeImport)
	require.NoError(t, err)

	// The same number lands in the ledger between staging and confirming.
	store.Seed(ledger.SectionSales, [][]string{
		{"PI", "NF", "Data"},
		{"YWXS2025009", "12345", "10/03/2025"},
	})

	out, err := svc.ConfirmInvoice(ctx, "maria", false)
	require.NoError(t, err)
	assert.False(t, out.Posted)
	require.NotNil(t, out.InvoiceDuplicate)
	assert.Equal(t, ledger.SectionSales, out.InvoiceDuplicate.Section)

	out, err = svc.ConfirmInvoice(ctx, "maria", true)
	require.NoError(t, err, "staging survives a refused confirmation")
	assert.True(t, out.Posted)
}

func TestSetReference(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.SetReference(ctx, "maria", "PI: YWXS2025115")
	assert.ErrorIs(t, err, workflow.ErrNoPending)

	_, err = svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeImport)
	require.NoError(t, err)

	_, err = svc.SetReference(ctx, "maria", "sem nenhuma referencia")
	assert.ErrorIs(t, err, workflow.ErrNoReference)
}

func TestStageAndConfirmBundle(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	res := &models.BundleResult{
		Invoices:   []*models.InvoiceRecord{saleInvoice("100"), saleInvoice("101")},
		TotalValue: decimal.RequireFromString("10000.00"),
	}

	require.NoError(t, svc.StageBundle(ctx, "maria", res, "YWXS2025115"))

	out, err := svc.ConfirmBundle(ctx, "maria")
	require.NoError(t, err)
	assert.True(t, out.Posted)
	assert.Equal(t, ledger.SectionSales, out.Section)

	rows, err := store.ReadAllRows(ctx, ledger.SectionSales)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "YWXS2025115", rows[0][0])
	assert.Equal(t, "ZIP com 2 NFs", rows[0][1])
	assert.Equal(t, "10000", rows[0][5])
}

func TestConfirmBundleWithoutReferenceDropsStaging(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	res := &models.BundleResult{
		Invoices:   []*models.InvoiceRecord{saleInvoice("100")},
		TotalValue: decimal.RequireFromString("5000.00"),
	}
	require.NoError(t, svc.StageBundle(ctx, "maria", res, ""))

	_, err := svc.ConfirmBundle(ctx, "maria")
	assert.ErrorIs(t, err, workflow.ErrNoReference)

	_, err = svc.ConfirmBundle(ctx, "maria")
	assert.ErrorIs(t, err, workflow.ErrNoPending, "the staging is dropped, the archive must be resubmitted")
}

func TestNonSaleBundleFailsAtConfirm(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	res := &models.BundleResult{
		Invoices:   []*models.InvoiceRecord{importInvoice()},
		TotalValue: decimal.RequireFromString("29091.89"),
	}
	require.NoError(t, svc.StageBundle(ctx, "maria", res, "YWXS2025115"))

	_, err := svc.ConfirmBundle(ctx, "maria")
	assert.ErrorIs(t, err, ledger.ErrNotPostable)
}

func TestStageEmptyBundle(t *testing.T) {
	svc, _ := newService()

	err := svc.StageBundle(context.Background(), "maria", &models.BundleResult{}, "YWXS2025115")
	assert.ErrorIs(t, err, ledger.ErrEmptyBundle)
}

func TestReceiptSingleValueFlow(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	require.NoError(t, svc.StageReceipt(ctx, "maria", receiptFacts("750.50"), "YWXS2025115"))

	out, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)
	assert.Equal(t, ledger.SectionExpenses, out.Section)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	row := rows[1]
	assert.Equal(t, "YWXS2025115", row[0])
	assert.Equal(t, "12/03/2025", row[1])
	assert.Equal(t, "AFRMM", row[2])
	assert.Equal(t, "750.5", row[3])
	assert.Equal(t, "AFRMM", row[4], "description repeats the category name")
	assert.Equal(t, "", row[5])
}

func TestReceiptMultiValueNeedsSelection(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	require.NoError(t, svc.StageReceipt(ctx, "maria", receiptFacts("1234.56", "10"), "YWXS2025115"))

	_, err := svc.ConfirmExpense(ctx, "maria", false)
	assert.ErrorIs(t, err, workflow.ErrNoValue)

	v, err := svc.SelectValue(ctx, "maria", 1)
	require.NoError(t, err)
	assert.Equal(t, "10", v.String())

	_, err = svc.SelectValue(ctx, "maria", 5)
	assert.Error(t, err, "index beyond the candidate list")

	out, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	assert.Equal(t, "10", rows[1][3])
}

func TestReceiptManualValueFlow(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	require.NoError(t, svc.StageReceipt(ctx, "maria", receiptFacts(), "YWXS2025115"))

	_, err := svc.SetManualValue(ctx, "maria", "1.234,56")
	assert.Error(t, err, "mixed separators are rejected, the caller re-prompts")

	v, err := svc.SetManualValue(ctx, "maria", "1234,56")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", v.String())

	out, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	assert.Equal(t, "1234.56", rows[1][3])
}

func TestReceiptOtherCategoryNeedsDescription(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	require.NoError(t, svc.StageReceipt(ctx, "maria", receiptFacts("90"), "YWXS2025115"))

	needsDescription, err := svc.SelectCategory(ctx, "maria", "Outros")
	require.NoError(t, err)
	assert.True(t, needsDescription)

	require.NoError(t, svc.SetCustomDescription(ctx, "maria", "Taxa de liberação no porto"))

	out, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	assert.Equal(t, "Outros", rows[1][2])
	assert.Equal(t, "Taxa de liberação no porto", rows[1][4])
}

func TestReceiptCategoryValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	facts := receiptFacts("90")
	facts.Category = "Despesa"
	require.NoError(t, svc.StageReceipt(ctx, "maria", facts, "YWXS2025115"))

	_, err := svc.SelectCategory(ctx, "maria", "Banana")
	assert.Error(t, err)

	_, err = svc.ConfirmExpense(ctx, "maria", false)
	assert.ErrorIs(t, err, workflow.ErrNoCategory, "the extracted guess is not a ledger category")

	needsDescription, err := svc.SelectCategory(ctx, "maria", "Armazenagem")
	require.NoError(t, err)
	assert.False(t, needsDescription)

	out, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)
	assert.True(t, out.Posted)
}

func TestConfirmExpenseStopsOnDuplicateUntilForced(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	store.Seed(ledger.SectionExpenses, [][]string{
		ledger.ExpenseHeader,
		{"YWXS2025115", "10/03/2025", "AFRMM", "750,50", "AFRMM", ""},
	})

	require.NoError(t, svc.StageReceipt(ctx, "maria", receiptFacts("750.50"), "YWXS2025115"))

	out, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)
	assert.False(t, out.Posted)
	require.NotNil(t, out.ExpenseDuplicate)
	assert.Equal(t, "10/03/2025", out.ExpenseDuplicate.Date)

	out, err = svc.ConfirmExpense(ctx, "maria", true)
	require.NoError(t, err)
	assert.True(t, out.Posted)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header, seeded row, forced posting")
}

func TestExpenseNoteIsWritten(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	require.NoError(t, svc.StageReceipt(ctx, "maria", receiptFacts("90"), "YWXS2025115"))
	require.NoError(t, svc.SetNote(ctx, "maria", "pago via PIX"))

	_, err := svc.ConfirmExpense(ctx, "maria", false)
	require.NoError(t, err)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	assert.Equal(t, "pago via PIX", rows[1][5])
}

func TestCancel(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	require.NoError(t, svc.Cancel(ctx, "maria"), "cancelling with nothing pending is fine")

	_, err := svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeImport)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, "maria"))

	_, err = svc.ConfirmInvoice(ctx, "maria", false)
	assert.ErrorIs(t, err, workflow.ErrNoPending)
}

func TestWrongKindOperations(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.StageInvoice(ctx, "maria", importInvoice(), models.TypeImport)
	require.NoError(t, err)

	_, err = svc.SelectCategory(ctx, "maria", "AFRMM")
	assert.ErrorIs(t, err, workflow.ErrWrongKind)

	_, err = svc.ConfirmExpense(ctx, "maria", false)
	assert.ErrorIs(t, err, workflow.ErrWrongKind)
}

func TestPostManualExpense(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	exp, section, err := svc.PostManualExpense(ctx, "ywxs2025115", decimal.RequireFromString("150.00"), "Pagamento frete nacional urgente")
	require.NoError(t, err)
	assert.Equal(t, ledger.SectionExpenses, section)
	assert.Equal(t, "Frete Nacional", exp.Category)

	rows, err := store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	row := rows[1]
	assert.Equal(t, "YWXS2025115", row[0])
	assert.Equal(t, normalize.Today(), row[1])
	assert.Equal(t, "Frete Nacional", row[2], "category derived from the description")
	assert.Equal(t, "150", row[3])
	assert.Equal(t, "Pagamento frete nacional urgente", row[4])

	_, _, err = svc.PostManualExpense(ctx, "YWXS2025115", decimal.RequireFromString("90.00"), "Taxa portuária avulsa")
	require.NoError(t, err)

	rows, err = store.ReadAllRows(ctx, ledger.SectionExpenses)
	require.NoError(t, err)
	assert.Equal(t, "Outros", rows[2][2], "no category keyword defaults to Outros")

	_, _, err = svc.PostManualExpense(ctx, "   ", decimal.RequireFromString("10.00"), "qualquer")
	assert.ErrorIs(t, err, workflow.ErrNoReference)
}
