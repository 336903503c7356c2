package importer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"github.com/vipul43/ledger-sync-worker/internal/repository"
	"github.com/vipul43/ledger-sync-worker/internal/testutil"
)

const tenant = "tenant-1"

func newInvoiceImporter(db *gorm.DB) *InvoiceImporter {
	return NewInvoiceImporter(
		repository.NewClientCompanyRepository(db),
		repository.NewInvoiceRepository(db),
		zap.NewNop(),
	)
}

func newTransactionImporter(db *gorm.DB) *TransactionImporter {
	return NewTransactionImporter(
		repository.NewClientCompanyRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewBankAccountRepository(db),
		repository.NewLedgerAccountRepository(db),
		zap.NewNop(),
	)
}

func sampleInvoices() []connector.NormalizedInvoice {
	issued := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	return []connector.NormalizedInvoice{
		{
			ExternalID:             "INV-1",
			InvoiceNumber:          "2026-0001",
			ClientCompanyName:      "Acme Ltd",
			ClientCompanyTaxNumber: "1234567890",
			IssueDate:              issued,
			TotalAmount:            decimal.RequireFromString("118.00"),
			TaxAmount:              decimal.RequireFromString("18.00"),
			Currency:               "try",
			Type:                   "sale",
			Lines: []connector.NormalizedInvoiceLine{
				{LineNumber: 1, Description: "Consulting", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50), LineTotal: decimal.NewFromInt(100), VatRate: decimal.NewFromInt(18), VatAmount: decimal.NewFromInt(18)},
			},
		},
		{
			ExternalID:             "INV-2",
			ClientCompanyTaxNumber: "1234567890",
			IssueDate:              issued,
			TotalAmount:            decimal.RequireFromString("59.90"),
			TaxAmount:              decimal.RequireFromString("9.90"),
			Type:                   "purchase",
			Lines: []connector.NormalizedInvoiceLine{
				{LineNumber: 1, Description: "Paper", LineTotal: decimal.NewFromInt(20)},
				{LineNumber: 2, Description: "Toner", LineTotal: decimal.NewFromInt(30)},
			},
		},
	}
}

func TestInvoiceImporter_IsIdempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	imp := newInvoiceImporter(db)
	ctx := context.Background()
	scope := Scope{TenantID: tenant}

	first, err := imp.Import(ctx, scope, sampleInvoices())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Empty(t, first.Errors)

	var linesBefore []models.InvoiceLine
	require.NoError(t, db.Order("id").Find(&linesBefore).Error)

	second, err := imp.Import(ctx, scope, sampleInvoices())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)

	var linesAfter []models.InvoiceLine
	require.NoError(t, db.Order("id").Find(&linesAfter).Error)
	require.Len(t, linesAfter, 3)
	assert.Equal(t, lineIDs(linesBefore), lineIDs(linesAfter))

	var companies int64
	require.NoError(t, db.Model(&models.ClientCompany{}).Count(&companies).Error)
	assert.Equal(t, int64(1), companies, "both invoices resolve to the same company by tax number")

	var inv models.Invoice
	require.NoError(t, db.First(&inv, "external_id = ?", "INV-1").Error)
	assert.Equal(t, "TRY", inv.Currency)
	assert.Equal(t, models.InvoiceStatusImported, inv.Status)
	assert.Equal(t, models.SourceIntegration, inv.Source)
	assert.True(t, inv.NetAmount.Equal(decimal.NewFromInt(100)))
}

func TestInvoiceImporter_CorrectionReplacesLines(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	imp := newInvoiceImporter(db)
	ctx := context.Background()
	firstSync := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	scope := Scope{TenantID: tenant, SyncedAt: firstSync}

	_, err := imp.Import(ctx, scope, sampleInvoices())
	require.NoError(t, err)

	scope.SyncedAt = firstSync.Add(24 * time.Hour)
	corrected := sampleInvoices()[1:]
	corrected[0].TotalAmount = decimal.RequireFromString("35.40")
	corrected[0].TaxAmount = decimal.RequireFromString("5.40")
	corrected[0].Lines = []connector.NormalizedInvoiceLine{{LineNumber: 1, Description: "Toner", LineTotal: decimal.NewFromInt(30)}}

	summary, err := imp.Import(ctx, scope, corrected)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	var inv models.Invoice
	require.NoError(t, db.Preload("Lines").First(&inv, "external_id = ?", "INV-2").Error)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "Toner", inv.Lines[0].Description)
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("35.40")))
	assert.True(t, inv.CreatedAt.Equal(firstSync))
	assert.True(t, inv.UpdatedAt.Equal(scope.SyncedAt))
}

func TestInvoiceImporter_BadRecordDoesNotAbortBatch(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	imp := newInvoiceImporter(db)

	records := sampleInvoices()
	bad := records[0]
	bad.ExternalID = ""
	dup := records[1]
	dup.ExternalID = "INV-DUP"
	dup.Lines = []connector.NormalizedInvoiceLine{{LineNumber: 1}, {LineNumber: 1}}

	summary, err := imp.Import(context.Background(), Scope{TenantID: tenant}, []connector.NormalizedInvoice{bad, dup, records[1]})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 2, summary.Skipped)
	require.Len(t, summary.Errors, 2)
	assert.Equal(t, "INV-DUP", summary.Errors[1].ExternalID)
	assert.Contains(t, summary.Errors[1].Error, "duplicate line number")
}

func TestInvoiceImporter_CompanyResolutionOrder(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	companies := repository.NewClientCompanyRepository(db)
	imp := newInvoiceImporter(db)
	ctx := context.Background()

	bound := &models.ClientCompany{TenantID: tenant, Name: "Bound Co", TaxNumber: "999", IsActive: true}
	require.NoError(t, companies.Create(ctx, bound))
	named := &models.ClientCompany{TenantID: tenant, Name: "Globex", TaxNumber: "555", IsActive: true}
	require.NoError(t, companies.Create(ctx, named))

	issued := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	records := []connector.NormalizedInvoice{
		{ExternalID: "by-name", ClientCompanyName: "GLOBEX", IssueDate: issued},
		{ExternalID: "by-scope", IssueDate: issued},
	}
	_, err := imp.Import(ctx, Scope{TenantID: tenant, ClientCompanyID: &bound.ID}, records)
	require.NoError(t, err)

	var byName, byScope models.Invoice
	require.NoError(t, db.First(&byName, "external_id = ?", "by-name").Error)
	require.NoError(t, db.First(&byScope, "external_id = ?", "by-scope").Error)
	assert.Equal(t, named.ID, byName.ClientCompanyID)
	assert.Equal(t, bound.ID, byScope.ClientCompanyID)

	// Without a bound company a placeholder is created once and reused.
	_, err = imp.Import(ctx, Scope{TenantID: tenant}, []connector.NormalizedInvoice{
		{ExternalID: "orphan-1", IssueDate: issued},
		{ExternalID: "orphan-2", IssueDate: issued},
	})
	require.NoError(t, err)

	var placeholder []models.ClientCompany
	require.NoError(t, db.Where("name = ?", DefaultCompanyName).Find(&placeholder).Error)
	require.Len(t, placeholder, 1)
	assert.Equal(t, placeholderTaxNumber(tenant, DefaultCompanyName), placeholder[0].TaxNumber)
	assert.Regexp(t, `^TMP-[0-9A-F]{8}$`, placeholder[0].TaxNumber)
}

func bankRecord(externalID, amount string) connector.NormalizedBankTransaction {
	return connector.NormalizedBankTransaction{
		ExternalID:        externalID,
		AccountIdentifier: "TR33 0006 4000 0011 2345 6789 01",
		BookingDate:       time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Description:       "Transfer " + externalID,
		Amount:            decimal.RequireFromString(amount),
	}
}

func TestTransactionImporter_DebitCreditSplit(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	imp := newTransactionImporter(db)

	summary, err := imp.Import(context.Background(), Scope{TenantID: tenant}, []connector.NormalizedBankTransaction{
		bankRecord("TX-OUT", "-500"),
		bankRecord("TX-IN", "500"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)

	out := loadTransaction(t, db, "TX-OUT")
	require.Len(t, out.Lines, 1)
	assert.True(t, out.Lines[0].DebitAmount.Equal(decimal.NewFromInt(500)))
	assert.True(t, out.Lines[0].CreditAmount.IsZero())

	in := loadTransaction(t, db, "TX-IN")
	require.Len(t, in.Lines, 1)
	assert.True(t, in.Lines[0].DebitAmount.IsZero())
	assert.True(t, in.Lines[0].CreditAmount.Equal(decimal.NewFromInt(500)))

	assert.Equal(t, out.Lines[0].LedgerAccountID, in.Lines[0].LedgerAccountID, "same bank account, same ledger line")
}

func TestTransactionImporter_BankAccountAndLedgerAreStable(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	imp := newTransactionImporter(db)
	ctx := context.Background()
	scope := Scope{TenantID: tenant}

	_, err := imp.Import(ctx, scope, []connector.NormalizedBankTransaction{bankRecord("TX-1", "12.50")})
	require.NoError(t, err)

	var accounts []models.ClientCompanyBankAccount
	require.NoError(t, db.Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.Equal(t, "TR330006400000112345678901", accounts[0].IBAN)
	assert.Equal(t, "İş Bankası", accounts[0].BankName)
	assert.Equal(t, "TRY", accounts[0].Currency)
	require.NotNil(t, accounts[0].LedgerAccountID)

	var ledger models.LedgerAccount
	require.NoError(t, db.First(&ledger, "id = ?", *accounts[0].LedgerAccountID).Error)
	assert.Equal(t, LedgerCodeFor(accounts[0].ID), ledger.Code)

	var company models.ClientCompany
	require.NoError(t, db.First(&company, "id = ?", accounts[0].ClientCompanyID).Error)
	assert.Equal(t, PlaceholderBankCompany, company.Name)

	again, err := imp.Import(ctx, scope, []connector.NormalizedBankTransaction{bankRecord("TX-1", "12.50"), bankRecord("TX-2", "-3")})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Created)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, 0, again.Updated)

	var ledgerCount, accountCount int64
	require.NoError(t, db.Model(&models.LedgerAccount{}).Count(&ledgerCount).Error)
	require.NoError(t, db.Model(&models.ClientCompanyBankAccount{}).Count(&accountCount).Error)
	assert.Equal(t, int64(1), ledgerCount)
	assert.Equal(t, int64(1), accountCount)

	changed := bankRecord("TX-1", "-12.50")
	updated, err := imp.Import(ctx, scope, []connector.NormalizedBankTransaction{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Updated)

	tx := loadTransaction(t, db, "TX-1")
	require.Len(t, tx.Lines, 1)
	assert.True(t, tx.Lines[0].DebitAmount.Equal(decimal.RequireFromString("12.50")))
}

func TestTransactionImporter_PrefersOldestActiveCompany(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	companies := repository.NewClientCompanyRepository(db)
	ctx := context.Background()

	inactive := &models.ClientCompany{ID: "cc-dormant", TenantID: tenant, Name: "Dormant", TaxNumber: "1", IsActive: false}
	require.NoError(t, db.Create(inactive).Error)
	active := &models.ClientCompany{TenantID: tenant, Name: "Active", TaxNumber: "2", IsActive: true}
	require.NoError(t, companies.Create(ctx, active))

	_, err := newTransactionImporter(db).Import(ctx, Scope{TenantID: tenant}, []connector.NormalizedBankTransaction{bankRecord("TX-1", "1")})
	require.NoError(t, err)

	tx := loadTransaction(t, db, "TX-1")
	assert.Equal(t, active.ID, tx.ClientCompanyID)
}

func TestInferBankName(t *testing.T) {
	assert.Equal(t, "Ziraat Bankası", InferBankName("TR12 0001 0000 0000 0000 0000 00"))
	assert.Equal(t, "Bank (TR)", InferBankName("TR120009900000000000000000"))
	assert.Equal(t, "Bank (DE)", InferBankName("de89370400440532013000"))
	assert.Equal(t, "Bank", InferBankName("12345"))
}

func TestSummary_TruncatedErrors(t *testing.T) {
	var s Summary
	for i := 0; i < 15; i++ {
		s.fail("x", assert.AnError)
	}
	assert.Len(t, s.TruncatedErrors(10), 10)
	assert.Equal(t, 15, s.Skipped)
	assert.Equal(t, 15, s.Total())
}

func loadTransaction(t *testing.T, db *gorm.DB, externalID string) models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, db.Preload("Lines").First(&txn, "external_id = ?", externalID).Error)
	return txn
}

func lineIDs(lines []models.InvoiceLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	return ids
}
