package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/models"
)

// BankLedgerCodePrefix is the chart-of-accounts group for bank balances.
const BankLedgerCodePrefix = "102."

type TransactionStore interface {
	FindByExternalID(ctx context.Context, tenantID, externalID, companyID string) (*models.Transaction, error)
	Create(ctx context.Context, txn *models.Transaction) error
	Replace(ctx context.Context, txn *models.Transaction, now time.Time) error
}

type BankAccountStore interface {
	FindByIBAN(ctx context.Context, tenantID, iban string) (*models.ClientCompanyBankAccount, error)
	Create(ctx context.Context, account *models.ClientCompanyBankAccount) error
	SetLedgerAccount(ctx context.Context, accountID, ledgerAccountID string) error
}

type LedgerAccountStore interface {
	FindByCode(ctx context.Context, tenantID, companyID, code string) (*models.LedgerAccount, error)
	Create(ctx context.Context, account *models.LedgerAccount) error
}

type TransactionImporter struct {
	resolver     *companyResolver
	transactions TransactionStore
	bankAccounts BankAccountStore
	ledger       LedgerAccountStore
	logger       *zap.Logger
}

func NewTransactionImporter(
	companies ClientCompanyStore,
	transactions TransactionStore,
	bankAccounts BankAccountStore,
	ledger LedgerAccountStore,
	logger *zap.Logger,
) *TransactionImporter {
	return &TransactionImporter{
		resolver:     &companyResolver{companies: companies},
		transactions: transactions,
		bankAccounts: bankAccounts,
		ledger:       ledger,
		logger:       logger.Named("transaction-importer"),
	}
}

// Import writes each record independently. Only context cancellation stops
// the batch early.
func (i *TransactionImporter) Import(ctx context.Context, scope Scope, records []connector.NormalizedBankTransaction) (Summary, error) {
	var summary Summary
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		o, err := i.importOne(ctx, scope, rec)
		if err != nil {
			i.logger.Warn("Skipping bank transaction",
				zap.String("tenant_id", scope.TenantID),
				zap.String("external_id", rec.ExternalID),
				zap.Error(err))
			summary.fail(rec.ExternalID, err)
			continue
		}
		summary.record(o)
	}
	return summary, nil
}

func (i *TransactionImporter) importOne(ctx context.Context, scope Scope, rec connector.NormalizedBankTransaction) (outcome, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid bank transaction: %w", err)
	}

	account, err := i.bankAccount(ctx, scope, rec)
	if err != nil {
		return 0, fmt.Errorf("resolve bank account: %w", err)
	}
	ledgerAccountID, err := i.ledgerAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("resolve ledger account: %w", err)
	}

	existing, err := i.transactions.FindByExternalID(ctx, scope.TenantID, rec.ExternalID, account.ClientCompanyID)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		txn := &models.Transaction{
			ID:              newID(),
			TenantID:        scope.TenantID,
			ClientCompanyID: account.ClientCompanyID,
			ExternalID:      &rec.ExternalID,
			Source:          models.SourceIntegration,
			CreatedAt:       scope.stamp(),
			UpdatedAt:       scope.stamp(),
		}
		applyTransaction(txn, rec, account, ledgerAccountID)
		if err := i.transactions.Create(ctx, txn); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	desired := *existing
	applyTransaction(&desired, rec, account, ledgerAccountID)
	if transactionUnchanged(existing, &desired) {
		return outcomeUnchanged, nil
	}
	if err := i.transactions.Replace(ctx, &desired, scope.stamp()); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

func (i *TransactionImporter) bankAccount(ctx context.Context, scope Scope, rec connector.NormalizedBankTransaction) (*models.ClientCompanyBankAccount, error) {
	iban := NormalizeIBAN(rec.AccountIdentifier)
	account, err := i.bankAccounts.FindByIBAN(ctx, scope.TenantID, iban)
	if err != nil || account != nil {
		return account, err
	}

	company, err := i.resolver.resolveForBank(ctx, scope)
	if err != nil {
		return nil, err
	}
	account = &models.ClientCompanyBankAccount{
		TenantID:        scope.TenantID,
		ClientCompanyID: company.ID,
		IBAN:            iban,
		BankName:        InferBankName(iban),
		Currency:        currency(rec.Currency, DefaultCurrency),
	}
	if err := i.bankAccounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ledgerAccount returns the ledger account backing a bank account, creating
// it under a code derived from the bank account id.
func (i *TransactionImporter) ledgerAccount(ctx context.Context, account *models.ClientCompanyBankAccount) (string, error) {
	if account.LedgerAccountID != nil {
		return *account.LedgerAccountID, nil
	}

	code := LedgerCodeFor(account.ID)
	la, err := i.ledger.FindByCode(ctx, account.TenantID, account.ClientCompanyID, code)
	if err != nil {
		return "", err
	}
	if la == nil {
		la = &models.LedgerAccount{
			TenantID:        account.TenantID,
			ClientCompanyID: account.ClientCompanyID,
			Code:            code,
			Name:            fmt.Sprintf("%s %s", account.BankName, ibanTail(account.IBAN)),
			Type:            models.LedgerAccountTypeAsset,
		}
		if err := i.ledger.Create(ctx, la); err != nil {
			return "", err
		}
	}

	if err := i.bankAccounts.SetLedgerAccount(ctx, account.ID, la.ID); err != nil {
		return "", err
	}
	account.LedgerAccountID = &la.ID
	return la.ID, nil
}

// LedgerCodeFor is the deterministic ledger code of a bank account.
func LedgerCodeFor(bankAccountID string) string {
	id := strings.ToUpper(strings.ReplaceAll(bankAccountID, "-", ""))
	if len(id) > 8 {
		id = id[:8]
	}
	return BankLedgerCodePrefix + id
}

func ibanTail(iban string) string {
	if len(iban) <= 4 {
		return iban
	}
	return "..." + iban[len(iban)-4:]
}

func applyTransaction(txn *models.Transaction, rec connector.NormalizedBankTransaction, account *models.ClientCompanyBankAccount, ledgerAccountID string) {
	txn.BankAccountID = &account.ID
	txn.ReferenceNo = rec.ReferenceNo
	txn.BookingDate = timestamp(rec.BookingDate)
	txn.ValueDate = timestampPtr(rec.ValueDate)
	txn.Description = rec.Description
	txn.Amount = money(rec.Amount)
	txn.Currency = currency(rec.Currency, account.Currency)
	txn.BalanceAfter = moneyPtr(rec.BalanceAfter)
	txn.Status = models.TransactionStatusImported

	debit, credit := SplitAmount(txn.Amount)
	txn.Lines = []models.TransactionLine{{
		ID:              childID(txn.ID, 1),
		TransactionID:   txn.ID,
		LedgerAccountID: ledgerAccountID,
		Description:     rec.Description,
		DebitAmount:     debit,
		CreditAmount:    credit,
	}}
}

// SplitAmount maps a signed bank amount onto the bank ledger line: money in
// (non-negative) is a credit, money out is a debit of the absolute value.
func SplitAmount(amount decimal.Decimal) (debit, credit decimal.Decimal) {
	if amount.IsNegative() {
		return amount.Abs(), decimal.Zero
	}
	return decimal.Zero, amount
}

func transactionUnchanged(a, b *models.Transaction) bool {
	if !stringPtrEqual(a.BankAccountID, b.BankAccountID) ||
		a.ReferenceNo != b.ReferenceNo ||
		!a.BookingDate.Equal(b.BookingDate) ||
		!timePtrEqual(a.ValueDate, b.ValueDate) ||
		a.Description != b.Description ||
		!a.Amount.Equal(b.Amount) ||
		a.Currency != b.Currency ||
		!decimalPtrEqual(a.BalanceAfter, b.BalanceAfter) ||
		a.Status != b.Status {
		return false
	}
	if len(a.Lines) != len(b.Lines) {
		return false
	}
	for n := range b.Lines {
		old, l := a.Lines[n], b.Lines[n]
		if old.ID != l.ID ||
			old.LedgerAccountID != l.LedgerAccountID ||
			old.Description != l.Description ||
			!old.DebitAmount.Equal(l.DebitAmount) ||
			!old.CreditAmount.Equal(l.CreditAmount) {
			return false
		}
	}
	return true
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
