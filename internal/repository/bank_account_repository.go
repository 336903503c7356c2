package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"gorm.io/gorm"
)

type BankAccountRepository struct {
	db *gorm.DB
}

func NewBankAccountRepository(db *gorm.DB) *BankAccountRepository {
	return &BankAccountRepository{db: db}
}

// FindByIBAN returns the tenant's bank account for the IBAN, or (nil, nil)
func (r *BankAccountRepository) FindByIBAN(ctx context.Context, tenantID, iban string) (*models.ClientCompanyBankAccount, error) {
	var accounts []models.ClientCompanyBankAccount
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND iban = ?", tenantID, iban).
		Order("created_at ASC").
		Limit(1).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query bank account: %w", result.Error)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (r *BankAccountRepository) Create(ctx context.Context, account *models.ClientCompanyBankAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create bank account: %w", err)
	}
	return nil
}

// SetLedgerAccount links a bank account to its ledger account
func (r *BankAccountRepository) SetLedgerAccount(ctx context.Context, accountID, ledgerAccountID string) error {
	result := r.db.WithContext(ctx).Model(&models.ClientCompanyBankAccount{}).
		Where("id = ?", accountID).
		Update("ledger_account_id", ledgerAccountID)
	if result.Error != nil {
		return fmt.Errorf("failed to link ledger account: %w", result.Error)
	}
	return nil
}

type LedgerAccountRepository struct {
	db *gorm.DB
}

func NewLedgerAccountRepository(db *gorm.DB) *LedgerAccountRepository {
	return &LedgerAccountRepository{db: db}
}

// FindByCode returns the company's ledger account with the code, or (nil, nil)
func (r *LedgerAccountRepository) FindByCode(ctx context.Context, tenantID, companyID, code string) (*models.LedgerAccount, error) {
	var accounts []models.LedgerAccount
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND client_company_id = ? AND code = ?", tenantID, companyID, code).
		Limit(1).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query ledger account: %w", result.Error)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (r *LedgerAccountRepository) Create(ctx context.Context, account *models.LedgerAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create ledger account: %w", err)
	}
	return nil
}
