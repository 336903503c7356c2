package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// FindByExternalID returns the transaction with its lines, or (nil, nil)
// when none matches.
func (r *TransactionRepository) FindByExternalID(ctx context.Context, tenantID, externalID, companyID string) (*models.Transaction, error) {
	var txn models.Transaction
	result := r.db.WithContext(ctx).
		Preload("Lines").
		Where("tenant_id = ? AND external_id = ? AND client_company_id = ?", tenantID, externalID, companyID).
		First(&txn)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find transaction: %w", result.Error)
	}
	return &txn, nil
}

// Create inserts the transaction and its lines
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	for i := range txn.Lines {
		txn.Lines[i].TransactionID = txn.ID
	}
	if err := r.db.WithContext(ctx).Omit("BankAccount").Create(txn).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// Replace updates the transaction in place and recomputes its lines in one
// transaction.
func (r *TransactionRepository) Replace(ctx context.Context, txn *models.Transaction, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Transaction{}).
			Where("id = ?", txn.ID).
			Updates(map[string]interface{}{
				"bank_account_id": txn.BankAccountID,
				"reference_no":    txn.ReferenceNo,
				"booking_date":    txn.BookingDate,
				"value_date":      txn.ValueDate,
				"description":     txn.Description,
				"amount":          txn.Amount,
				"currency":        txn.Currency,
				"balance_after":   txn.BalanceAfter,
				"status":          txn.Status,
				"updated_at":      now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update transaction: %w", result.Error)
		}

		if err := tx.Where("transaction_id = ?", txn.ID).Delete(&models.TransactionLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete transaction lines: %w", err)
		}
		if len(txn.Lines) == 0 {
			return nil
		}
		for i := range txn.Lines {
			txn.Lines[i].TransactionID = txn.ID
		}
		if err := tx.Create(&txn.Lines).Error; err != nil {
			return fmt.Errorf("failed to create transaction lines: %w", err)
		}
		return nil
	})
}

// ListPushCandidates returns finalized platform transactions not pushed
// since the given time, optionally limited to one client company.
func (r *TransactionRepository) ListPushCandidates(ctx context.Context, tenantID string, companyID *string, since time.Time, limit int) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Preload("BankAccount").
		Where("tenant_id = ? AND status = ? AND source = ?", tenantID, models.TransactionStatusFinalized, models.SourcePlatform).
		Where("pushed_at IS NULL OR pushed_at < ?", since)
	if companyID != nil {
		query = query.Where("client_company_id = ?", *companyID)
	}

	var txns []models.Transaction
	if err := query.Order("booking_date ASC").Limit(limit).Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to query push candidates: %w", err)
	}
	return txns, nil
}

// MarkPushed stamps pushed_at on the given transactions
func (r *TransactionRepository) MarkPushed(ctx context.Context, txnIDs []string, at time.Time) error {
	if len(txnIDs) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id IN ?", txnIDs).
		Updates(map[string]interface{}{
			"pushed_at":  at,
			"updated_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark transactions pushed: %w", result.Error)
	}
	return nil
}
