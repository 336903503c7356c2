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

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func orderedInvoiceLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC")
}

// FindByExternalID returns the invoice with its lines, or (nil, nil) when the
// external record has not been imported for this company yet.
func (r *InvoiceRepository) FindByExternalID(ctx context.Context, tenantID, externalID, companyID string) (*models.Invoice, error) {
	var invoice models.Invoice
	result := r.db.WithContext(ctx).
		Preload("Lines", orderedInvoiceLines).
		Where("tenant_id = ? AND external_id = ? AND client_company_id = ?", tenantID, externalID, companyID).
		First(&invoice)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find invoice: %w", result.Error)
	}
	return &invoice, nil
}

// Create inserts the invoice and its lines
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	for i := range invoice.Lines {
		invoice.Lines[i].InvoiceID = invoice.ID
	}
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Replace overwrites the invoice's mutable fields and swaps its line set in
// one transaction. Lines are deleted and recreated, never merged.
func (r *InvoiceRepository) Replace(ctx context.Context, invoice *models.Invoice, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]interface{}{
				"invoice_number":          invoice.InvoiceNumber,
				"type":                    invoice.Type,
				"issue_date":              invoice.IssueDate,
				"due_date":                invoice.DueDate,
				"total_amount":            invoice.TotalAmount,
				"tax_amount":              invoice.TaxAmount,
				"net_amount":              invoice.NetAmount,
				"currency":                invoice.Currency,
				"counterparty_name":       invoice.CounterpartyName,
				"counterparty_tax_number": invoice.CounterpartyTaxNumber,
				"status":                  invoice.Status,
				"updated_at":              now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update invoice: %w", result.Error)
		}

		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete invoice lines: %w", err)
		}
		if len(invoice.Lines) == 0 {
			return nil
		}
		for i := range invoice.Lines {
			invoice.Lines[i].InvoiceID = invoice.ID
		}
		if err := tx.Create(&invoice.Lines).Error; err != nil {
			return fmt.Errorf("failed to create invoice lines: %w", err)
		}
		return nil
	})
}

// ListPushCandidates returns finalized platform invoices not pushed since
// the given time, optionally limited to one client company.
func (r *InvoiceRepository) ListPushCandidates(ctx context.Context, tenantID string, companyID *string, since time.Time, limit int) ([]models.Invoice, error) {
	query := r.db.WithContext(ctx).
		Preload("Lines", orderedInvoiceLines).
		Preload("ClientCompany").
		Where("tenant_id = ? AND status = ? AND source = ?", tenantID, models.InvoiceStatusFinalized, models.SourcePlatform).
		Where("pushed_at IS NULL OR pushed_at < ?", since)
	if companyID != nil {
		query = query.Where("client_company_id = ?", *companyID)
	}

	var invoices []models.Invoice
	if err := query.Order("issue_date ASC").Limit(limit).Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to query push candidates: %w", err)
	}
	return invoices, nil
}

// MarkPushed stamps pushed_at on the given invoices
func (r *InvoiceRepository) MarkPushed(ctx context.Context, invoiceIDs []string, at time.Time) error {
	if len(invoiceIDs) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id IN ?", invoiceIDs).
		Updates(map[string]interface{}{
			"pushed_at":  at,
			"updated_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark invoices pushed: %w", result.Error)
	}
	return nil
}
