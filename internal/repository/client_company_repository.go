package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrClientCompanyNotFound = errors.New("client company not found")

// ClientCompanyRepository looks companies up within one tenant. The Find
// methods return (nil, nil) when nothing matches.
type ClientCompanyRepository struct {
	db *gorm.DB
}

func NewClientCompanyRepository(db *gorm.DB) *ClientCompanyRepository {
	return &ClientCompanyRepository{db: db}
}

func (r *ClientCompanyRepository) GetByID(ctx context.Context, tenantID, companyID string) (*models.ClientCompany, error) {
	var company models.ClientCompany
	result := r.db.WithContext(ctx).First(&company, "tenant_id = ? AND id = ?", tenantID, companyID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrClientCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get client company: %w", result.Error)
	}
	return &company, nil
}

func (r *ClientCompanyRepository) FindByTaxNumber(ctx context.Context, tenantID, taxNumber string) (*models.ClientCompany, error) {
	return r.findOne(ctx, r.db.Where("tenant_id = ? AND tax_number = ?", tenantID, taxNumber))
}

// FindByName matches the name case-insensitively
func (r *ClientCompanyRepository) FindByName(ctx context.Context, tenantID, name string) (*models.ClientCompany, error) {
	return r.findOne(ctx, r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name))
}

// FindOldestActive returns the tenant's first active company
func (r *ClientCompanyRepository) FindOldestActive(ctx context.Context, tenantID string) (*models.ClientCompany, error) {
	return r.findOne(ctx, r.db.Where("tenant_id = ? AND is_active = ?", tenantID, true))
}

func (r *ClientCompanyRepository) Create(ctx context.Context, company *models.ClientCompany) error {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
		return fmt.Errorf("failed to create client company: %w", err)
	}
	return nil
}

func (r *ClientCompanyRepository) findOne(ctx context.Context, query *gorm.DB) (*models.ClientCompany, error) {
	var companies []models.ClientCompany
	result := query.WithContext(ctx).Order("created_at ASC").Limit(1).Find(&companies)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query client company: %w", result.Error)
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}
