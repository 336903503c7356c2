package importer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/vipul43/ledger-sync-worker/internal/models"
)

const (
	DefaultCompanyName     = "Imported client"
	PlaceholderBankCompany = "Bank import placeholder"
)

// companyHint is what an external record tells us about its owner.
type companyHint struct {
	Name       string
	TaxNumber  string
	ExternalID string
}

type companyResolver struct {
	companies ClientCompanyStore
}

// resolve finds the owning company by tax number, then by name, then falls
// back to the integration's company, and creates one as a last resort.
func (r *companyResolver) resolve(ctx context.Context, scope Scope, hint companyHint) (*models.ClientCompany, error) {
	taxNumber := strings.TrimSpace(hint.TaxNumber)
	name := strings.TrimSpace(hint.Name)

	if taxNumber != "" {
		c, err := r.companies.FindByTaxNumber(ctx, scope.TenantID, taxNumber)
		if err != nil || c != nil {
			return c, err
		}
	}
	if name != "" {
		c, err := r.companies.FindByName(ctx, scope.TenantID, name)
		if err != nil || c != nil {
			return c, err
		}
	}
	if scope.ClientCompanyID != nil {
		return r.companies.GetByID(ctx, scope.TenantID, *scope.ClientCompanyID)
	}

	if name == "" {
		name = DefaultCompanyName
		c, err := r.companies.FindByName(ctx, scope.TenantID, name)
		if err != nil || c != nil {
			return c, err
		}
	}
	return r.create(ctx, scope.TenantID, name, taxNumber, hint.ExternalID)
}

// resolveForBank picks the company a newly seen bank account belongs to:
// the integration's company, the tenant's oldest active company, or a
// shared placeholder.
func (r *companyResolver) resolveForBank(ctx context.Context, scope Scope) (*models.ClientCompany, error) {
	if scope.ClientCompanyID != nil {
		return r.companies.GetByID(ctx, scope.TenantID, *scope.ClientCompanyID)
	}
	c, err := r.companies.FindOldestActive(ctx, scope.TenantID)
	if err != nil || c != nil {
		return c, err
	}
	c, err = r.companies.FindByName(ctx, scope.TenantID, PlaceholderBankCompany)
	if err != nil || c != nil {
		return c, err
	}
	return r.create(ctx, scope.TenantID, PlaceholderBankCompany, "", "")
}

func (r *companyResolver) create(ctx context.Context, tenantID, name, taxNumber, externalID string) (*models.ClientCompany, error) {
	if taxNumber == "" {
		taxNumber = placeholderTaxNumber(tenantID, name)
	}
	company := &models.ClientCompany{
		TenantID:  tenantID,
		Name:      name,
		TaxNumber: taxNumber,
		IsActive:  true,
	}
	if externalID != "" {
		company.ExternalID = &externalID
	}
	if err := r.companies.Create(ctx, company); err != nil {
		return nil, err
	}
	return company, nil
}

// placeholderTaxNumber is stable per (tenant, name) so repeated imports do
// not mint new identities.
func placeholderTaxNumber(tenantID, name string) string {
	sum := sha1.Sum([]byte(tenantID + "|" + strings.ToLower(name)))
	return "TMP-" + strings.ToUpper(hex.EncodeToString(sum[:4]))
}
