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

const DefaultCurrency = "TRY"

type InvoiceStore interface {
	FindByExternalID(ctx context.Context, tenantID, externalID, companyID string) (*models.Invoice, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	Replace(ctx context.Context, invoice *models.Invoice, now time.Time) error
}

type InvoiceImporter struct {
	resolver *companyResolver
	invoices InvoiceStore
	logger   *zap.Logger
}

func NewInvoiceImporter(companies ClientCompanyStore, invoices InvoiceStore, logger *zap.Logger) *InvoiceImporter {
	return &InvoiceImporter{
		resolver: &companyResolver{companies: companies},
		invoices: invoices,
		logger:   logger.Named("invoice-importer"),
	}
}

// Import writes each record independently. Only context cancellation stops
// the batch early.
func (i *InvoiceImporter) Import(ctx context.Context, scope Scope, records []connector.NormalizedInvoice) (Summary, error) {
	var summary Summary
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		o, err := i.importOne(ctx, scope, rec)
		if err != nil {
			i.logger.Warn("Skipping invoice",
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

func (i *InvoiceImporter) importOne(ctx context.Context, scope Scope, rec connector.NormalizedInvoice) (outcome, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid invoice: %w", err)
	}

	company, err := i.resolver.resolve(ctx, scope, companyHint{
		Name:       rec.ClientCompanyName,
		TaxNumber:  rec.ClientCompanyTaxNumber,
		ExternalID: rec.ClientCompanyExternalID,
	})
	if err != nil {
		return 0, fmt.Errorf("resolve client company: %w", err)
	}

	existing, err := i.invoices.FindByExternalID(ctx, scope.TenantID, rec.ExternalID, company.ID)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		invoice := &models.Invoice{
			TenantID:        scope.TenantID,
			ClientCompanyID: company.ID,
			ExternalID:      &rec.ExternalID,
			Source:          models.SourceIntegration,
			CreatedAt:       scope.stamp(),
			UpdatedAt:       scope.stamp(),
		}
		applyInvoice(invoice, rec)
		if err := buildInvoiceLines(invoice, rec.Lines, true); err != nil {
			return 0, err
		}
		if err := i.invoices.Create(ctx, invoice); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	desired := *existing
	applyInvoice(&desired, rec)
	if err := buildInvoiceLines(&desired, rec.Lines, false); err != nil {
		return 0, err
	}
	if invoiceUnchanged(existing, &desired) {
		return outcomeUnchanged, nil
	}
	if err := i.invoices.Replace(ctx, &desired, scope.stamp()); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

func applyInvoice(inv *models.Invoice, rec connector.NormalizedInvoice) {
	inv.InvoiceNumber = rec.InvoiceNumber
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = rec.ExternalID
	}
	inv.Type = models.InvoiceType(rec.Type)
	if inv.Type == "" {
		inv.Type = models.InvoiceSale
	}
	inv.IssueDate = timestamp(rec.IssueDate)
	inv.DueDate = timestampPtr(rec.DueDate)
	inv.TotalAmount = money(rec.TotalAmount)
	inv.TaxAmount = money(rec.TaxAmount)
	if rec.NetAmount != nil {
		inv.NetAmount = money(*rec.NetAmount)
	} else {
		inv.NetAmount = inv.TotalAmount.Sub(inv.TaxAmount)
	}
	inv.Currency = currency(rec.Currency, DefaultCurrency)
	inv.CounterpartyName = rec.CounterpartyName
	inv.CounterpartyTaxNumber = rec.CounterpartyTaxNumber
	inv.Status = models.InvoiceStatusImported
}

// buildInvoiceLines replaces inv.Lines. Ids are derived from the invoice id
// and line number; a new invoice gets its id here so the lines can refer to it.
func buildInvoiceLines(inv *models.Invoice, lines []connector.NormalizedInvoiceLine, isNew bool) error {
	if isNew && inv.ID == "" {
		inv.ID = newID()
	}

	seen := make(map[int]bool, len(lines))
	out := make([]models.InvoiceLine, 0, len(lines))
	for _, l := range lines {
		if seen[l.LineNumber] {
			return fmt.Errorf("duplicate line number %d", l.LineNumber)
		}
		seen[l.LineNumber] = true

		out = append(out, models.InvoiceLine{
			ID:          childID(inv.ID, l.LineNumber),
			InvoiceID:   inv.ID,
			LineNumber:  l.LineNumber,
			Description: l.Description,
			Quantity:    l.Quantity.Round(quantityScale),
			UnitPrice:   l.UnitPrice.Round(quantityScale),
			LineTotal:   money(l.LineTotal),
			VatRate:     money(l.VatRate),
			VatAmount:   money(l.VatAmount),
		})
	}
	inv.Lines = out
	return nil
}

func invoiceUnchanged(a, b *models.Invoice) bool {
	if a.InvoiceNumber != b.InvoiceNumber ||
		a.Type != b.Type ||
		!a.IssueDate.Equal(b.IssueDate) ||
		!timePtrEqual(a.DueDate, b.DueDate) ||
		!a.TotalAmount.Equal(b.TotalAmount) ||
		!a.TaxAmount.Equal(b.TaxAmount) ||
		!a.NetAmount.Equal(b.NetAmount) ||
		a.Currency != b.Currency ||
		a.CounterpartyName != b.CounterpartyName ||
		a.CounterpartyTaxNumber != b.CounterpartyTaxNumber ||
		a.Status != b.Status {
		return false
	}
	if len(a.Lines) != len(b.Lines) {
		return false
	}
	byNumber := make(map[int]models.InvoiceLine, len(a.Lines))
	for _, l := range a.Lines {
		byNumber[l.LineNumber] = l
	}
	for _, l := range b.Lines {
		old, ok := byNumber[l.LineNumber]
		if !ok ||
			old.ID != l.ID ||
			old.Description != l.Description ||
			!old.Quantity.Equal(l.Quantity) ||
			!old.UnitPrice.Equal(l.UnitPrice) ||
			!old.LineTotal.Equal(l.LineTotal) ||
			!old.VatRate.Equal(l.VatRate) ||
			!old.VatAmount.Equal(l.VatAmount) {
			return false
		}
	}
	return true
}

func currency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	return code
}

// timestamp normalizes to the precision the store keeps.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func timestampPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := timestamp(*t)
	return &v
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
