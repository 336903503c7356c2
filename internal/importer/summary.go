// Package importer turns normalized connector records into idempotent
// writes against the tenant's ledger tables.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vipul43/ledger-sync-worker/internal/models"
)

// RecordError is a per-record failure. It never aborts the batch.
type RecordError struct {
	ExternalID string `json:"externalId"`
	Error      string `json:"error"`
}

// Summary is the outcome of one import batch. Failed and unchanged records
// both count as Skipped.
type Summary struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Errors  []RecordError `json:"errors,omitempty"`
}

func (s *Summary) fail(externalID string, err error) {
	s.Skipped++
	s.Errors = append(s.Errors, RecordError{ExternalID: externalID, Error: err.Error()})
}

// TruncatedErrors returns at most n errors.
func (s Summary) TruncatedErrors(n int) []RecordError {
	if len(s.Errors) <= n {
		return s.Errors
	}
	return s.Errors[:n]
}

// Total is the number of records seen.
func (s Summary) Total() int {
	return s.Created + s.Updated + s.Skipped
}

// Scope identifies whose ledger an import writes to.
type Scope struct {
	TenantID string
	// ClientCompanyID is the company the integration is bound to, if any.
	ClientCompanyID *string
	// SyncedAt stamps created_at and updated_at on written rows.
	SyncedAt time.Time
}

func (s Scope) stamp() time.Time {
	if s.SyncedAt.IsZero() {
		return time.Now().UTC()
	}
	return s.SyncedAt
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (s *Summary) record(o outcome) {
	switch o {
	case outcomeCreated:
		s.Created++
	case outcomeUpdated:
		s.Updated++
	default:
		s.Skipped++
	}
}

type ClientCompanyStore interface {
	GetByID(ctx context.Context, tenantID, companyID string) (*models.ClientCompany, error)
	FindByTaxNumber(ctx context.Context, tenantID, taxNumber string) (*models.ClientCompany, error)
	FindByName(ctx context.Context, tenantID, name string) (*models.ClientCompany, error)
	FindOldestActive(ctx context.Context, tenantID string) (*models.ClientCompany, error)
	Create(ctx context.Context, company *models.ClientCompany) error
}

// childID derives a stable id for the n-th child row of a parent so that
// recreating an identical line set yields identical rows.
func childID(parentID string, n int) string {
	ns, err := uuid.Parse(parentID)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceOID, []byte(parentID))
	}
	return uuid.NewSHA1(ns, []byte(fmt.Sprintf("line-%d", n))).String()
}

// Column scales in the ledger schema. Incoming values are rounded to them
// before comparison so a stored value compares equal to its source.
const (
	amountScale   = 2
	quantityScale = 4
)

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(amountScale)
}

func moneyPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := money(*d)
	return &v
}

func newID() string {
	return uuid.New().String()
}
