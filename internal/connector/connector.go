// Package connector defines the contract every external accounting or
// banking provider implements, the provider-agnostic records they exchange
// with the platform, and the registry that resolves a provider to its
// connector.
//
// Capabilities are expressed as separate interfaces. A connector is an
// AccountingConnector, a BankConnector or both, and may additionally
// implement InvoicePusher or TransactionPusher. Callers discover optional
// capabilities with a type assertion, never by inspecting method names.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/vipul43/ledger-sync-worker/internal/models"
)

// Config is the integration's opaque configuration: credentials plus
// connector-specific settings.
type Config = models.JSONB

type TestResult struct {
	Success bool
	Message string
}

type FetchOptions struct {
	PageSize        int
	ClientCompanyID *string
}

// PushResult reports the outcome for one pushed item. Results are returned
// in input order; failure is expressed per item, not as an error.
type PushResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"externalId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Connector interface {
	TestConnection(ctx context.Context, cfg Config) (TestResult, error)
}

type AccountingConnector interface {
	Connector
	FetchInvoices(ctx context.Context, cfg Config, since, until time.Time, opts FetchOptions) ([]NormalizedInvoice, error)
}

type BankConnector interface {
	Connector
	FetchTransactions(ctx context.Context, cfg Config, since, until time.Time, opts FetchOptions) ([]NormalizedBankTransaction, error)
}

type InvoicePusher interface {
	PushInvoices(ctx context.Context, invoices []NormalizedInvoice, cfg Config) ([]PushResult, error)
}

type TransactionPusher interface {
	PushTransactions(ctx context.Context, txns []NormalizedBankTransaction, cfg Config) ([]PushResult, error)
}

// Implements reports whether c can serve providers of the given type.
func Implements(c Connector, pt models.ProviderType) bool {
	switch pt {
	case models.ProviderTypeAccounting:
		_, ok := c.(AccountingConnector)
		return ok
	case models.ProviderTypeBank:
		_, ok := c.(BankConnector)
		return ok
	}
	return false
}

// CanPush reports whether c exposes the push capability for jobs of the
// given provider type.
func CanPush(c Connector, pt models.ProviderType) bool {
	switch pt {
	case models.ProviderTypeAccounting:
		_, ok := c.(InvoicePusher)
		return ok
	case models.ProviderTypeBank:
		_, ok := c.(TransactionPusher)
		return ok
	}
	return false
}

// AsAccounting returns the invoice import capability of c. code names the
// provider in the error.
func AsAccounting(c Connector, code string) (AccountingConnector, error) {
	acc, ok := c.(AccountingConnector)
	if !ok {
		return nil, Fatal(fmt.Errorf("provider %s does not support invoice import", code))
	}
	return acc, nil
}

func AsBank(c Connector, code string) (BankConnector, error) {
	bank, ok := c.(BankConnector)
	if !ok {
		return nil, Fatal(fmt.Errorf("provider %s does not support bank transaction import", code))
	}
	return bank, nil
}

func AsInvoicePusher(c Connector, code string) (InvoicePusher, error) {
	p, ok := c.(InvoicePusher)
	if !ok {
		return nil, Fatal(fmt.Errorf("provider %s: %w of invoices", code, ErrPushNotSupported))
	}
	return p, nil
}

func AsTransactionPusher(c Connector, code string) (TransactionPusher, error) {
	p, ok := c.(TransactionPusher)
	if !ok {
		return nil, Fatal(fmt.Errorf("provider %s: %w of bank transactions", code, ErrPushNotSupported))
	}
	return p, nil
}
