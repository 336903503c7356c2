package connector

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizedInvoice is the provider-agnostic invoice exchanged with
// accounting connectors.
type NormalizedInvoice struct {
	ExternalID    string `json:"externalId" validate:"required"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`

	// Hints used to resolve the owning client company.
	ClientCompanyName       string `json:"clientCompanyName,omitempty"`
	ClientCompanyTaxNumber  string `json:"clientCompanyTaxNumber,omitempty"`
	ClientCompanyExternalID string `json:"clientCompanyExternalId,omitempty"`

	IssueDate   time.Time        `json:"issueDate" validate:"required"`
	DueDate     *time.Time       `json:"dueDate,omitempty"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	TaxAmount   decimal.Decimal  `json:"taxAmount"`
	NetAmount   *decimal.Decimal `json:"netAmount,omitempty"`
	Currency    string           `json:"currency" validate:"omitempty,len=3"`

	CounterpartyName      string `json:"counterpartyName,omitempty"`
	CounterpartyTaxNumber string `json:"counterpartyTaxNumber,omitempty"`

	Status string                  `json:"status,omitempty"`
	Type   string                  `json:"type" validate:"omitempty,oneof=sale purchase"`
	Lines  []NormalizedInvoiceLine `json:"lines" validate:"dive"`
}

type NormalizedInvoiceLine struct {
	LineNumber  int             `json:"lineNumber" validate:"gte=1"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	VatRate     decimal.Decimal `json:"vatRate"`
	VatAmount   decimal.Decimal `json:"vatAmount"`
}

// Validate checks the structural constraints importers rely on.
func (n *NormalizedInvoice) Validate() error {
	return validate.Struct(n)
}

// NormalizedBankTransaction is the provider-agnostic bank movement
// exchanged with bank connectors. Amount is signed: negative is money out.
type NormalizedBankTransaction struct {
	ExternalID        string           `json:"externalId" validate:"required"`
	AccountIdentifier string           `json:"accountIdentifier" validate:"required"`
	BookingDate       time.Time        `json:"bookingDate" validate:"required"`
	ValueDate         *time.Time       `json:"valueDate,omitempty"`
	Description       string           `json:"description"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency" validate:"omitempty,len=3"`
	BalanceAfter      *decimal.Decimal `json:"balanceAfter,omitempty"`
	ReferenceNo       string           `json:"referenceNo,omitempty"`
}

// Validate checks the structural constraints importers rely on.
func (n *NormalizedBankTransaction) Validate() error {
	return validate.Struct(n)
}
