package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record origin. Only platform-originated rows are pushed outward, so an
// imported row never echoes back to its source.
const (
	SourcePlatform    = "platform"
	SourceIntegration = "integration"
)

type ClientCompany struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id;index"`
	Name       string    `gorm:"column:name"`
	TaxNumber  string    `gorm:"column:tax_number;index"`
	ExternalID *string   `gorm:"column:external_id"`
	IsActive   bool      `gorm:"column:is_active"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ClientCompany) TableName() string {
	return "client_companies"
}

type InvoiceType string

const (
	InvoiceSale     InvoiceType = "sale"
	InvoicePurchase InvoiceType = "purchase"
)

const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusFinalized = "finalized"
	InvoiceStatusImported  = "imported"
)

type Invoice struct {
	ID                    string          `gorm:"column:id;primaryKey"`
	TenantID              string          `gorm:"column:tenant_id;index"`
	ClientCompanyID       string          `gorm:"column:client_company_id;index"`
	ExternalID            *string         `gorm:"column:external_id;index"`
	InvoiceNumber         string          `gorm:"column:invoice_number"`
	Type                  InvoiceType     `gorm:"column:type"`
	IssueDate             time.Time       `gorm:"column:issue_date"`
	DueDate               *time.Time      `gorm:"column:due_date"`
	TotalAmount           decimal.Decimal `gorm:"column:total_amount;type:numeric(18,2)"`
	TaxAmount             decimal.Decimal `gorm:"column:tax_amount;type:numeric(18,2)"`
	NetAmount             decimal.Decimal `gorm:"column:net_amount;type:numeric(18,2)"`
	Currency              string          `gorm:"column:currency"`
	CounterpartyName      string          `gorm:"column:counterparty_name"`
	CounterpartyTaxNumber string          `gorm:"column:counterparty_tax_number"`
	Status                string          `gorm:"column:status;index"`
	Source                string          `gorm:"column:source"`
	PushedAt              *time.Time      `gorm:"column:pushed_at"`
	Lines                 []InvoiceLine   `gorm:"foreignKey:InvoiceID"`
	ClientCompany         *ClientCompany  `gorm:"foreignKey:ClientCompanyID"`
	CreatedAt             time.Time       `gorm:"column:created_at"`
	UpdatedAt             time.Time       `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

type InvoiceLine struct {
	ID          string          `gorm:"column:id;primaryKey"`
	InvoiceID   string          `gorm:"column:invoice_id;index"`
	LineNumber  int             `gorm:"column:line_number"`
	Description string          `gorm:"column:description"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(18,4)"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(18,4)"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(18,2)"`
	VatRate     decimal.Decimal `gorm:"column:vat_rate;type:numeric(5,2)"`
	VatAmount   decimal.Decimal `gorm:"column:vat_amount;type:numeric(18,2)"`
}

// TableName specifies the table name for GORM
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

const (
	TransactionStatusDraft     = "draft"
	TransactionStatusFinalized = "finalized"
	TransactionStatusImported  = "imported"
)

type Transaction struct {
	ID              string                    `gorm:"column:id;primaryKey"`
	TenantID        string                    `gorm:"column:tenant_id;index"`
	ClientCompanyID string                    `gorm:"column:client_company_id;index"`
	BankAccountID   *string                   `gorm:"column:bank_account_id"`
	ExternalID      *string                   `gorm:"column:external_id;index"`
	ReferenceNo     string                    `gorm:"column:reference_no"`
	BookingDate     time.Time                 `gorm:"column:booking_date"`
	ValueDate       *time.Time                `gorm:"column:value_date"`
	Description     string                    `gorm:"column:description"`
	Amount          decimal.Decimal           `gorm:"column:amount;type:numeric(18,2)"`
	Currency        string                    `gorm:"column:currency"`
	BalanceAfter    *decimal.Decimal          `gorm:"column:balance_after;type:numeric(18,2)"`
	Status          string                    `gorm:"column:status;index"`
	Source          string                    `gorm:"column:source"`
	PushedAt        *time.Time                `gorm:"column:pushed_at"`
	Lines           []TransactionLine         `gorm:"foreignKey:TransactionID"`
	BankAccount     *ClientCompanyBankAccount `gorm:"foreignKey:BankAccountID"`
	CreatedAt       time.Time                 `gorm:"column:created_at"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}

type TransactionLine struct {
	ID              string          `gorm:"column:id;primaryKey"`
	TransactionID   string          `gorm:"column:transaction_id;index"`
	LedgerAccountID string          `gorm:"column:ledger_account_id"`
	Description     string          `gorm:"column:description"`
	DebitAmount     decimal.Decimal `gorm:"column:debit_amount;type:numeric(18,2)"`
	CreditAmount    decimal.Decimal `gorm:"column:credit_amount;type:numeric(18,2)"`
}

// TableName specifies the table name for GORM
func (TransactionLine) TableName() string {
	return "transaction_lines"
}

type LedgerAccount struct {
	ID              string    `gorm:"column:id;primaryKey"`
	TenantID        string    `gorm:"column:tenant_id;index"`
	ClientCompanyID string    `gorm:"column:client_company_id"`
	Code            string    `gorm:"column:code"`
	Name            string    `gorm:"column:name"`
	Type            string    `gorm:"column:type"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (LedgerAccount) TableName() string {
	return "ledger_accounts"
}

const LedgerAccountTypeAsset = "asset"

type ClientCompanyBankAccount struct {
	ID              string    `gorm:"column:id;primaryKey"`
	TenantID        string    `gorm:"column:tenant_id;index"`
	ClientCompanyID string    `gorm:"column:client_company_id"`
	IBAN            string    `gorm:"column:iban;index"`
	BankName        string    `gorm:"column:bank_name"`
	Currency        string    `gorm:"column:currency"`
	LedgerAccountID *string   `gorm:"column:ledger_account_id"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (ClientCompanyBankAccount) TableName() string {
	return "client_company_bank_accounts"
}
