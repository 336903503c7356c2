package models

import "time"

const RoleTenantOwner = "tenant_owner"

// User and UserTenantRole belong to the platform's identity module. The
// sync engine only reads them to address failure e-mails.
type User struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Email     string    `gorm:"column:email"`
	Name      string    `gorm:"column:name"`
	IsActive  bool      `gorm:"column:is_active"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

type UserTenantRole struct {
	UserID   string `gorm:"column:user_id;primaryKey"`
	TenantID string `gorm:"column:tenant_id;primaryKey"`
	Role     string `gorm:"column:role;primaryKey"`
}

// TableName specifies the table name for GORM
func (UserTenantRole) TableName() string {
	return "user_tenant_roles"
}

const NotificationIntegrationSyncFailed = "integration_sync_failed"

// Notification is an in-app notification. A nil UserID addresses every
// member of the tenant.
type Notification struct {
	ID        string     `gorm:"column:id;primaryKey"`
	TenantID  string     `gorm:"column:tenant_id;index"`
	UserID    *string    `gorm:"column:user_id"`
	Type      string     `gorm:"column:type"`
	Title     string     `gorm:"column:title"`
	Message   string     `gorm:"column:message"`
	Meta      JSONB      `gorm:"column:meta;type:jsonb"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

const EmailStatusQueued = "queued"

// EmailQueueItem is an outbound e-mail picked up by the platform mailer.
type EmailQueueItem struct {
	ID         string     `gorm:"column:id;primaryKey"`
	TenantID   string     `gorm:"column:tenant_id;index"`
	Recipients StringList `gorm:"column:recipients;type:jsonb"`
	Type       string     `gorm:"column:type"`
	Subject    string     `gorm:"column:subject"`
	Body       string     `gorm:"column:body"`
	Status     string     `gorm:"column:status;index"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (EmailQueueItem) TableName() string {
	return "email_queue"
}

// All lists every model owned or touched by the sync engine, in dependency
// order, for schema creation in tests.
func All() []interface{} {
	return []interface{}{
		&Provider{},
		&ClientCompany{},
		&TenantIntegration{},
		&IntegrationSyncJob{},
		&IntegrationSyncLog{},
		&LedgerAccount{},
		&ClientCompanyBankAccount{},
		&Invoice{},
		&InvoiceLine{},
		&Transaction{},
		&TransactionLine{},
		&User{},
		&UserTenantRole{},
		&Notification{},
		&EmailQueueItem{},
	}
}
