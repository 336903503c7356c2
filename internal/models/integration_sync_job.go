package models

import "time"

type SyncJobType string

const (
	JobPullInvoices         SyncJobType = "pull_invoices"
	JobPullBankTransactions SyncJobType = "pull_bank_transactions"
	JobPushInvoices         SyncJobType = "push_invoices"
	JobPushBankTransactions SyncJobType = "push_bank_transactions"
)

// IsPush reports whether the job sends platform records outward.
func (t SyncJobType) IsPush() bool {
	return t == JobPushInvoices || t == JobPushBankTransactions
}

// ProviderType is the connector capability the job needs.
func (t SyncJobType) ProviderType() ProviderType {
	if t == JobPullBankTransactions || t == JobPushBankTransactions {
		return ProviderTypeBank
	}
	return ProviderTypeAccounting
}

// Label is the human-readable job name used in notifications.
func (t SyncJobType) Label() string {
	switch t {
	case JobPullInvoices:
		return "Invoice import"
	case JobPullBankTransactions:
		return "Bank transaction import"
	case JobPushInvoices:
		return "Invoice export"
	case JobPushBankTransactions:
		return "Bank transaction export"
	default:
		return string(t)
	}
}

func PullJobTypeFor(pt ProviderType) SyncJobType {
	if pt == ProviderTypeBank {
		return JobPullBankTransactions
	}
	return JobPullInvoices
}

func PushJobTypeFor(pt ProviderType) SyncJobType {
	if pt == ProviderTypeBank {
		return JobPushBankTransactions
	}
	return JobPushInvoices
}

type SyncJobStatus string

const (
	SyncStatusPending    SyncJobStatus = "pending"
	SyncStatusInProgress SyncJobStatus = "in_progress"
	SyncStatusSuccess    SyncJobStatus = "success"
	SyncStatusFailed     SyncJobStatus = "failed"
	SyncStatusRetry      SyncJobStatus = "retry"
)

// ActiveJobStatuses are the non-terminal statuses. At most one job per
// (integration, job type) may be in one of them.
var ActiveJobStatuses = []SyncJobStatus{SyncStatusPending, SyncStatusInProgress, SyncStatusRetry}

// IsActive reports whether the status is non-terminal.
func (s SyncJobStatus) IsActive() bool {
	return s == SyncStatusPending || s == SyncStatusInProgress || s == SyncStatusRetry
}

// CanTransitionTo encodes the job state machine:
// pending -> in_progress -> {success, failed, retry}, retry -> pending.
func (s SyncJobStatus) CanTransitionTo(next SyncJobStatus) bool {
	switch s {
	case SyncStatusPending:
		return next == SyncStatusInProgress
	case SyncStatusInProgress:
		return next == SyncStatusSuccess || next == SyncStatusFailed || next == SyncStatusRetry
	case SyncStatusRetry:
		return next == SyncStatusPending
	default:
		return false
	}
}

const DefaultMaxRetries = 3

type IntegrationSyncJob struct {
	ID                  string        `gorm:"column:id;primaryKey"`
	TenantID            string        `gorm:"column:tenant_id;index"`
	TenantIntegrationID string        `gorm:"column:tenant_integration_id;index"`
	ClientCompanyID     *string       `gorm:"column:client_company_id"`
	JobType             SyncJobType   `gorm:"column:job_type"`
	Status              SyncJobStatus `gorm:"column:status;index"`
	RetryCount          int           `gorm:"column:retry_count"`
	MaxRetries          int           `gorm:"column:max_retries"`
	ScheduledFor        *time.Time    `gorm:"column:scheduled_for;index"`
	ErrorMessage        *string       `gorm:"column:error_message"`
	StartedAt           *time.Time    `gorm:"column:started_at"`
	FinishedAt          *time.Time    `gorm:"column:finished_at"`
	CreatedAt           time.Time     `gorm:"column:created_at"`
	UpdatedAt           time.Time     `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (IntegrationSyncJob) TableName() string {
	return "integration_sync_jobs"
}

// CanRetry reports whether another attempt fits in the retry budget.
func (j *IntegrationSyncJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

type SyncLogLevel string

const (
	LogInfo    SyncLogLevel = "info"
	LogWarning SyncLogLevel = "warning"
	LogError   SyncLogLevel = "error"
)

// IntegrationSyncLog is the append-only audit trail of sync activity.
type IntegrationSyncLog struct {
	ID                  string       `gorm:"column:id;primaryKey"`
	TenantID            string       `gorm:"column:tenant_id;index"`
	TenantIntegrationID string       `gorm:"column:tenant_integration_id;index"`
	JobID               *string      `gorm:"column:job_id"`
	Level               SyncLogLevel `gorm:"column:level"`
	Message             string       `gorm:"column:message"`
	Context             JSONB        `gorm:"column:context;type:jsonb"`
	CreatedAt           time.Time    `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (IntegrationSyncLog) TableName() string {
	return "integration_sync_logs"
}
