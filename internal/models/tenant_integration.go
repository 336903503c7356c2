package models

import "time"

type ProviderType string

const (
	ProviderTypeAccounting ProviderType = "accounting"
	ProviderTypeBank       ProviderType = "bank"
)

// Provider is immutable reference data describing an external system.
// A connector is selected by (Code, Type).
type Provider struct {
	ID        string       `gorm:"column:id;primaryKey"`
	Code      string       `gorm:"column:code;uniqueIndex"`
	Type      ProviderType `gorm:"column:type"`
	Name      string       `gorm:"column:name"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Provider) TableName() string {
	return "providers"
}

type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationError        IntegrationStatus = "error"
)

type LastSyncStatus string

const (
	LastSyncSuccess    LastSyncStatus = "success"
	LastSyncError      LastSyncStatus = "error"
	LastSyncInProgress LastSyncStatus = "in_progress"
)

// Config keys understood by the sync engine. Everything else in the
// config map belongs to the connector.
const (
	ConfigPushSyncEnabled   = "pushSyncEnabled"
	ConfigPushSyncFrequency = "pushSyncFrequency"
	ConfigLastPushSyncAt    = "lastPushSyncAt"
)

type PushFrequency string

const (
	PushHourly  PushFrequency = "hourly"
	PushDaily   PushFrequency = "daily"
	PushWeekly  PushFrequency = "weekly"
	PushMonthly PushFrequency = "monthly"
)

// Interval returns the minimum time between two push syncs.
func (f PushFrequency) Interval() time.Duration {
	switch f {
	case PushHourly:
		return time.Hour
	case PushWeekly:
		return 7 * 24 * time.Hour
	case PushMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TenantIntegration is one tenant's configured connection to a Provider.
type TenantIntegration struct {
	ID              string            `gorm:"column:id;primaryKey"`
	TenantID        string            `gorm:"column:tenant_id;index"`
	ProviderID      string            `gorm:"column:provider_id"`
	Provider        *Provider         `gorm:"foreignKey:ProviderID"`
	ClientCompanyID *string           `gorm:"column:client_company_id"`
	Name            string            `gorm:"column:name"`
	Config          JSONB             `gorm:"column:config;type:jsonb"`
	Status          IntegrationStatus `gorm:"column:status;index"`
	LastSyncAt      *time.Time        `gorm:"column:last_sync_at"`
	LastSyncStatus  *LastSyncStatus   `gorm:"column:last_sync_status"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (TenantIntegration) TableName() string {
	return "tenant_integrations"
}

// DisplayName is the label used in notifications.
func (ti *TenantIntegration) DisplayName() string {
	if ti.Name != "" {
		return ti.Name
	}
	if ti.Provider != nil && ti.Provider.Name != "" {
		return ti.Provider.Name
	}
	return "Integration"
}

// PushSyncEnabled reports whether push sync is allowed. Push is on unless
// the config explicitly disables it.
func (ti *TenantIntegration) PushSyncEnabled() bool {
	enabled, ok := ti.Config.Bool(ConfigPushSyncEnabled)
	return !ok || enabled
}

func (ti *TenantIntegration) PushSyncFrequency() PushFrequency {
	s, _ := ti.Config.String(ConfigPushSyncFrequency)
	switch f := PushFrequency(s); f {
	case PushHourly, PushDaily, PushWeekly, PushMonthly:
		return f
	default:
		return PushDaily
	}
}

// LastPushAt is the reference point for push scheduling: the last push
// sync, else the last sync of any kind.
func (ti *TenantIntegration) LastPushAt() *time.Time {
	if t, ok := ti.Config.Time(ConfigLastPushSyncAt); ok {
		return t
	}
	return ti.LastSyncAt
}
