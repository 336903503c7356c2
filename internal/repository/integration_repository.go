package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/ledger-sync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrIntegrationNotFound = errors.New("tenant integration not found")

type IntegrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// GetByID retrieves an integration with its provider
func (r *IntegrationRepository) GetByID(ctx context.Context, integrationID string) (*models.TenantIntegration, error) {
	var integration models.TenantIntegration
	result := r.db.WithContext(ctx).Preload("Provider").First(&integration, "id = ?", integrationID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to get integration: %w", result.Error)
	}
	return &integration, nil
}

// ListConnected retrieves every connected integration with its provider
func (r *IntegrationRepository) ListConnected(ctx context.Context) ([]models.TenantIntegration, error) {
	var integrations []models.TenantIntegration
	result := r.db.WithContext(ctx).
		Preload("Provider").
		Where("status = ?", models.IntegrationConnected).
		Order("created_at ASC").
		Find(&integrations)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query connected integrations: %w", result.Error)
	}
	return integrations, nil
}

func (r *IntegrationRepository) MarkSyncStarted(ctx context.Context, integrationID string) error {
	return r.update(ctx, integrationID, map[string]interface{}{
		"last_sync_status": models.LastSyncInProgress,
	})
}

// MarkSyncResult records the outcome of a sync. lastSyncAt is left untouched
// when at is nil.
func (r *IntegrationRepository) MarkSyncResult(ctx context.Context, integrationID string, status models.LastSyncStatus, at *time.Time) error {
	updates := map[string]interface{}{
		"last_sync_status": status,
	}
	if at != nil {
		updates["last_sync_at"] = *at
	}
	return r.update(ctx, integrationID, updates)
}

// MergeConfig writes values into the integration's config map, keeping
// every other key.
func (r *IntegrationRepository) MergeConfig(ctx context.Context, integrationID string, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var integration models.TenantIntegration
		if err := tx.Select("id", "config").First(&integration, "id = ?", integrationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIntegrationNotFound
			}
			return fmt.Errorf("failed to load integration config: %w", err)
		}

		cfg := integration.Config.Clone()
		for k, v := range values {
			cfg[k] = v
		}

		result := tx.Model(&models.TenantIntegration{}).
			Where("id = ?", integrationID).
			Update("config", cfg)
		if result.Error != nil {
			return fmt.Errorf("failed to update integration config: %w", result.Error)
		}
		return nil
	})
}

func (r *IntegrationRepository) update(ctx context.Context, integrationID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.TenantIntegration{}).
		Where("id = ?", integrationID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update integration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}
