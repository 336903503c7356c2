package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ListActiveByRole retrieves active users holding role in the tenant
func (r *UserRepository) ListActiveByRole(ctx context.Context, tenantID, role string) ([]models.User, error) {
	var users []models.User
	result := r.db.WithContext(ctx).
		Joins("JOIN user_tenant_roles ON user_tenant_roles.user_id = users.id").
		Where("user_tenant_roles.tenant_id = ? AND user_tenant_roles.role = ?", tenantID, role).
		Where("users.is_active = ?", true).
		Order("users.email ASC").
		Find(&users)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query users by role: %w", result.Error)
	}
	return users, nil
}

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

type EmailQueueRepository struct {
	db *gorm.DB
}

func NewEmailQueueRepository(db *gorm.DB) *EmailQueueRepository {
	return &EmailQueueRepository{db: db}
}

// QueueEmail enqueues an e-mail for the platform mailer
func (r *EmailQueueRepository) QueueEmail(ctx context.Context, item *models.EmailQueueItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = models.EmailStatusQueued
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}
