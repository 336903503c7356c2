package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vipul43/ledger-sync-worker/internal/models"
)

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

type EmailQueue interface {
	QueueEmail(ctx context.Context, item *models.EmailQueueItem) error
}

type RecipientSource interface {
	ListActiveByRole(ctx context.Context, tenantID, role string) ([]models.User, error)
}

// SyncFailureNotifier tells a tenant that a sync job gave up: one in-app
// notification for the whole tenant and one e-mail to its owners.
type SyncFailureNotifier struct {
	notifications NotificationStore
	emails        EmailQueue
	users         RecipientSource
	now           Clock
	logger        *zap.Logger
}

func NewSyncFailureNotifier(notifications NotificationStore, emails EmailQueue, users RecipientSource, clock Clock, logger *zap.Logger) *SyncFailureNotifier {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncFailureNotifier{
		notifications: notifications,
		emails:        emails,
		users:         users,
		now:           clock,
		logger:        logger.Named("failure-notifier"),
	}
}

// NotifySyncFailure never returns an error; delivery problems are logged.
func (n *SyncFailureNotifier) NotifySyncFailure(ctx context.Context, integration *models.TenantIntegration, job *models.IntegrationSyncJob, cause error) {
	log := n.logger.With(
		zap.String("tenant_id", job.TenantID),
		zap.String("job_id", job.ID),
		zap.String("integration_id", integration.ID),
	)

	title := fmt.Sprintf("%s sync failed", integration.DisplayName())
	message := fmt.Sprintf("%s for %s failed after %d attempt(s): %s",
		job.JobType.Label(), integration.DisplayName(), job.RetryCount+1, truncate(errorText(cause), maxNotifiedLength))
	now := n.now()

	notification := &models.Notification{
		ID:       uuid.New().String(),
		TenantID: job.TenantID,
		Type:     models.NotificationIntegrationSyncFailed,
		Title:    title,
		Message:  message,
		Meta: models.JSONB{
			"jobId":         job.ID,
			"integrationId": integration.ID,
			"jobType":       string(job.JobType),
		},
		CreatedAt: now,
	}
	if err := n.notifications.CreateNotification(ctx, notification); err != nil {
		log.Error("Failed to create sync failure notification", zap.Error(err))
	}

	owners, err := n.users.ListActiveByRole(ctx, job.TenantID, models.RoleTenantOwner)
	if err != nil {
		log.Error("Failed to load tenant owners", zap.Error(err))
		return
	}
	if len(owners) == 0 {
		log.Info("No active tenant owners to e-mail")
		return
	}

	recipients := make(models.StringList, 0, len(owners))
	for _, u := range owners {
		if u.Email != "" {
			recipients = append(recipients, u.Email)
		}
	}
	if len(recipients) == 0 {
		return
	}

	email := &models.EmailQueueItem{
		ID:         uuid.New().String(),
		TenantID:   job.TenantID,
		Recipients: recipients,
		Type:       models.NotificationIntegrationSyncFailed,
		Subject:    title,
		Body:       emailBody(integration, message),
		Status:     models.EmailStatusQueued,
		CreatedAt:  now,
	}
	if err := n.emails.QueueEmail(ctx, email); err != nil {
		log.Error("Failed to queue sync failure e-mail", zap.Error(err))
		return
	}
	log.Info("Sync failure e-mail queued", zap.Int("recipients", len(recipients)))
}

func emailBody(integration *models.TenantIntegration, message string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Check the connection settings of %s and run the sync again once the problem is fixed.", integration.DisplayName())
	return b.String()
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
