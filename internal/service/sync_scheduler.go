package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"github.com/vipul43/ledger-sync-worker/internal/repository"
)

type IntegrationLister interface {
	ListConnected(ctx context.Context) ([]models.TenantIntegration, error)
}

type JobScheduler interface {
	HasActiveJob(ctx context.Context, integrationID string, jobType models.SyncJobType) (bool, error)
	Create(ctx context.Context, job *models.IntegrationSyncJob) error
}

type SchedulerConfig struct {
	PullInterval time.Duration
	// MaxRetries is the retry budget of created jobs. Zero means
	// models.DefaultMaxRetries.
	MaxRetries int
}

// SyncScheduler creates recurring pull and push jobs for connected
// integrations. It never runs jobs itself.
type SyncScheduler struct {
	integrations IntegrationLister
	jobs         JobScheduler
	connectors   ConnectorResolver
	cfg          SchedulerConfig
	now          Clock
	logger       *zap.Logger
}

func NewSyncScheduler(integrations IntegrationLister, jobs JobScheduler, connectors ConnectorResolver, cfg SchedulerConfig, clock Clock, logger *zap.Logger) *SyncScheduler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	return &SyncScheduler{
		integrations: integrations,
		jobs:         jobs,
		connectors:   connectors,
		cfg:          cfg,
		now:          clock,
		logger:       logger.Named("sync-scheduler"),
	}
}

// ScheduleRecurringSyncs creates a pull job for every connected integration
// that has not synced within the pull interval. Returns the number created.
func (s *SyncScheduler) ScheduleRecurringSyncs(ctx context.Context) (int, error) {
	integrations, err := s.integrations.ListConnected(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for i := range integrations {
		ti := &integrations[i]
		if ti.Provider == nil {
			s.logger.Warn("Integration has no provider", zap.String("integration_id", ti.ID))
			continue
		}
		if ti.LastSyncAt != nil && now.Sub(*ti.LastSyncAt) < s.cfg.PullInterval {
			continue
		}

		ok, err := s.createIfIdle(ctx, ti, models.PullJobTypeFor(ti.Provider.Type))
		if err != nil {
			s.logger.Error("Failed to schedule pull sync",
				zap.String("integration_id", ti.ID),
				zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		s.logger.Info("Scheduled pull syncs", zap.Int("count", created))
	}
	return created, nil
}

// SchedulePushSyncs creates a push job for every connected integration
// whose connector can push, whose push sync is enabled and whose last push
// is older than its configured frequency.
func (s *SyncScheduler) SchedulePushSyncs(ctx context.Context) (int, error) {
	integrations, err := s.integrations.ListConnected(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for i := range integrations {
		ti := &integrations[i]
		if ti.Provider == nil || !ti.PushSyncEnabled() {
			continue
		}
		conn, err := s.connectors.Resolve(ti.Provider.Code, ti.Provider.Type)
		if err != nil || !connector.CanPush(conn, ti.Provider.Type) {
			continue
		}
		if last := ti.LastPushAt(); last != nil && now.Sub(*last) < ti.PushSyncFrequency().Interval() {
			continue
		}

		ok, err := s.createIfIdle(ctx, ti, models.PushJobTypeFor(ti.Provider.Type))
		if err != nil {
			s.logger.Error("Failed to schedule push sync",
				zap.String("integration_id", ti.ID),
				zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		s.logger.Info("Scheduled push syncs", zap.Int("count", created))
	}
	return created, nil
}

// createIfIdle creates a pending job unless one of the same type is already
// active for the integration.
func (s *SyncScheduler) createIfIdle(ctx context.Context, ti *models.TenantIntegration, jobType models.SyncJobType) (bool, error) {
	active, err := s.jobs.HasActiveJob(ctx, ti.ID, jobType)
	if err != nil {
		return false, err
	}
	if active {
		return false, nil
	}

	job := &models.IntegrationSyncJob{
		TenantID:            ti.TenantID,
		TenantIntegrationID: ti.ID,
		ClientCompanyID:     ti.ClientCompanyID,
		JobType:             jobType,
		Status:              models.SyncStatusPending,
		MaxRetries:          s.cfg.MaxRetries,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrJobAlreadyActive) {
			return false, nil
		}
		return false, fmt.Errorf("create %s job: %w", jobType, err)
	}

	s.logger.Debug("Sync job created",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(jobType)),
		zap.String("integration_id", ti.ID))
	return true, nil
}
