package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"gorm.io/gorm"
)

var (
	ErrJobNotFound       = errors.New("sync job not found")
	ErrJobAlreadyActive  = errors.New("an active sync job already exists for this integration and job type")
	ErrInvalidTransition = errors.New("sync job status transition not allowed")
)

type SyncJobRepository struct {
	db *gorm.DB
}

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new job. Empty status and retry budget get their defaults.
// ErrJobAlreadyActive is returned when the in-flight index rejects the row.
func (r *SyncJobRepository) Create(ctx context.Context, job *models.IntegrationSyncJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.SyncStatusPending
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = models.DefaultMaxRetries
	}

	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrJobAlreadyActive
		}
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID
func (r *SyncJobRepository) GetByID(ctx context.Context, jobID string) (*models.IntegrationSyncJob, error) {
	var job models.IntegrationSyncJob
	result := r.db.WithContext(ctx).First(&job, "id = ?", jobID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get sync job: %w", result.Error)
	}
	return &job, nil
}

// GetPendingJobs retrieves pending jobs, oldest first
func (r *SyncJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]models.IntegrationSyncJob, error) {
	var jobs []models.IntegrationSyncJob
	result := r.db.WithContext(ctx).
		Where("status = ?", models.SyncStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", result.Error)
	}
	return jobs, nil
}

// GetDueRetryJobs retrieves retry jobs whose backoff has elapsed
func (r *SyncJobRepository) GetDueRetryJobs(ctx context.Context, now time.Time, limit int) ([]models.IntegrationSyncJob, error) {
	var jobs []models.IntegrationSyncJob
	result := r.db.WithContext(ctx).
		Where("status = ?", models.SyncStatusRetry).
		Where("scheduled_for IS NULL OR scheduled_for <= ?", now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query retry jobs: %w", result.Error)
	}
	return jobs, nil
}

// ReclaimStale returns jobs stuck in in_progress since before startedBefore
// to the retry pool, due at now. The retry count is left unchanged. Only the
// jobs this call moved are returned.
func (r *SyncJobRepository) ReclaimStale(ctx context.Context, startedBefore, now time.Time, limit int, message string) ([]models.IntegrationSyncJob, error) {
	var stuck []models.IntegrationSyncJob
	result := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.SyncStatusInProgress, startedBefore).
		Order("started_at ASC").
		Limit(limit).
		Find(&stuck)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", result.Error)
	}

	reclaimed := make([]models.IntegrationSyncJob, 0, len(stuck))
	for _, job := range stuck {
		result := r.db.WithContext(ctx).Model(&models.IntegrationSyncJob{}).
			Where("id = ? AND status = ? AND started_at < ?", job.ID, models.SyncStatusInProgress, startedBefore).
			Updates(map[string]interface{}{
				"status":        models.SyncStatusRetry,
				"scheduled_for": now,
				"error_message": message,
				"updated_at":    now,
			})
		if result.Error != nil {
			return reclaimed, fmt.Errorf("failed to reclaim job %s: %w", job.ID, result.Error)
		}
		if result.RowsAffected == 1 {
			job.Status = models.SyncStatusRetry
			job.ScheduledFor = &now
			job.ErrorMessage = &message
			reclaimed = append(reclaimed, job)
		}
	}
	return reclaimed, nil
}

// HasActiveJob reports whether a non-terminal job exists for the pair.
func (r *SyncJobRepository) HasActiveJob(ctx context.Context, integrationID string, jobType models.SyncJobType) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.IntegrationSyncJob{}).
		Where("tenant_integration_id = ? AND job_type = ?", integrationID, jobType).
		Where("status IN ?", models.ActiveJobStatuses).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check active jobs: %w", result.Error)
	}
	return count > 0, nil
}

// transition moves a job from one status to another only if it is still in
// the expected status. It reports whether this call won the update.
func (r *SyncJobRepository) transition(ctx context.Context, jobID string, from, to models.SyncJobStatus, updates map[string]interface{}) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	updates["status"] = to

	result := r.db.WithContext(ctx).Model(&models.IntegrationSyncJob{}).
		Where("id = ? AND status = ?", jobID, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update job status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Claim moves a pending job to in_progress. False means another worker got
// there first or the job is no longer pending.
func (r *SyncJobRepository) Claim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	return r.transition(ctx, jobID, models.SyncStatusPending, models.SyncStatusInProgress, map[string]interface{}{
		"started_at": now,
		"updated_at": now,
	})
}

// Requeue returns a retry job to the pending pool.
func (r *SyncJobRepository) Requeue(ctx context.Context, jobID string, now time.Time) (bool, error) {
	return r.transition(ctx, jobID, models.SyncStatusRetry, models.SyncStatusPending, map[string]interface{}{
		"updated_at": now,
	})
}

func (r *SyncJobRepository) MarkSuccess(ctx context.Context, jobID string, now time.Time) error {
	ok, err := r.transition(ctx, jobID, models.SyncStatusInProgress, models.SyncStatusSuccess, map[string]interface{}{
		"finished_at":   now,
		"error_message": nil,
		"updated_at":    now,
	})
	return mustHaveMoved(ok, err, jobID)
}

func (r *SyncJobRepository) MarkFailed(ctx context.Context, jobID string, now time.Time, message string) error {
	ok, err := r.transition(ctx, jobID, models.SyncStatusInProgress, models.SyncStatusFailed, map[string]interface{}{
		"finished_at":   now,
		"error_message": message,
		"updated_at":    now,
	})
	return mustHaveMoved(ok, err, jobID)
}

// ScheduleRetry parks an in_progress job until scheduledFor.
func (r *SyncJobRepository) ScheduleRetry(ctx context.Context, jobID string, retryCount int, scheduledFor, now time.Time, message string) error {
	ok, err := r.transition(ctx, jobID, models.SyncStatusInProgress, models.SyncStatusRetry, map[string]interface{}{
		"retry_count":   retryCount,
		"scheduled_for": scheduledFor,
		"error_message": message,
		"updated_at":    now,
	})
	return mustHaveMoved(ok, err, jobID)
}

func mustHaveMoved(ok bool, err error, jobID string) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s is no longer in_progress", ErrInvalidTransition, jobID)
	}
	return nil
}
