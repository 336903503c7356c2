package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vipul43/ledger-sync-worker/internal/models"
	"github.com/vipul43/ledger-sync-worker/internal/testutil"
)

var jobClock = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newJob(integrationID string, jobType models.SyncJobType) *models.IntegrationSyncJob {
	return &models.IntegrationSyncJob{
		TenantID:            "tenant-1",
		TenantIntegrationID: integrationID,
		JobType:             jobType,
	}
}

func TestSyncJobRepository_CreateDefaults(t *testing.T) {
	repo := NewSyncJobRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	job := newJob("int-1", models.JobPullInvoices)
	require.NoError(t, repo.Create(ctx, job))
	assert.NotEmpty(t, job.ID)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, got.Status)
	assert.Equal(t, models.DefaultMaxRetries, got.MaxRetries)
	assert.Equal(t, 0, got.RetryCount)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSyncJobRepository_InFlightIndex(t *testing.T) {
	repo := NewSyncJobRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	first := newJob("int-1", models.JobPullInvoices)
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newJob("int-1", models.JobPullInvoices))
	assert.ErrorIs(t, err, ErrJobAlreadyActive)

	// A different job type on the same integration is independent.
	require.NoError(t, repo.Create(ctx, newJob("int-1", models.JobPushInvoices)))

	active, err := repo.HasActiveJob(ctx, "int-1", models.JobPullInvoices)
	require.NoError(t, err)
	assert.True(t, active)

	// Once terminal, a new job of the same type may be created.
	ok, err := repo.Claim(ctx, first.ID, jobClock)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.MarkSuccess(ctx, first.ID, jobClock))

	active, err = repo.HasActiveJob(ctx, "int-1", models.JobPullInvoices)
	require.NoError(t, err)
	assert.False(t, active)
	assert.NoError(t, repo.Create(ctx, newJob("int-1", models.JobPullInvoices)))
}

func TestSyncJobRepository_ClaimIsExclusive(t *testing.T) {
	repo := NewSyncJobRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	job := newJob("int-1", models.JobPullBankTransactions)
	require.NoError(t, repo.Create(ctx, job))

	ok, err := repo.Claim(ctx, job.ID, jobClock)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, job.ID, jobClock)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusInProgress, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(jobClock))
}

func TestSyncJobRepository_RetryLifecycle(t *testing.T) {
	repo := NewSyncJobRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	job := newJob("int-1", models.JobPullInvoices)
	require.NoError(t, repo.Create(ctx, job))
	ok, err := repo.Claim(ctx, job.ID, jobClock)
	require.NoError(t, err)
	require.True(t, ok)

	due := jobClock.Add(2 * time.Second)
	require.NoError(t, repo.ScheduleRetry(ctx, job.ID, 1, due, jobClock, "connection reset"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "connection reset", *got.ErrorMessage)

	jobs, err := repo.GetDueRetryJobs(ctx, jobClock, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "not due before scheduledFor")

	jobs, err = repo.GetDueRetryJobs(ctx, due, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	// retry cannot jump straight to in_progress
	ok, err = repo.Claim(ctx, job.ID, due)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Requeue(ctx, job.ID, due)
	require.NoError(t, err)
	assert.True(t, ok)

	pending, err := repo.GetPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, job.ID, pending[0].ID)
}

func TestSyncJobRepository_TerminalTransitionsRequireInProgress(t *testing.T) {
	repo := NewSyncJobRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	job := newJob("int-1", models.JobPullInvoices)
	require.NoError(t, repo.Create(ctx, job))

	assert.ErrorIs(t, repo.MarkSuccess(ctx, job.ID, jobClock), ErrInvalidTransition)
	assert.ErrorIs(t, repo.MarkFailed(ctx, job.ID, jobClock, "boom"), ErrInvalidTransition)

	ok, err := repo.Claim(ctx, job.ID, jobClock)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.MarkFailed(ctx, job.ID, jobClock, "boom"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, got.Status)
	require.NotNil(t, got.FinishedAt)

	_, err = repo.Requeue(ctx, job.ID, jobClock)
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, got.Status, "failed is terminal")
}

func newMockSyncJobRepository(t *testing.T) (*SyncJobRepository, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewSyncJobRepository(gormDB), mock
}

func TestSyncJobRepository_ClaimSQL(t *testing.T) {
	t.Run("conditional update wins", func(t *testing.T) {
		repo, mock := newMockSyncJobRepository(t)

		mock.ExpectExec(`UPDATE "integration_sync_jobs" SET .* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Claim(context.Background(), "job-1", jobClock)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows means another worker claimed it", func(t *testing.T) {
		repo, mock := newMockSyncJobRepository(t)

		mock.ExpectExec(`UPDATE "integration_sync_jobs" SET .* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Claim(context.Background(), "job-1", jobClock)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncJobRepository_ReclaimStale(t *testing.T) {
	repo := NewSyncJobRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	stuck := newJob("int-1", models.JobPullInvoices)
	stuck.RetryCount = 1
	require.NoError(t, repo.Create(ctx, stuck))
	ok, err := repo.Claim(ctx, stuck.ID, jobClock)
	require.NoError(t, err)
	require.True(t, ok)

	fresh := newJob("int-2", models.JobPullInvoices)
	require.NoError(t, repo.Create(ctx, fresh))
	ok, err = repo.Claim(ctx, fresh.ID, jobClock.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	now := jobClock.Add(90 * time.Minute)
	reclaimed, err := repo.ReclaimStale(ctx, now.Add(-time.Hour), now, 10, "worker stopped")
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, stuck.ID, reclaimed[0].ID)

	got, err := repo.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount, "reclaiming spends no retry")
	require.NotNil(t, got.ScheduledFor)
	assert.True(t, got.ScheduledFor.Equal(now))

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusInProgress, got.Status)

	due, err := repo.GetDueRetryJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// A second sweep finds nothing left to move.
	reclaimed, err = repo.ReclaimStale(ctx, now.Add(-time.Hour), now, 10, "worker stopped")
	require.NoError(t, err)
	assert.Empty(t, reclaimed)
}
