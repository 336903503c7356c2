package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/models"
	"github.com/vipul43/ledger-sync-worker/internal/repository"
	"github.com/vipul43/ledger-sync-worker/internal/testutil"
)

func newScheduler(db *gorm.DB, registry *connector.Registry) *SyncScheduler {
	return NewSyncScheduler(
		repository.NewIntegrationRepository(db),
		repository.NewSyncJobRepository(db),
		registry,
		SchedulerConfig{PullInterval: 24 * time.Hour, MaxRetries: 4},
		func() time.Time { return startTime },
		zap.NewNop(),
	)
}

func setLastSync(t *testing.T, db *gorm.DB, id string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.TenantIntegration{}).Where("id = ?", id).Update("last_sync_at", at).Error)
}

func jobsFor(t *testing.T, db *gorm.DB, integrationID string) []models.IntegrationSyncJob {
	t.Helper()
	var jobs []models.IntegrationSyncJob
	require.NoError(t, db.Where("tenant_integration_id = ?", integrationID).Find(&jobs).Error)
	return jobs
}

func TestScheduleRecurringSyncs(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := newScheduler(db, connector.NewRegistry())
	ctx := context.Background()

	seedIntegration(t, db, "never", "LEDGERLY", models.ProviderTypeAccounting, nil)
	seedIntegration(t, db, "bank", "BANKCO", models.ProviderTypeBank, nil)

	recent := seedIntegration(t, db, "recent", "LEDGERLY", models.ProviderTypeAccounting, nil)
	setLastSync(t, db, recent.ID, startTime.Add(-time.Hour))

	busy := seedIntegration(t, db, "busy", "LEDGERLY", models.ProviderTypeAccounting, nil)
	setLastSync(t, db, busy.ID, startTime.Add(-48*time.Hour))
	require.NoError(t, repository.NewSyncJobRepository(db).Create(ctx, &models.IntegrationSyncJob{
		TenantID: tenantID, TenantIntegrationID: busy.ID, JobType: models.JobPullInvoices,
	}))

	off := seedIntegration(t, db, "off", "LEDGERLY", models.ProviderTypeAccounting, nil)
	require.NoError(t, db.Model(off).Update("status", models.IntegrationDisconnected).Error)

	created, err := s.ScheduleRecurringSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	never := jobsFor(t, db, "never")
	require.Len(t, never, 1)
	assert.Equal(t, models.JobPullInvoices, never[0].JobType)
	assert.Equal(t, models.SyncStatusPending, never[0].Status)
	assert.Equal(t, 4, never[0].MaxRetries)

	bank := jobsFor(t, db, "bank")
	require.Len(t, bank, 1)
	assert.Equal(t, models.JobPullBankTransactions, bank[0].JobType)

	assert.Empty(t, jobsFor(t, db, "recent"))
	assert.Len(t, jobsFor(t, db, "busy"), 1)
	assert.Empty(t, jobsFor(t, db, "off"))

	again, err := s.ScheduleRecurringSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestSchedulePushSyncs(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	registry := connector.NewRegistry()
	require.NoError(t, registry.Register("PUSHY", &fakePushingAccounting{fakeAccounting: &fakeAccounting{}}))
	require.NoError(t, registry.Register("PLAIN", &fakeAccounting{}))
	s := newScheduler(db, registry)
	ctx := context.Background()

	seedIntegration(t, db, "due", "PUSHY", models.ProviderTypeAccounting, nil)
	seedIntegration(t, db, "plain", "PLAIN", models.ProviderTypeAccounting, nil)
	seedIntegration(t, db, "unregistered", "GHOST", models.ProviderTypeAccounting, nil)
	seedIntegration(t, db, "disabled", "PUSHY", models.ProviderTypeAccounting, models.JSONB{
		models.ConfigPushSyncEnabled: false,
	})
	seedIntegration(t, db, "weekly", "PUSHY", models.ProviderTypeAccounting, models.JSONB{
		models.ConfigPushSyncFrequency: "weekly",
		models.ConfigLastPushSyncAt:    startTime.Add(-48 * time.Hour).Format(time.RFC3339),
	})
	seedIntegration(t, db, "hourly", "PUSHY", models.ProviderTypeAccounting, models.JSONB{
		models.ConfigPushSyncFrequency: "hourly",
		models.ConfigLastPushSyncAt:    startTime.Add(-2 * time.Hour).Format(time.RFC3339),
	})
	daily := seedIntegration(t, db, "daily-recent", "PUSHY", models.ProviderTypeAccounting, nil)
	setLastSync(t, db, daily.ID, startTime.Add(-3*time.Hour))

	created, err := s.SchedulePushSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	for _, id := range []string{"due", "hourly"} {
		jobs := jobsFor(t, db, id)
		require.Len(t, jobs, 1, id)
		assert.Equal(t, models.JobPushInvoices, jobs[0].JobType)
	}
	for _, id := range []string{"plain", "unregistered", "disabled", "weekly", "daily-recent"} {
		assert.Empty(t, jobsFor(t, db, id), id)
	}

	again, err := s.SchedulePushSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

type duplicatingJobs struct {
	JobScheduler
}

func (duplicatingJobs) HasActiveJob(context.Context, string, models.SyncJobType) (bool, error) {
	return false, nil
}

func (duplicatingJobs) Create(context.Context, *models.IntegrationSyncJob) error {
	return repository.ErrJobAlreadyActive
}

func TestScheduleRecurringSyncs_UniqueViolationMeansScheduled(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	seedIntegration(t, db, "never", "LEDGERLY", models.ProviderTypeAccounting, nil)

	s := NewSyncScheduler(
		repository.NewIntegrationRepository(db),
		duplicatingJobs{},
		connector.NewRegistry(),
		SchedulerConfig{PullInterval: time.Hour},
		func() time.Time { return startTime },
		zap.NewNop(),
	)
	created, err := s.ScheduleRecurringSyncs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}
