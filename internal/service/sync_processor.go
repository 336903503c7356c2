package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/importer"
	"github.com/vipul43/ledger-sync-worker/internal/models"
)

const (
	maxLoggedErrors   = 10
	maxNotifiedLength = 500

	// staleJobMargin is added to the connector timeout before an
	// in_progress job counts as abandoned.
	staleJobMargin = 5 * time.Minute
	staleJobReason = "sync worker stopped before the job finished"
)

// JobStore is the subset of the sync job repository the processor needs.
type JobStore interface {
	GetByID(ctx context.Context, jobID string) (*models.IntegrationSyncJob, error)
	GetPendingJobs(ctx context.Context, limit int) ([]models.IntegrationSyncJob, error)
	GetDueRetryJobs(ctx context.Context, now time.Time, limit int) ([]models.IntegrationSyncJob, error)
	Claim(ctx context.Context, jobID string, now time.Time) (bool, error)
	Requeue(ctx context.Context, jobID string, now time.Time) (bool, error)
	MarkSuccess(ctx context.Context, jobID string, now time.Time) error
	MarkFailed(ctx context.Context, jobID string, now time.Time, message string) error
	ScheduleRetry(ctx context.Context, jobID string, retryCount int, scheduledFor, now time.Time, message string) error
	ReclaimStale(ctx context.Context, startedBefore, now time.Time, limit int, message string) ([]models.IntegrationSyncJob, error)
}

type IntegrationStore interface {
	GetByID(ctx context.Context, integrationID string) (*models.TenantIntegration, error)
	MarkSyncStarted(ctx context.Context, integrationID string) error
	MarkSyncResult(ctx context.Context, integrationID string, status models.LastSyncStatus, at *time.Time) error
	MergeConfig(ctx context.Context, integrationID string, values map[string]interface{}) error
}

type SyncLogStore interface {
	Create(ctx context.Context, entry *models.IntegrationSyncLog) error
}

type InvoicePushSource interface {
	ListPushCandidates(ctx context.Context, tenantID string, companyID *string, since time.Time, limit int) ([]models.Invoice, error)
	MarkPushed(ctx context.Context, invoiceIDs []string, at time.Time) error
}

type TransactionPushSource interface {
	ListPushCandidates(ctx context.Context, tenantID string, companyID *string, since time.Time, limit int) ([]models.Transaction, error)
	MarkPushed(ctx context.Context, txnIDs []string, at time.Time) error
}

type InvoiceImporter interface {
	Import(ctx context.Context, scope importer.Scope, records []connector.NormalizedInvoice) (importer.Summary, error)
}

type TransactionImporter interface {
	Import(ctx context.Context, scope importer.Scope, records []connector.NormalizedBankTransaction) (importer.Summary, error)
}

// ConnectorResolver looks up the connector registered for a provider.
type ConnectorResolver interface {
	Resolve(code string, pt models.ProviderType) (connector.Connector, error)
}

type FailureNotifier interface {
	NotifySyncFailure(ctx context.Context, integration *models.TenantIntegration, job *models.IntegrationSyncJob, cause error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

type ProcessorConfig struct {
	ConnectorTimeout time.Duration
	DefaultLookback  time.Duration
	FetchPageSize    int
	PushBatchSize    int
	RetryBatchSize   int
	Backoff          Backoff
	// StaleAfter is how long a job may stay in_progress before it is
	// reclaimed. Zero means ConnectorTimeout plus a five minute margin.
	StaleAfter time.Duration
}

// ProcessorDeps wires the SyncProcessor.
type ProcessorDeps struct {
	Jobs                JobStore
	Integrations        IntegrationStore
	Logs                SyncLogStore
	Invoices            InvoicePushSource
	Transactions        TransactionPushSource
	Connectors          ConnectorResolver
	InvoiceImporter     InvoiceImporter
	TransactionImporter TransactionImporter
	Notifier            FailureNotifier
	Logger              *zap.Logger
	Clock               Clock
}

// SyncProcessor runs integration sync jobs end to end: claim, connector
// call, import or push, and the resulting job and integration state.
type SyncProcessor struct {
	jobs                JobStore
	integrations        IntegrationStore
	logs                SyncLogStore
	invoices            InvoicePushSource
	transactions        TransactionPushSource
	connectors          ConnectorResolver
	invoiceImporter     InvoiceImporter
	transactionImporter TransactionImporter
	notifier            FailureNotifier
	cfg                 ProcessorConfig
	now                 Clock
	logger              *zap.Logger
}

func NewSyncProcessor(deps ProcessorDeps, cfg ProcessorConfig) *SyncProcessor {
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cfg.ConnectorTimeout + staleJobMargin
	}
	return &SyncProcessor{
		jobs:                deps.Jobs,
		integrations:        deps.Integrations,
		logs:                deps.Logs,
		invoices:            deps.Invoices,
		transactions:        deps.Transactions,
		connectors:          deps.Connectors,
		invoiceImporter:     deps.InvoiceImporter,
		transactionImporter: deps.TransactionImporter,
		notifier:            deps.Notifier,
		cfg:                 cfg,
		now:                 now,
		logger:              logger.Named("sync-processor"),
	}
}

// ProcessPendingJobs runs up to limit pending jobs, oldest first. A job's
// failure is logged and does not stop the batch.
func (p *SyncProcessor) ProcessPendingJobs(ctx context.Context, limit int) (int, error) {
	jobs, err := p.jobs.GetPendingJobs(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	return p.runBatch(ctx, jobs), nil
}

// ProcessRetryJobs runs retry jobs whose scheduled time has come.
func (p *SyncProcessor) ProcessRetryJobs(ctx context.Context) (int, error) {
	jobs, err := p.jobs.GetDueRetryJobs(ctx, p.now(), p.cfg.RetryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due retry jobs: %w", err)
	}
	return p.runBatch(ctx, jobs), nil
}

// ReclaimStaleJobs parks jobs left in_progress past StaleAfter as due
// retries without spending their retry budget. Until reclaimed, such a job
// blocks new jobs of its type for the integration.
func (p *SyncProcessor) ReclaimStaleJobs(ctx context.Context) (int, error) {
	now := p.now()
	jobs, err := p.jobs.ReclaimStale(ctx, now.Add(-p.cfg.StaleAfter), now, p.cfg.RetryBatchSize, staleJobReason)
	for i := range jobs {
		job := &jobs[i]
		p.logger.Warn("Reclaimed stale sync job",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.JobType)),
			zap.String("integration_id", job.TenantIntegrationID),
			zap.Timep("started_at", job.StartedAt))
		p.writeLog(ctx, job, models.LogWarning, job.JobType.Label()+" interrupted, queued again", models.JSONB{
			"retryCount": job.RetryCount,
		})
	}
	if err != nil {
		return len(jobs), fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	return len(jobs), nil
}

func (p *SyncProcessor) runBatch(ctx context.Context, jobs []models.IntegrationSyncJob) int {
	processed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if err := p.ProcessSyncJob(ctx, job.ID); err != nil {
			p.logger.Error("Sync job failed",
				zap.String("job_id", job.ID),
				zap.String("job_type", string(job.JobType)),
				zap.Error(err))
		}
		processed++
	}
	return processed
}

// ProcessSyncJob runs one job. Losing the claim to another worker is not an
// error. When the sync itself fails, job and integration state are recorded
// first and the original error is returned.
func (p *SyncProcessor) ProcessSyncJob(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	log := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.String("integration_id", job.TenantIntegrationID),
	)

	switch job.Status {
	case models.SyncStatusPending:
	case models.SyncStatusRetry:
		ok, err := p.jobs.Requeue(ctx, job.ID, p.now())
		if err != nil {
			return err
		}
		if !ok {
			log.Info("Retry job already picked up elsewhere")
			return nil
		}
	default:
		log.Info("Skipping job that is not runnable", zap.String("status", string(job.Status)))
		return nil
	}

	startedAt := p.now()
	claimed, err := p.jobs.Claim(ctx, job.ID, startedAt)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("Job claimed by another worker")
		return nil
	}
	job.Status = models.SyncStatusInProgress
	job.StartedAt = &startedAt

	integration, err := p.integrations.GetByID(ctx, job.TenantIntegrationID)
	if err != nil {
		stateCtx := context.WithoutCancel(ctx)
		if markErr := p.jobs.MarkFailed(stateCtx, job.ID, p.now(), err.Error()); markErr != nil {
			log.Error("Failed to mark job failed", zap.Error(markErr))
		}
		return err
	}

	if err := p.integrations.MarkSyncStarted(ctx, integration.ID); err != nil {
		return p.handleFailure(ctx, job, integration, err)
	}
	p.writeLog(ctx, job, models.LogInfo, job.JobType.Label()+" started", models.JSONB{
		"jobType":    string(job.JobType),
		"retryCount": job.RetryCount,
	})

	if err := p.execute(ctx, job, integration); err != nil {
		return p.handleFailure(ctx, job, integration, err)
	}
	return p.complete(ctx, job, integration)
}

func (p *SyncProcessor) execute(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration) error {
	provider := integration.Provider
	if provider == nil {
		return connector.Fatal(fmt.Errorf("invalid configuration: integration %s has no provider", integration.ID))
	}
	if job.JobType.ProviderType() != provider.Type {
		return connector.Fatal(fmt.Errorf("invalid configuration: %s job for %s provider %s", job.JobType, provider.Type, provider.Code))
	}

	conn, err := p.connectors.Resolve(provider.Code, provider.Type)
	if err != nil {
		return err
	}

	until := p.now()
	since := until.Add(-p.cfg.DefaultLookback)
	if integration.LastSyncAt != nil {
		since = *integration.LastSyncAt
	}

	w := syncWindow{since: since, until: until, companyID: scopedCompany(job, integration)}
	switch job.JobType {
	case models.JobPullInvoices:
		return p.pullInvoices(ctx, job, integration, conn, w)
	case models.JobPullBankTransactions:
		return p.pullTransactions(ctx, job, integration, conn, w)
	case models.JobPushInvoices:
		return p.pushInvoices(ctx, job, integration, conn, w)
	case models.JobPushBankTransactions:
		return p.pushTransactions(ctx, job, integration, conn, w)
	default:
		return connector.Fatal(fmt.Errorf("invalid configuration: unknown job type %q", job.JobType))
	}
}

type syncWindow struct {
	since     time.Time
	until     time.Time
	companyID *string
}

func scopedCompany(job *models.IntegrationSyncJob, integration *models.TenantIntegration) *string {
	if job.ClientCompanyID != nil {
		return job.ClientCompanyID
	}
	return integration.ClientCompanyID
}

// connectorContext bounds a single connector call.
func (p *SyncProcessor) connectorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.ConnectorTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.ConnectorTimeout)
}

func (p *SyncProcessor) pullInvoices(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration, conn connector.Connector, w syncWindow) error {
	acc, err := connector.AsAccounting(conn, integration.Provider.Code)
	if err != nil {
		return err
	}

	callCtx, cancel := p.connectorContext(ctx)
	records, err := acc.FetchInvoices(callCtx, integration.Config, w.since, w.until, connector.FetchOptions{
		PageSize:        p.cfg.FetchPageSize,
		ClientCompanyID: w.companyID,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("fetch invoices: %w", err)
	}

	summary, err := p.invoiceImporter.Import(ctx, importer.Scope{TenantID: job.TenantID, ClientCompanyID: w.companyID, SyncedAt: w.until}, records)
	if err != nil {
		return fmt.Errorf("import invoices: %w", err)
	}
	p.logImport(ctx, job, "Invoices imported", len(records), summary)
	return nil
}

func (p *SyncProcessor) pullTransactions(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration, conn connector.Connector, w syncWindow) error {
	bank, err := connector.AsBank(conn, integration.Provider.Code)
	if err != nil {
		return err
	}

	callCtx, cancel := p.connectorContext(ctx)
	records, err := bank.FetchTransactions(callCtx, integration.Config, w.since, w.until, connector.FetchOptions{
		PageSize:        p.cfg.FetchPageSize,
		ClientCompanyID: w.companyID,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("fetch bank transactions: %w", err)
	}

	summary, err := p.transactionImporter.Import(ctx, importer.Scope{TenantID: job.TenantID, ClientCompanyID: w.companyID, SyncedAt: w.until}, records)
	if err != nil {
		return fmt.Errorf("import bank transactions: %w", err)
	}
	p.logImport(ctx, job, "Bank transactions imported", len(records), summary)
	return nil
}

func (p *SyncProcessor) logImport(ctx context.Context, job *models.IntegrationSyncJob, message string, fetched int, s importer.Summary) {
	level := models.LogInfo
	if len(s.Errors) > 0 {
		level = models.LogWarning
	}
	p.writeLog(ctx, job, level, message, models.JSONB{
		"fetched": fetched,
		"created": s.Created,
		"updated": s.Updated,
		"skipped": s.Skipped,
		"errors":  s.TruncatedErrors(maxLoggedErrors),
	})
}

func (p *SyncProcessor) pushInvoices(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration, conn connector.Connector, w syncWindow) error {
	pusher, err := connector.AsInvoicePusher(conn, integration.Provider.Code)
	if err != nil {
		return err
	}

	candidates, err := p.invoices.ListPushCandidates(ctx, job.TenantID, w.companyID, w.since, p.cfg.PushBatchSize)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		p.writeLog(ctx, job, models.LogInfo, "Nothing to push", models.JSONB{"since": w.since.Format(time.RFC3339)})
		return nil
	}

	ids := make([]string, len(candidates))
	payload := make([]connector.NormalizedInvoice, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
		payload[i] = invoiceToNormalized(&candidates[i])
	}

	callCtx, cancel := p.connectorContext(ctx)
	results, err := pusher.PushInvoices(callCtx, payload, integration.Config)
	cancel()
	if err != nil {
		return fmt.Errorf("push invoices: %w", err)
	}

	outcome := matchPushResults(ids, results)
	if err := p.invoices.MarkPushed(ctx, outcome.pushed, p.now()); err != nil {
		return err
	}
	p.logPush(ctx, job, "Invoices pushed", outcome)
	return nil
}

func (p *SyncProcessor) pushTransactions(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration, conn connector.Connector, w syncWindow) error {
	pusher, err := connector.AsTransactionPusher(conn, integration.Provider.Code)
	if err != nil {
		return err
	}

	candidates, err := p.transactions.ListPushCandidates(ctx, job.TenantID, w.companyID, w.since, p.cfg.PushBatchSize)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		p.writeLog(ctx, job, models.LogInfo, "Nothing to push", models.JSONB{"since": w.since.Format(time.RFC3339)})
		return nil
	}

	ids := make([]string, len(candidates))
	payload := make([]connector.NormalizedBankTransaction, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
		payload[i] = transactionToNormalized(&candidates[i])
	}

	callCtx, cancel := p.connectorContext(ctx)
	results, err := pusher.PushTransactions(callCtx, payload, integration.Config)
	cancel()
	if err != nil {
		return fmt.Errorf("push bank transactions: %w", err)
	}

	outcome := matchPushResults(ids, results)
	if err := p.transactions.MarkPushed(ctx, outcome.pushed, p.now()); err != nil {
		return err
	}
	p.logPush(ctx, job, "Bank transactions pushed", outcome)
	return nil
}

func (p *SyncProcessor) logPush(ctx context.Context, job *models.IntegrationSyncJob, message string, o pushOutcome) {
	level := models.LogInfo
	if len(o.failures) > 0 {
		level = models.LogWarning
	}
	errs := o.failures
	if len(errs) > maxLoggedErrors {
		errs = errs[:maxLoggedErrors]
	}
	p.writeLog(ctx, job, level, message, models.JSONB{
		"succeeded": len(o.pushed),
		"failed":    len(o.failures),
		"remoteIds": o.remoteIDs,
		"errors":    errs,
	})
}

func (p *SyncProcessor) complete(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration) error {
	now := p.now()
	if err := p.jobs.MarkSuccess(ctx, job.ID, now); err != nil {
		return err
	}

	log := p.logger.With(zap.String("job_id", job.ID), zap.String("integration_id", integration.ID))
	if err := p.integrations.MarkSyncResult(ctx, integration.ID, models.LastSyncSuccess, &now); err != nil {
		log.Error("Failed to record sync success on integration", zap.Error(err))
	}
	if job.JobType.IsPush() {
		stamp := map[string]interface{}{models.ConfigLastPushSyncAt: now.UTC().Format(time.RFC3339Nano)}
		if err := p.integrations.MergeConfig(ctx, integration.ID, stamp); err != nil {
			log.Error("Failed to record last push time", zap.Error(err))
		}
	}

	p.writeLog(ctx, job, models.LogInfo, job.JobType.Label()+" completed", nil)
	log.Info("Sync job completed", zap.String("job_type", string(job.JobType)))
	return nil
}

// handleFailure records the outcome of a failed run and returns cause.
// State is written even when ctx is already cancelled.
func (p *SyncProcessor) handleFailure(ctx context.Context, job *models.IntegrationSyncJob, integration *models.TenantIntegration, cause error) error {
	stateCtx := context.WithoutCancel(ctx)
	now := p.now()
	msg := cause.Error()
	interrupted := ctx.Err() != nil
	retryable := IsRetryable(cause)

	log := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.String("integration_id", integration.ID),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(cause),
	)

	p.writeLog(stateCtx, job, models.LogError, job.JobType.Label()+" failed: "+truncate(msg, maxNotifiedLength), models.JSONB{
		"jobType":    string(job.JobType),
		"retryCount": job.RetryCount,
		"maxRetries": job.MaxRetries,
		"retryable":  retryable,
	})

	var stateErr error
	terminal := false
	switch {
	case interrupted:
		// Shutdown mid-run: park the job for the next worker without
		// spending its retry budget.
		stateErr = p.jobs.ScheduleRetry(stateCtx, job.ID, job.RetryCount, now, now, msg)
		log.Warn("Sync job interrupted, parked for retry")
	case retryable && job.CanRetry():
		next := now.Add(p.cfg.Backoff.Delay(job.RetryCount))
		stateErr = p.jobs.ScheduleRetry(stateCtx, job.ID, job.RetryCount+1, next, now, msg)
		log.Warn("Sync job scheduled for retry", zap.Time("next_retry_at", next))
	default:
		terminal = true
		stateErr = p.jobs.MarkFailed(stateCtx, job.ID, now, msg)
		log.Error("Sync job failed permanently", zap.Bool("retryable", retryable))
	}
	if stateErr != nil {
		log.Error("Failed to record job failure", zap.NamedError("state_error", stateErr))
	}

	if err := p.integrations.MarkSyncResult(stateCtx, integration.ID, models.LastSyncError, nil); err != nil {
		log.Error("Failed to record sync error on integration", zap.NamedError("state_error", err))
	}

	if terminal {
		p.notifier.NotifySyncFailure(stateCtx, integration, job, cause)
	}
	return cause
}

// writeLog appends to the sync audit trail. Failures are logged only.
func (p *SyncProcessor) writeLog(ctx context.Context, job *models.IntegrationSyncJob, level models.SyncLogLevel, message string, details models.JSONB) {
	jobID := job.ID
	entry := &models.IntegrationSyncLog{
		TenantID:            job.TenantID,
		TenantIntegrationID: job.TenantIntegrationID,
		JobID:               &jobID,
		Level:               level,
		Message:             message,
		Context:             details,
		CreatedAt:           p.now(),
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logger.Warn("Failed to write sync log",
			zap.String("job_id", job.ID),
			zap.String("message", message),
			zap.Error(err))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
