// Package watcher drives the sync engine: one loop runs due jobs, another
// creates recurring ones.
package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vipul43/ledger-sync-worker/internal/config"
)

type JobRunner interface {
	ReclaimStaleJobs(ctx context.Context) (int, error)
	ProcessPendingJobs(ctx context.Context, limit int) (int, error)
	ProcessRetryJobs(ctx context.Context) (int, error)
}

type JobScheduler interface {
	ScheduleRecurringSyncs(ctx context.Context) (int, error)
	SchedulePushSyncs(ctx context.Context) (int, error)
}

type Watcher struct {
	cfg       *config.Config
	runner    JobRunner
	scheduler JobScheduler
	logger    *zap.Logger
}

func New(cfg *config.Config, runner JobRunner, scheduler JobScheduler, logger *zap.Logger) *Watcher {
	return &Watcher{
		cfg:       cfg,
		runner:    runner,
		scheduler: scheduler,
		logger:    logger.Named("watcher"),
	}
}

// Start runs both loops until ctx is cancelled. Each loop ticks once
// immediately so work left by a previous run is picked up at start-up.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Starting watcher",
		zap.Duration("sync_poll_interval", w.cfg.SyncPollInterval),
		zap.Duration("scheduler_interval", w.cfg.SchedulerInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.loop(ctx, "sync", w.cfg.SyncPollInterval, w.syncTick)
	})
	g.Go(func() error {
		return w.loop(ctx, "scheduler", w.cfg.SchedulerInterval, w.scheduleTick)
	})
	return g.Wait()
}

func (w *Watcher) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) error {
	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Loop shutting down", zap.String("loop", name))
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// syncTick reclaims abandoned jobs, runs pending jobs, then retries that
// have come due.
func (w *Watcher) syncTick(ctx context.Context) {
	if _, err := w.runner.ReclaimStaleJobs(ctx); err != nil {
		w.logger.Error("Error reclaiming stale sync jobs", zap.Error(err))
	}

	pending, err := w.runner.ProcessPendingJobs(ctx, w.cfg.SyncBatchSize)
	if err != nil {
		w.logger.Error("Error processing pending sync jobs", zap.Error(err))
	}

	retried, err := w.runner.ProcessRetryJobs(ctx)
	if err != nil {
		w.logger.Error("Error processing retry sync jobs", zap.Error(err))
	}

	if pending+retried > 0 {
		w.logger.Info("Processed sync jobs", zap.Int("pending", pending), zap.Int("retried", retried))
	}
}

func (w *Watcher) scheduleTick(ctx context.Context) {
	if _, err := w.scheduler.ScheduleRecurringSyncs(ctx); err != nil {
		w.logger.Error("Error scheduling pull syncs", zap.Error(err))
	}
	if _, err := w.scheduler.SchedulePushSyncs(ctx); err != nil {
		w.logger.Error("Error scheduling push syncs", zap.Error(err))
	}
}
