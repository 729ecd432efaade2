package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/library/log"
)

// syncDedupeKey keeps at most one reconciler sweep queued at a time.
const syncDedupeKey = "sync:stale-documents"

var workerCMD = &cobra.Command{
	Use:    "worker",
	Short:  "worker",
	Long:   `run index, reminder and sync job workers until SIGINT/SIGTERM`,
	Args:   gcmd.NoExtraArgs,
	PreRun: mustInitialize,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWorker(cmd.Context()); err != nil {
			log.Logger.Panic("run worker", zap.Error(err))
		}
	},
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer a.close()

	if a.processor == nil {
		return errors.New("embedding settings are required to run index workers")
	}

	logger := log.Logger.Named("worker")
	pool, err := jobs.NewPool(a.queue, logger)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := pool.Register(jobs.TypeIndexDocument, a.processor.HandleJob, a.jobSettings.IndexConcurrency); err != nil {
		return errors.WithStack(err)
	}
	if err := pool.Register(jobs.TypeSendReminder, a.notifier.HandleJob, a.jobSettings.ReminderConcurrency); err != nil {
		return errors.WithStack(err)
	}
	if err := pool.Register(jobs.TypeSyncStaleDocuments, a.reconciler.HandleJob, 1); err != nil {
		return errors.WithStack(err)
	}

	events, unsubscribe := a.events.Subscribe(128)
	defer unsubscribe()
	go logJobEvents(events)

	if err := pool.Start(ctx); err != nil {
		return errors.WithStack(err)
	}
	go a.queue.Every(ctx, a.indexSettings.Sync.Interval, jobs.SyncStaleDocuments{}, syncDedupeKey)

	logger.Info("worker started",
		zap.Int("index_concurrency", a.jobSettings.IndexConcurrency),
		zap.Int("reminder_concurrency", a.jobSettings.ReminderConcurrency),
		zap.Duration("sync_interval", a.indexSettings.Sync.Interval))

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight jobs")
	pool.Wait()
	return nil
}

func logJobEvents(events <-chan jobs.Event) {
	logger := log.Logger.Named("job_events")
	for evt := range events {
		fields := []zap.Field{
			zap.Int64("job_id", evt.JobID),
			zap.String("job_type", string(evt.JobType)),
			zap.String("status", string(evt.Status)),
			zap.Int("attempt", evt.Attempt),
		}
		if evt.Error != "" {
			fields = append(fields, zap.String("error", evt.Error))
		}
		if evt.Status == jobs.EventFailed {
			logger.Warn("job failed", fields...)
			continue
		}
		logger.Debug("job event", fields...)
	}
}

func init() {
	rootCMD.AddCommand(workerCMD)
}
