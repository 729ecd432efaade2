// Package reminder fires scheduled document commands through the job queue.
package reminder

import (
	"context"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/log"
)

// Outcome is the result of one notification attempt.
type Outcome string

const (
	OutcomeNotified         Outcome = "notified"
	OutcomeNotFound         Outcome = "not-found"
	OutcomeAlreadyProcessed Outcome = "already-processed"
)

// Notifier schedules reminders and marks them notified when their job runs.
type Notifier struct {
	store  *store.Store
	queue  *jobs.Queue
	logger logSDK.Logger
}

// NewNotifier constructs a notifier. store and queue must share one database.
func NewNotifier(st *store.Store, queue *jobs.Queue, logger logSDK.Logger) (*Notifier, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_reminder")
	}
	return &Notifier{store: st, queue: queue, logger: logger}, nil
}

// ScheduleInput describes a reminder to create.
type ScheduleInput struct {
	TenantID    string
	DocumentID  uuid.UUID
	Kind        string
	Body        datatypes.JSON
	ScheduledAt time.Time
}

// Schedule records a command and enqueues its send_reminder job, delayed until ScheduledAt.
func (n *Notifier) Schedule(ctx context.Context, in ScheduleInput) (*store.DocumentCommand, error) {
	if in.ScheduledAt.IsZero() {
		return nil, errors.New("scheduled at is required")
	}

	var cmd *store.DocumentCommand
	err := n.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cmd, err = n.store.WithTx(tx).CreateCommand(ctx, in.TenantID, in.DocumentID, in.Kind, in.Body, in.ScheduledAt)
		if err != nil {
			return errors.WithStack(err)
		}

		delay := cmd.ScheduledAt.Sub(n.store.Now())
		_, err = n.queue.WithTx(tx).Enqueue(ctx,
			jobs.SendReminder{TenantID: in.TenantID, DocumentCommandID: cmd.ID},
			jobs.EnqueueOptions{Delay: delay, DedupeKey: fmt.Sprintf("reminder:%s", cmd.ID)})
		return errors.Wrap(err, "enqueue reminder")
	})
	if err != nil {
		return nil, errors.Wrap(err, "schedule reminder")
	}
	return cmd, nil
}

// Cancel stops a scheduled reminder from firing. It reports whether the command was still scheduled.
func (n *Notifier) Cancel(ctx context.Context, tenantID string, commandID uuid.UUID) (bool, error) {
	affected, err := n.store.SetCommandStatus(ctx, tenantID, commandID,
		store.CommandStatusScheduled, store.CommandStatusCancelled)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return affected > 0, nil
}

// Process marks a scheduled command notified.
//
// Missing and already handled commands are not errors, so redelivered jobs are harmless.
func (n *Notifier) Process(ctx context.Context, tenantID string, commandID uuid.UUID) (Outcome, error) {
	logger := log.FromContext(ctx, n.logger).With(
		zap.String("tenant_id", tenantID),
		zap.String("command_id", commandID.String()),
	)

	cmd, err := n.store.GetCommand(ctx, tenantID, commandID)
	if err != nil {
		if errors.Is(err, store.ErrCommandNotFound) {
			logger.Info("reminder command not found, skipping")
			return OutcomeNotFound, nil
		}
		return "", errors.Wrap(err, "load reminder command")
	}
	if cmd.Status != store.CommandStatusScheduled {
		logger.Info("reminder command already processed", zap.String("status", cmd.Status))
		return OutcomeAlreadyProcessed, nil
	}

	updated, err := n.store.MarkCommandNotified(ctx, tenantID, commandID, n.store.Now())
	if err != nil {
		return "", errors.WithStack(err)
	}
	if !updated {
		logger.Info("reminder command changed concurrently, skipping")
		return OutcomeAlreadyProcessed, nil
	}

	logger.Info("reminder notified",
		zap.String("document_id", cmd.DocumentID.String()),
		zap.String("kind", cmd.Kind))
	return OutcomeNotified, nil
}

// HandleJob adapts Process to the job pool.
func (n *Notifier) HandleJob(ctx context.Context, payload jobs.Payload) error {
	job, ok := payload.(jobs.SendReminder)
	if !ok {
		return jobs.Permanent(errors.Errorf("unexpected payload %T", payload))
	}
	_, err := n.Process(ctx, job.TenantID, job.DocumentCommandID)
	return err
}
