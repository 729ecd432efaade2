package indexing

import (
	"context"
	"fmt"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
)

// ScheduleResult reports what Schedule recorded.
type ScheduleResult struct {
	QueueJobID int64
	// IndexJobID is uuid.Nil when an active queue job was reused.
	IndexJobID uuid.UUID
	Created    bool
	// Superseded counts abandoned index job rows failed in favor of the new one.
	Superseded int64
}

const supersededMessage = "superseded: no queue job was running for this index job"

// Scheduler enqueues index work for documents.
//
// The store and the queue must share one database: the queue job and the
// queued index job row are written in the same transaction.
type Scheduler struct {
	store *store.Store
	queue *jobs.Queue
}

// NewScheduler constructs a scheduler.
func NewScheduler(st *store.Store, queue *jobs.Queue) (*Scheduler, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	return &Scheduler{store: st, queue: queue}, nil
}

// DedupeKey is the queue dedupe key for a document's index job.
func DedupeKey(tenantID string, documentID uuid.UUID) string {
	return fmt.Sprintf("index:%s:%s", tenantID, documentID)
}

// Schedule enqueues an index job for the document.
//
// While an index job for the document is pending or processing in the queue,
// the existing job is reused and no new index job row is written. When a new
// queue job is created, index job rows still queued or processing have no
// queue job behind them and are failed before the fresh row is recorded.
func (s *Scheduler) Schedule(ctx context.Context, tenantID string, documentID uuid.UUID) (ScheduleResult, error) {
	var result ScheduleResult
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enqueued, err := s.queue.WithTx(tx).Enqueue(ctx,
			jobs.IndexDocument{TenantID: tenantID, DocumentID: documentID},
			jobs.EnqueueOptions{DedupeKey: DedupeKey(tenantID, documentID)})
		if err != nil {
			return errors.Wrap(err, "enqueue index job")
		}
		result.QueueJobID = enqueued.JobID
		result.Created = enqueued.Created
		if !enqueued.Created {
			return nil
		}

		txStore := s.store.WithTx(tx)
		orphaned, err := txStore.FailIndexJobs(ctx, tenantID, documentID, supersededMessage, store.IndexJobPatch{})
		if err != nil {
			return errors.WithStack(err)
		}
		result.Superseded = orphaned

		job, err := txStore.CreateIndexJob(ctx, tenantID, documentID)
		if err != nil {
			return errors.WithStack(err)
		}
		result.IndexJobID = job.ID
		return nil
	})
	if err != nil {
		return ScheduleResult{}, errors.Wrapf(err, "schedule index of document %s", documentID)
	}
	return result, nil
}
