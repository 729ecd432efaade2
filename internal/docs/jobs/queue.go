package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Laisky/docspace/library/log"
)

// EnqueueOptions tunes one enqueue call.
type EnqueueOptions struct {
	// Delay postpones the first attempt.
	Delay time.Duration
	// MaxAttempts overrides Settings.MaxAttempts when positive.
	MaxAttempts int
	// DedupeKey collapses enqueues while a job with the same key is pending or processing.
	DedupeKey string
}

// EnqueueResult reports the job that now represents the request.
type EnqueueResult struct {
	JobID int64
	// Created is false when an active job with the same dedupe key was reused.
	Created bool
}

// Queue stores jobs in the relational database and hands them to workers.
type Queue struct {
	db       *gorm.DB
	settings Settings
	logger   logSDK.Logger
	clock    func() time.Time
	sink     EventSink
}

// NewQueue constructs a queue. clock defaults to time.Now in UTC.
func NewQueue(db *gorm.DB, settings Settings, logger logSDK.Logger, clock func() time.Time) (*Queue, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_jobs_queue")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Queue{
		db:       db,
		settings: settings.withDefaults(),
		logger:   logger,
		clock:    clock,
	}, nil
}

// SetEventSink routes lifecycle events to sink.
func (q *Queue) SetEventSink(sink EventSink) {
	q.sink = sink
}

// WithTx returns a queue bound to tx so enqueues commit with the caller's writes.
func (q *Queue) WithTx(tx *gorm.DB) *Queue {
	cp := *q
	cp.db = tx
	return &cp
}

// RunMigrations ensures the queue table and indexes exist.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("gorm db is required")
	}
	if err := db.WithContext(ctx).AutoMigrate(&QueueJob{}); err != nil {
		return errors.Wrap(err, "auto migrate queue table")
	}
	// partial indexes are supported by both postgres and sqlite
	if err := db.WithContext(ctx).Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_doc_queue_jobs_dedupe
		ON doc_queue_jobs (dedupe_key) WHERE status IN ('pending', 'processing')`).Error; err != nil {
		return errors.Wrap(err, "create dedupe index")
	}
	return nil
}

// Enqueue stores a validated payload for asynchronous processing.
func (q *Queue) Enqueue(ctx context.Context, payload Payload, opts EnqueueOptions) (EnqueueResult, error) {
	if payload == nil {
		return EnqueueResult{}, errors.New("payload is required")
	}
	if err := payload.Validate(); err != nil {
		return EnqueueResult{}, errors.Wrapf(err, "invalid %s payload", payload.JobType())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return EnqueueResult{}, errors.Wrap(err, "marshal payload")
	}

	dedupeKey := strings.TrimSpace(opts.DedupeKey)
	if dedupeKey != "" {
		if id, ok, err := q.activeByDedupeKey(ctx, dedupeKey); err != nil {
			return EnqueueResult{}, errors.WithStack(err)
		} else if ok {
			return EnqueueResult{JobID: id}, nil
		}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.settings.MaxAttempts
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}
	now := q.clock()
	job := QueueJob{
		JobType:     string(payload.JobType()),
		Payload:     datatypes.JSON(raw),
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		AvailableAt: now.Add(delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if dedupeKey != "" {
		job.DedupeKey = &dedupeKey
	}

	// nested transaction becomes a savepoint when q.db is already a transaction
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&job).Error
	})
	if err != nil {
		if dedupeKey != "" && isUniqueViolation(err) {
			if id, ok, lookupErr := q.activeByDedupeKey(ctx, dedupeKey); lookupErr == nil && ok {
				return EnqueueResult{JobID: id}, nil
			}
		}
		return EnqueueResult{}, errors.Wrapf(err, "enqueue %s", payload.JobType())
	}

	q.logger.Debug("job enqueued",
		zap.Int64("job_id", job.ID),
		zap.String("job_type", job.JobType),
		zap.Time("available_at", job.AvailableAt))
	return EnqueueResult{JobID: job.ID, Created: true}, nil
}

// activeByDedupeKey finds a pending or processing job with the key.
func (q *Queue) activeByDedupeKey(ctx context.Context, key string) (int64, bool, error) {
	var ids []int64
	if err := q.db.WithContext(ctx).Model(&QueueJob{}).
		Where("dedupe_key = ? AND status IN ?", key, []string{StatusPending, StatusProcessing}).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return 0, false, errors.Wrap(err, "lookup dedupe key")
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// Claim marks up to limit due jobs of jobType as processing and returns them.
// Processing jobs whose lock is older than StaleAfter are released first.
func (q *Queue) Claim(ctx context.Context, jobType Type, limit int) ([]QueueJob, error) {
	if limit <= 0 {
		limit = 1
	}
	if err := q.recoverStale(ctx, jobType); err != nil {
		return nil, errors.WithStack(err)
	}

	now := q.clock()
	var claimed []QueueJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("job_type = ? AND status = ? AND available_at <= ?", string(jobType), StatusPending, now).
			Order("available_at ASC").
			Order("id ASC").
			Limit(limit)
		if isPostgresDialect(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&claimed).Error; err != nil {
			return errors.Wrap(err, "select due jobs")
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(claimed))
		for _, job := range claimed {
			ids = append(ids, job.ID)
		}
		if err := tx.Model(&QueueJob{}).
			Where("id IN ? AND status = ?", ids, StatusPending).
			Updates(map[string]any{
				"status":     StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error; err != nil {
			return errors.Wrap(err, "mark jobs processing")
		}
		for i := range claimed {
			claimed[i].Status = StatusProcessing
			claimed[i].Attempts++
			claimed[i].LockedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// recoverStale releases abandoned processing jobs. Jobs that already used
// every attempt become failed, the rest return to pending.
func (q *Queue) recoverStale(ctx context.Context, jobType Type) error {
	now := q.clock()
	cutoff := now.Add(-q.settings.StaleAfter)

	var stale []QueueJob
	if err := q.db.WithContext(ctx).
		Where("job_type = ? AND status = ? AND locked_at < ?", string(jobType), StatusProcessing, cutoff).
		Find(&stale).Error; err != nil {
		return errors.Wrap(err, "select stale jobs")
	}
	if len(stale) == 0 {
		return nil
	}

	var exhausted []QueueJob
	retryIDs := make([]int64, 0, len(stale))
	for _, job := range stale {
		maxAttempts := job.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = q.settings.MaxAttempts
		}
		if job.Attempts >= maxAttempts {
			exhausted = append(exhausted, job)
			continue
		}
		retryIDs = append(retryIDs, job.ID)
	}

	for _, job := range exhausted {
		message := fmt.Sprintf("abandoned after %d attempts", job.Attempts)
		result := q.db.WithContext(ctx).Model(&QueueJob{}).
			Where("id = ? AND status = ? AND locked_at < ?", job.ID, StatusProcessing, cutoff).
			Updates(map[string]any{
				"status":     StatusFailed,
				"locked_at":  nil,
				"last_error": message,
				"updated_at": now,
			})
		if result.Error != nil {
			return errors.Wrapf(result.Error, "fail abandoned job %d", job.ID)
		}
		if result.RowsAffected == 0 {
			continue
		}
		q.logger.Warn("abandoned job failed",
			zap.Int64("job_id", job.ID),
			zap.String("job_type", job.JobType),
			zap.Int("attempts", job.Attempts))
		q.emit(ctx, Event{JobID: job.ID, JobType: Type(job.JobType), Status: EventFailed, Attempt: job.Attempts, Error: message, At: now})
	}

	if len(retryIDs) == 0 {
		return nil
	}
	result := q.db.WithContext(ctx).Model(&QueueJob{}).
		Where("id IN ? AND status = ? AND locked_at < ?", retryIDs, StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     StatusPending,
			"locked_at":  nil,
			"updated_at": now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "recover stale jobs")
	}
	if result.RowsAffected > 0 {
		q.logger.Warn("recovered stale jobs",
			zap.String("job_type", string(jobType)),
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}

// Complete marks a claimed job as done.
func (q *Queue) Complete(ctx context.Context, job QueueJob) error {
	now := q.clock()
	if err := q.db.WithContext(ctx).Model(&QueueJob{}).
		Where("id = ? AND status = ?", job.ID, StatusProcessing).
		Updates(map[string]any{
			"status":     StatusDone,
			"locked_at":  nil,
			"last_error": nil,
			"updated_at": now,
		}).Error; err != nil {
		return errors.Wrap(err, "mark job done")
	}
	q.emit(ctx, Event{JobID: job.ID, JobType: Type(job.JobType), Status: EventCompleted, Attempt: job.Attempts, At: now})
	return nil
}

// Fail records a processing error. Permanent errors and exhausted jobs become
// failed; everything else returns to pending after an exponential backoff.
func (q *Queue) Fail(ctx context.Context, job QueueJob, cause error) error {
	now := q.clock()
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.settings.MaxAttempts
	}
	if IsPermanent(cause) || job.Attempts >= maxAttempts {
		if err := q.db.WithContext(ctx).Model(&QueueJob{}).
			Where("id = ? AND status = ?", job.ID, StatusProcessing).
			Updates(map[string]any{
				"status":     StatusFailed,
				"locked_at":  nil,
				"last_error": message,
				"updated_at": now,
			}).Error; err != nil {
			return errors.Wrap(err, "mark job failed")
		}
		q.emit(ctx, Event{JobID: job.ID, JobType: Type(job.JobType), Status: EventFailed, Attempt: job.Attempts, Error: message, At: now})
		return nil
	}

	next := now.Add(q.Backoff(job.Attempts))
	if err := q.db.WithContext(ctx).Model(&QueueJob{}).
		Where("id = ? AND status = ?", job.ID, StatusProcessing).
		Updates(map[string]any{
			"status":       StatusPending,
			"locked_at":    nil,
			"last_error":   message,
			"available_at": next,
			"updated_at":   now,
		}).Error; err != nil {
		return errors.Wrap(err, "schedule job retry")
	}
	q.emit(ctx, Event{JobID: job.ID, JobType: Type(job.JobType), Status: EventRetrying, Attempt: job.Attempts, Error: message, At: now})
	return nil
}

// Backoff returns the delay before retrying after the given attempt (1-based).
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := q.settings.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.settings.RetryBackoffMax {
			return q.settings.RetryBackoffMax
		}
	}
	if delay > q.settings.RetryBackoffMax {
		return q.settings.RetryBackoffMax
	}
	return delay
}

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, id int64) (*QueueJob, error) {
	var job QueueJob
	if err := q.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return nil, errors.Wrapf(err, "load job %d", id)
	}
	return &job, nil
}

// emit publishes an event without letting sink failures affect the job.
func (q *Queue) emit(ctx context.Context, evt Event) {
	if q.sink == nil {
		return
	}
	if err := q.sink.Publish(ctx, evt); err != nil {
		q.logger.Warn("publish job event",
			zap.Error(err),
			zap.Int64("job_id", evt.JobID),
			zap.String("status", string(evt.Status)))
	}
}

// isPostgresDialect reports whether the gorm dialector is Postgres.
func isPostgresDialect(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return strings.EqualFold(db.Dialector.Name(), "postgres")
}

// isUniqueViolation detects unique constraint errors from postgres and sqlite.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
