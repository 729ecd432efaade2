package indexing

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/log"
)

// SyncReport summarizes one reconciler sweep.
type SyncReport struct {
	// Queued counts new queue jobs.
	Queued int `json:"queued"`
	Errors int `json:"errors"`
	// Deduped counts stale documents whose enqueue reused an active queue job.
	Deduped int `json:"deduped"`
	// Skipped counts stale documents whose last attempt failed permanently on the same content.
	Skipped int `json:"skipped"`
	// InFlight counts stale documents that already have a recent active index job.
	InFlight   int       `json:"inFlight"`
	Scanned    int       `json:"scanned"`
	Capped     bool      `json:"capped"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Enqueuer schedules index work for one document.
type Enqueuer interface {
	Schedule(ctx context.Context, tenantID string, documentID uuid.UUID) (ScheduleResult, error)
}

// ReportStore keeps the most recent sweep report.
type ReportStore interface {
	SaveReport(ctx context.Context, report SyncReport) error
}

// Reconciler finds documents whose index is missing, outdated or failed and
// enqueues them again.
type Reconciler struct {
	store    *store.Store
	enqueuer Enqueuer
	settings SyncSettings
	reports  ReportStore
	logger   logSDK.Logger
}

// NewReconciler constructs a reconciler. reports may be nil.
func NewReconciler(st *store.Store, enqueuer Enqueuer, settings Settings, reports ReportStore, logger logSDK.Logger) (*Reconciler, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if enqueuer == nil {
		return nil, errors.New("enqueuer is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_indexing_reconciler")
	}
	return &Reconciler{
		store:    st,
		enqueuer: enqueuer,
		settings: settings.withDefaults().Sync,
		reports:  reports,
		logger:   logger,
	}, nil
}

type decision int

const (
	decisionCurrent decision = iota
	decisionEnqueue
	decisionInFlight
	decisionPermanent
)

// Sync sweeps all documents once.
//
// A failure to enqueue one document is counted in Errors and the sweep
// continues. Only a failure to read candidates aborts it.
func (r *Reconciler) Sync(ctx context.Context) (SyncReport, error) {
	logger := log.FromContext(ctx, r.logger)
	report := SyncReport{StartedAt: r.store.Now()}

	after := uuid.Nil
sweep:
	for {
		if err := ctx.Err(); err != nil {
			return report, errors.WithStack(err)
		}
		page, err := r.store.ListIndexCandidates(ctx, after, r.settings.BatchSize)
		if err != nil {
			return report, errors.Wrap(err, "list index candidates")
		}
		if len(page) == 0 {
			break
		}

		for _, candidate := range page {
			report.Scanned++
			switch r.classify(candidate, report.StartedAt) {
			case decisionCurrent:
				continue
			case decisionInFlight:
				report.InFlight++
				continue
			case decisionPermanent:
				report.Skipped++
				continue
			}

			if report.Queued+report.Errors >= r.settings.MaxPerSweep {
				report.Capped = true
				break sweep
			}
			res, err := r.enqueuer.Schedule(ctx, candidate.TenantID, candidate.DocumentID)
			if err != nil {
				report.Errors++
				logger.Warn("enqueue stale document",
					zap.String("tenant_id", candidate.TenantID),
					zap.String("document_id", candidate.DocumentID.String()),
					zap.Error(err))
				continue
			}
			if !res.Created {
				report.Deduped++
				continue
			}
			if res.Superseded > 0 {
				logger.Warn("replaced stuck index job",
					zap.String("tenant_id", candidate.TenantID),
					zap.String("document_id", candidate.DocumentID.String()),
					zap.Int64("superseded", res.Superseded))
			}
			report.Queued++
		}

		after = page[len(page)-1].DocumentID
		if len(page) < r.settings.BatchSize {
			break
		}
	}

	report.FinishedAt = r.store.Now()
	logger.Info("stale document sweep finished",
		zap.Int("queued", report.Queued),
		zap.Int("errors", report.Errors),
		zap.Int("deduped", report.Deduped),
		zap.Int("skipped", report.Skipped),
		zap.Int("in_flight", report.InFlight),
		zap.Int("scanned", report.Scanned),
		zap.Bool("capped", report.Capped))

	if r.reports != nil {
		if err := r.reports.SaveReport(ctx, report); err != nil {
			logger.Warn("save sync report", zap.Error(err))
		}
	}
	return report, nil
}

// HandleJob adapts Sync to the job pool.
func (r *Reconciler) HandleJob(ctx context.Context, _ jobs.Payload) error {
	_, err := r.Sync(ctx)
	return err
}

func (r *Reconciler) classify(c store.IndexCandidate, now time.Time) decision {
	checksum := Fingerprint(c.Text())
	stale := c.LastChecksum == nil || *c.LastChecksum != checksum

	if c.JobStatus == nil {
		if stale {
			return decisionEnqueue
		}
		return decisionCurrent
	}

	switch *c.JobStatus {
	case store.JobStatusQueued, store.JobStatusProcessing:
		if !stale {
			return decisionCurrent
		}
		if c.JobUpdatedAt != nil && now.Sub(*c.JobUpdatedAt) < r.settings.StuckAfter {
			return decisionInFlight
		}
		return decisionEnqueue
	case store.JobStatusFailed:
		if c.JobPermanent != nil && *c.JobPermanent &&
			c.JobChecksum != nil && *c.JobChecksum == checksum {
			return decisionPermanent
		}
		return decisionEnqueue
	default:
		if stale {
			return decisionEnqueue
		}
		return decisionCurrent
	}
}
