package kv

import (
	"context"
	"encoding/json"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/docspace/internal/docs/indexing"
)

// ReportKey holds the last reconciler sweep report.
const ReportKey = "docspace/sync/report"

// ReportStore persists sweep reports in the kv table when redis is not configured.
type ReportStore struct {
	kv  *Kv
	ttl time.Duration
}

// NewReportStore wraps kv. ttl defaults to a day.
func NewReportStore(kv *Kv, ttl time.Duration) *ReportStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReportStore{kv: kv, ttl: ttl}
}

// SaveReport implements indexing.ReportStore.
func (s *ReportStore) SaveReport(ctx context.Context, report indexing.SyncReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "marshal sync report")
	}
	return errors.WithStack(s.kv.Set(ctx, ReportKey, string(payload), s.ttl))
}

// LoadReport returns the last saved report.
func (s *ReportStore) LoadReport(ctx context.Context) (indexing.SyncReport, error) {
	var report indexing.SyncReport
	item, err := s.kv.Get(ctx, ReportKey)
	if err != nil {
		return report, errors.WithStack(err)
	}
	if err := json.Unmarshal([]byte(item.Value), &report); err != nil {
		return report, errors.Wrap(err, "decode sync report")
	}
	return report, nil
}
