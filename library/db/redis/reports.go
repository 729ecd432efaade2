package redis

import (
	"context"
	"encoding/json"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/docspace/internal/docs/indexing"
)

// ReportCache keeps the latest reconciler sweep report for operators.
type ReportCache struct {
	db  *DB
	ttl time.Duration
}

// NewReportCache returns a cache whose entries expire after ttl.
func NewReportCache(db *DB, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReportCache{db: db, ttl: ttl}
}

// SaveReport implements indexing.ReportStore.
func (c *ReportCache) SaveReport(ctx context.Context, report indexing.SyncReport) error {
	if c == nil || c.db == nil || c.db.db == nil {
		return errors.New("redis client is required")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "marshal sync report")
	}
	return errors.Wrap(c.db.db.SetItem(ctx, KeyPrefixSyncReport, string(payload), c.ttl), "store sync report")
}

// LoadReport returns the last saved report.
func (c *ReportCache) LoadReport(ctx context.Context) (indexing.SyncReport, error) {
	var report indexing.SyncReport
	if c == nil || c.db == nil || c.db.db == nil {
		return report, errors.New("redis client is required")
	}
	payload, err := c.db.db.GetItem(ctx, KeyPrefixSyncReport)
	if err != nil {
		return report, errors.Wrap(err, "load sync report")
	}
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return report, errors.Wrap(err, "decode sync report")
	}
	return report, nil
}
