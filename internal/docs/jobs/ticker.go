package jobs

import (
	"context"
	"time"

	"github.com/Laisky/zap"
)

// Every enqueues payload immediately and then once per interval until ctx is done.
// dedupeKey keeps at most one such job pending or processing at a time.
func (q *Queue) Every(ctx context.Context, interval time.Duration, payload Payload, dedupeKey string) {
	if interval <= 0 {
		q.logger.Warn("periodic enqueue disabled: non-positive interval",
			zap.String("job_type", string(payload.JobType())))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := q.Enqueue(ctx, payload, EnqueueOptions{DedupeKey: dedupeKey}); err != nil && ctx.Err() == nil {
			q.logger.Warn("periodic enqueue failed",
				zap.Error(err),
				zap.String("job_type", string(payload.JobType())))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
